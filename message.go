package wsflow

import "fmt"

type MessageType byte

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
	CloseMessage  MessageType = 8
	PingMessage   MessageType = 9
	PongMessage   MessageType = 10
)

func (t MessageType) Is(other MessageType) bool {
	return t == other
}

// IsData reports whether the message carries application payload, as opposed to a control frame.
func (t MessageType) IsData() bool {
	return t.Is(TextMessage) || t.Is(BinaryMessage)
}

func (t MessageType) IsText() bool {
	return t.Is(TextMessage)
}

func (t MessageType) IsBinary() bool {
	return t.Is(BinaryMessage)
}

func (t MessageType) IsControl() bool {
	return t.Is(PingMessage) || t.Is(PongMessage) || t.Is(CloseMessage)
}

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	case CloseMessage:
		return "close"
	case PingMessage:
		return "ping"
	case PongMessage:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Message is a single frame exchanged with the remote peer. Subscribers only ever observe
// text and binary messages.
type Message interface {
	Type() MessageType
	Data() []byte
	String() string
}

type message struct {
	MessageType MessageType
	MessageData []byte
}

func (m message) Type() MessageType {
	return m.MessageType
}

func (m message) Data() []byte {
	return m.MessageData
}

func (m message) String() string {
	return fmt.Sprintf("Message{type=%s,data=%s}", m.MessageType, m.MessageData)
}

// Text returns the payload as a string.
func (m message) Text() string {
	return string(m.MessageData)
}

type binaryMessage struct {
	message
	contentType string
}

// ContentType is the declared media type of the payload, empty when unknown.
func (m binaryMessage) ContentType() string {
	return m.contentType
}

func (m binaryMessage) String() string {
	return fmt.Sprintf("Message{type=%s,content_type=%q,len=%d}",
		m.MessageType, m.contentType, len(m.MessageData))
}

type closeMessage struct {
	message
	Code int
}

func (m closeMessage) String() string {
	return fmt.Sprintf("Message{type=%s,code=%d,data=%s}",
		m.message.Type(), m.Code, m.message.Data())
}

func NewMessage(mt MessageType, data []byte) Message {
	return message{MessageType: mt, MessageData: data}
}

func NewTextMessage(text string) Message {
	return NewMessage(TextMessage, []byte(text))
}

func NewBinaryMessage(data []byte) Message {
	return NewBinaryMessageWithContentType(data, "")
}

func NewBinaryMessageWithContentType(data []byte, contentType string) Message {
	return binaryMessage{
		message:     message{MessageType: BinaryMessage, MessageData: data},
		contentType: contentType,
	}
}

func NewPingMessage(data []byte) Message {
	return NewMessage(PingMessage, data)
}

func NewPongMessage(data []byte) Message {
	return NewMessage(PongMessage, data)
}

func NewCloseMessage(code int, reason string) Message {
	return closeMessage{
		message: message{MessageType: CloseMessage, MessageData: []byte(reason)},
		Code:    code,
	}
}

// TextOf returns the text payload of m and whether m is a text message.
func TextOf(m Message) (string, bool) {
	if m == nil || !m.Type().IsText() {
		return "", false
	}
	return string(m.Data()), true
}

// ContentTypeOf returns the content type of a binary message, or an empty string.
func ContentTypeOf(m Message) string {
	if ct, ok := m.(interface{ ContentType() string }); ok {
		return ct.ContentType()
	}
	return ""
}
