package wsflow

import (
	"time"
)

type KeepAliveMessageFactory func() Message

// activeKeepAlive periodically queues keep-alive frames on a connection so that idle
// intermediaries do not drop it.
type activeKeepAlive struct {
	pingInterval            time.Duration
	keepAliveMessageFactory KeepAliveMessageFactory
	logger                  Logger
}

// run queues a keep-alive message every pingInterval until done is closed or the
// connection stops accepting messages.
func (k activeKeepAlive) run(send func(Message) bool, done CloseChan) {
	ticker := time.NewTicker(k.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !send(k.keepAliveMessageFactory()) {
				k.logger.Debugln("connection no longer accepts keep-alive messages")
				return
			}
		}
	}
}

func newActiveKeepAlive(
	logger Logger,
	interval time.Duration,
	keepAliveMessageFactory KeepAliveMessageFactory,
) activeKeepAlive {
	return activeKeepAlive{
		logger:                  logger.WithField("subtype", "activeKeepAlive"),
		pingInterval:            interval,
		keepAliveMessageFactory: keepAliveMessageFactory,
	}
}

// NewKeepAliveMessageFactory returns a factory function for creating keep-alive messages.
// It takes a MessageType and a function that generates the content of the message as parameters.
func NewKeepAliveMessageFactory(
	mt MessageType,
	contentFactory func() []byte,
) KeepAliveMessageFactory {
	return func() Message {
		return NewMessage(mt, contentFactory())
	}
}
