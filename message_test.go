package wsflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageKinds(t *testing.T) {
	text := NewTextMessage("hi")
	assert.True(t, text.Type().IsText())
	assert.True(t, text.Type().IsData())
	s, ok := TextOf(text)
	assert.True(t, ok)
	assert.Equal(t, "hi", s)

	bin := NewBinaryMessageWithContentType([]byte{1}, "audio/wav")
	assert.True(t, bin.Type().IsBinary())
	assert.Equal(t, "audio/wav", ContentTypeOf(bin))
	_, ok = TextOf(bin)
	assert.False(t, ok)

	for _, m := range []Message{NewPingMessage(nil), NewPongMessage(nil), NewCloseMessage(1000, "bye")} {
		assert.True(t, m.Type().IsControl(), m.String())
		assert.False(t, m.Type().IsData(), m.String())
	}

	assert.Equal(t, "Message{type=close,code=1000,data=bye}", NewCloseMessage(1000, "bye").String())
	assert.Empty(t, ContentTypeOf(text))
}
