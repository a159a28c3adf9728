package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TgCaller/TgCaller/internal/streaming"
)

func TestMediaFilterFuncAdapts(t *testing.T) {
	var f MediaFilter = MediaFilterFunc(func(c streaming.StreamChunk) (streaming.StreamChunk, error) {
		c.Sequence = 42
		return c, nil
	})

	out, err := f.Apply(streaming.StreamChunk{Sequence: 1})
	assert.NoError(t, err)
	assert.EqualValues(t, 42, out.Sequence)
}

func TestEventHandlerReceivesEvent(t *testing.T) {
	var got Event
	var handler EventHandler = func(e Event) { got = e }

	handler(Event{Kind: UpdateKicked, ChatID: -55})
	assert.Equal(t, UpdateKicked, got.Kind)
	assert.EqualValues(t, -55, got.ChatID)
}
