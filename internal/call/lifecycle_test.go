package call

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TgCaller/TgCaller/internal/eventbus"
	"github.com/TgCaller/TgCaller/internal/logging"
	"github.com/TgCaller/TgCaller/internal/retry"
	"github.com/TgCaller/TgCaller/internal/streaming"
	"github.com/TgCaller/TgCaller/internal/transport"
)

type fakeTransport struct {
	mu          sync.Mutex
	connected   map[int64]bool
	handler     transport.EventHandler
}

func newFakeTransport() *fakeTransport { return &fakeTransport{connected: make(map[int64]bool)} }

func (f *fakeTransport) Connect(ctx context.Context, chatID int64) error {
	f.mu.Lock()
	f.connected[chatID] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context, chatID int64) error {
	f.mu.Lock()
	f.connected[chatID] = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendFrame(ctx context.Context, chatID int64, frame streaming.Frame) error {
	return nil
}

func (f *fakeTransport) SubscribeEvents(handler transport.EventHandler) func() {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return func() {}
}

type emptySource struct{ sent bool }

func (s *emptySource) Next(ctx context.Context) ([]byte, error) {
	if s.sent {
		return nil, io.EOF
	}
	s.sent = true
	return []byte("x"), nil
}

// TestCallLifecycleBasicFlow exercises scenario S6: join reaches
// connected, play transitions to active, Stop returns to connected and
// emits on_stream_end with the right chat id, and leave ends in ended.
// The source reaching end of stream does not by itself change the call
// state or emit on_stream_end; the test ends the stream with Stop.
func TestCallLifecycleBasicFlow(t *testing.T) {
	tc := newFakeTransport()
	mgr := streaming.NewBufferManager(streaming.ManagerConfig{MaxBuffers: 4}, logging.NewNop())
	retries := retry.NewDriver(logging.NewNop())
	dispatcher := eventbus.New(logging.NewNop())

	const chatID = int64(-1001)
	lc := NewLifecycle(chatID, tc, mgr, retries, dispatcher, logging.NewNop())

	var endedMu sync.Mutex
	var ended *StreamEnded
	dispatcher.AddHandler(func(u eventbus.Update) {
		if u.Kind == eventbus.UpdateStreamEnd {
			se := u.Payload.(StreamEnded)
			endedMu.Lock()
			ended = &se
			endedMu.Unlock()
		}
	}, nil, 0)

	audioCfg := DefaultAudioConfig()
	require.NoError(t, lc.Join(context.Background(), &audioCfg, nil))
	assert.Equal(t, StateConnected, lc.state())

	require.NoError(t, lc.Play(context.Background(), &emptySource{}, &audioCfg, nil))
	assert.Equal(t, StateActive, lc.state())

	require.NoError(t, lc.Stop(StreamEndFinished))
	assert.Equal(t, StateConnected, lc.state())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		endedMu.Lock()
		got := ended
		endedMu.Unlock()
		if got != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	endedMu.Lock()
	require.NotNil(t, ended)
	assert.Equal(t, chatID, ended.ChatID)
	endedMu.Unlock()

	require.NoError(t, lc.Leave(context.Background()))
	assert.Equal(t, StateEnded, lc.state())

	// Repeating Leave is a no-op (L1).
	require.NoError(t, lc.Leave(context.Background()))
	assert.Equal(t, StateEnded, lc.state())
}

func TestSetVolumeClamps(t *testing.T) {
	tc := newFakeTransport()
	mgr := streaming.NewBufferManager(streaming.ManagerConfig{MaxBuffers: 4}, logging.NewNop())
	retries := retry.NewDriver(logging.NewNop())
	dispatcher := eventbus.New(logging.NewNop())
	lc := NewLifecycle(1, tc, mgr, retries, dispatcher, logging.NewNop())

	lc.SetVolume(1.5)
	assert.Equal(t, 1.0, lc.Volume())
	lc.SetVolume(-0.5)
	assert.Equal(t, 0.0, lc.Volume())
}
