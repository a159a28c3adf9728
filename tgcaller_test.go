package tgcaller

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TgCaller/TgCaller/internal/peercache"
	"github.com/TgCaller/TgCaller/internal/streaming"
	"github.com/TgCaller/TgCaller/internal/transport"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected map[int64]bool
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

func (f *fakeTransport) SubscribeEvents(handler transport.EventHandler) func() { return func() {} }

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, peerID string) (peercache.Descriptor, error) {
	return peercache.Descriptor{PeerID: peerID}, nil
}

type onceSource struct{ sent bool }

func (s *onceSource) Next(ctx context.Context) ([]byte, error) {
	if s.sent {
		return nil, io.EOF
	}
	s.sent = true
	return []byte("frame"), nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(newFakeTransport(), fakeResolver{}, WithMaxBuffers(4), WithLoggerLevel("error"))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(nil, fakeResolver{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfig))
}

func TestEngineJoinLeave(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Join(ctx, -1001, nil, nil))
	assert.True(t, e.IsConnected(-1001))
	assert.Contains(t, e.ActiveCalls(), int64(-1001))

	require.NoError(t, e.Leave(ctx, -1001))
	assert.False(t, e.IsConnected(-1001))
}

func TestEnginePlayEmitsStreamEnd(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var gotMu sync.Mutex
	var got *StreamEnded
	e.OnStreamEnd(func(se StreamEnded) {
		gotMu.Lock()
		got = &se
		gotMu.Unlock()
	}, nil, 0)

	require.NoError(t, e.Play(ctx, -2002, &onceSource{}, nil, nil))
	require.NoError(t, e.Stop(-2002))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		gotMu.Lock()
		v := got
		gotMu.Unlock()
		if v != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	gotMu.Lock()
	defer gotMu.Unlock()
	require.NotNil(t, got)
	assert.EqualValues(t, -2002, got.ChatID)
}

func TestEngineVolumeAndMute(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Join(ctx, 7, nil, nil))

	e.SetVolume(7, 0.5)
	e.Mute(7)
	e.Unmute(7)
}

func TestGlobalStats(t *testing.T) {
	e := newTestEngine(t)
	stats := e.GlobalStats()
	assert.Equal(t, 0, stats.Calls)

	require.NoError(t, e.Join(context.Background(), 99, nil, nil))
	stats = e.GlobalStats()
	assert.Equal(t, 1, stats.Calls)
}
