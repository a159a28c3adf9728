package peercache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TgCaller/TgCaller/internal/logging"
)

type countingResolver struct {
	calls int32
}

func (r *countingResolver) Resolve(ctx context.Context, peerID string) (Descriptor, error) {
	atomic.AddInt32(&r.calls, 1)
	return Descriptor{PeerID: peerID, Username: "user_" + peerID}, nil
}

// TestResolveCachesWithinTTL exercises law L4: resolving the same peer
// twice within TTL makes exactly one call to the external resolver.
func TestResolveCachesWithinTTL(t *testing.T) {
	r := &countingResolver{}
	c, err := New(r, 100, logging.NewNop())
	require.NoError(t, err)
	defer c.Close()

	d1, err := c.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	d2, err := c.Resolve(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, d1.PeerID, d2.PeerID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&r.calls))

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestResolveByUsernameUsesSecondaryIndex(t *testing.T) {
	r := &countingResolver{}
	c, err := New(r, 100, logging.NewNop())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Resolve(context.Background(), "p1")
	require.NoError(t, err)

	d, err := c.ResolveByUsername(context.Background(), "user_p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", d.PeerID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&r.calls))
}

func TestDescriptorExpired(t *testing.T) {
	d := Descriptor{CachedAt: time.Now().Add(-25 * time.Hour)}
	assert.True(t, d.Expired(time.Now()))

	d2 := Descriptor{CachedAt: time.Now()}
	assert.False(t, d2.Expired(time.Now()))
}
