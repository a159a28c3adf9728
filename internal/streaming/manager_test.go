package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPriorityBasedConfig exercises scenario S3: synthesized configs for
// critical and low priority buffers match the literal values named in
// the external configuration table.
func TestPriorityBasedConfig(t *testing.T) {
	crit := ConfigForPriority(PriorityCritical)
	assert.Equal(t, 100, crit.MaxSize)
	assert.Equal(t, 40, crit.TargetSize)
	assert.Equal(t, 10, crit.ChunkDurationMs)
	assert.Equal(t, 50, crit.MaxLatencyMs)

	low := ConfigForPriority(PriorityLow)
	assert.Equal(t, 30, low.MaxSize)
	assert.Equal(t, 10, low.TargetSize)
	assert.Equal(t, 30, low.ChunkDurationMs)
	assert.Equal(t, 200, low.MaxLatencyMs)
}

// TestEviction exercises scenario S4: with max_buffers=2, creating a
// third higher-priority buffer evicts the lowest-priority existing one.
func TestEviction(t *testing.T) {
	mgr := NewBufferManager(ManagerConfig{MaxBuffers: 2}, testLogger())

	_, err := mgr.CreateBuffer("a", nil, PriorityNormal, nil, KindAudio)
	require.NoError(t, err)
	_, err = mgr.CreateBuffer("b", nil, PriorityLow, nil, KindAudio)
	require.NoError(t, err)

	buf, err := mgr.CreateBuffer("c", nil, PriorityHigh, nil, KindAudio)
	require.NoError(t, err)
	require.NotNil(t, buf)

	ids := mgr.ListBuffers()
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
}

// TestAdmissionRefusedWhenNoEvictionCandidate ensures create_buffer
// returns nil, nil (not an error) when every existing buffer is critical
// and the fleet is at capacity (P6).
func TestAdmissionRefusedWhenNoEvictionCandidate(t *testing.T) {
	mgr := NewBufferManager(ManagerConfig{MaxBuffers: 1}, testLogger())

	_, err := mgr.CreateBuffer("crit", nil, PriorityCritical, nil, KindAudio)
	require.NoError(t, err)

	buf, err := mgr.CreateBuffer("extra", nil, PriorityNormal, nil, KindAudio)
	require.NoError(t, err)
	assert.Nil(t, buf)
	assert.Len(t, mgr.ListBuffers(), 1)
}
