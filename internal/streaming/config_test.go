package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferConfigValidate(t *testing.T) {
	valid := BufferConfig{MaxSize: 10, MinSize: 2, TargetSize: 5, MaxLatencyMs: 100, MaxConcurrentChunks: 1}
	assert.NoError(t, valid.Validate())

	invalid := valid
	invalid.MinSize = 0
	assert.Error(t, invalid.Validate())

	invalid = valid
	invalid.TargetSize = 1
	assert.Error(t, invalid.Validate())

	invalid = valid
	invalid.MaxSize = 1
	assert.Error(t, invalid.Validate())

	invalid = valid
	invalid.MaxLatencyMs = 0
	assert.Error(t, invalid.Validate())
}
