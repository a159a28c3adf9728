package streaming

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityControllerLevels(t *testing.T) {
	var qc qualityController
	assert.Equal(t, QualityUltra, qc.level(85, 40))
	assert.Equal(t, QualityHigh, qc.level(65, 90))
	assert.Equal(t, QualityMedium, qc.level(45, 150))
	assert.Equal(t, QualityLow, qc.level(10, 500))
}

func TestDegradeShrinksCompressiblePayload(t *testing.T) {
	data := bytes.Repeat([]byte("compressible-payload-chunk "), 200)
	chunk := StreamChunk{Data: data}

	out, err := degrade(chunk, 0.5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out.Data), len(data))
}

func TestDegradeNoOpAtFullRatio(t *testing.T) {
	chunk := StreamChunk{Data: []byte("hello")}
	out, err := degrade(chunk, 1.0)
	require.NoError(t, err)
	assert.Equal(t, chunk.Data, out.Data)
}
