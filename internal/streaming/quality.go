package streaming

import (
	"bytes"

	"github.com/klauspost/compress/flate"
)

// QualityLevel is the adaptive degradation level chosen per dequeued chunk.
type QualityLevel int

const (
	QualityUltra QualityLevel = iota
	QualityHigh
	QualityMedium
	QualityLow
)

func (q QualityLevel) String() string {
	switch q {
	case QualityHigh:
		return "high"
	case QualityMedium:
		return "medium"
	case QualityLow:
		return "low"
	default:
		return "ultra"
	}
}

// degradeRatio maps a quality level to the compression ratio the degrade
// hook targets: 1.0 means "no degradation attempted".
func (q QualityLevel) degradeRatio() float64 {
	switch q {
	case QualityHigh:
		return 0.85
	case QualityMedium:
		return 0.6
	case QualityLow:
		return 0.35
	default:
		return 1.0
	}
}

// qualityController picks a QualityLevel from current buffer health and
// latency, per the table: >80%/<50ms ultra, >60%/<100ms high,
// >40%/<200ms medium, else low.
type qualityController struct{}

func (qualityController) level(healthPercent float64, avgLatencyMs float64) QualityLevel {
	switch {
	case healthPercent > 80 && avgLatencyMs < 50:
		return QualityUltra
	case healthPercent > 60 && avgLatencyMs < 100:
		return QualityHigh
	case healthPercent > 40 && avgLatencyMs < 200:
		return QualityMedium
	default:
		return QualityLow
	}
}

// degrade shrinks chunk's payload toward the target ratio using real
// flate compression. A quality adapter failure is non-fatal: the caller
// forwards the original chunk on error.
func degrade(chunk StreamChunk, ratio float64) (StreamChunk, error) {
	if ratio >= 1.0 || len(chunk.Data) == 0 {
		return chunk, nil
	}

	var buf bytes.Buffer
	level := flate.DefaultCompression
	if ratio < 0.5 {
		level = flate.BestCompression
	}
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return chunk, err
	}
	if _, err := w.Write(chunk.Data); err != nil {
		_ = w.Close()
		return chunk, err
	}
	if err := w.Close(); err != nil {
		return chunk, err
	}

	compressed := buf.Bytes()
	// Only adopt the compressed payload when it actually shrinks the
	// chunk toward the requested ratio; otherwise forward the original.
	if float64(len(compressed)) >= float64(len(chunk.Data))*ratio {
		return chunk, nil
	}

	out := chunk
	out.Data = compressed
	return out, nil
}
