// Package streaming implements the buffered media pipeline: chunk and
// frame values, the bounded FastStreamBuffer, the StreamProcessor driving
// an external transcoder, and the BufferManager fleet scheduler.
package streaming

import "time"

// Kind distinguishes the media carried by a chunk or frame.
type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// StreamChunk is a unit of buffered media. Once enqueued into a
// FastStreamBuffer its Sequence and Timestamp never change; on dequeue the
// adaptive quality adapter may forward a copy whose Data is the compressed
// payload and whose Metadata carries the chosen quality level.
type StreamChunk struct {
	Data       []byte
	Timestamp  time.Time // production time, read against a monotonic clock
	Sequence   int64
	Kind       Kind
	DurationMs int
	Metadata   map[string]any
}

// Size returns the payload length in bytes.
func (c StreamChunk) Size() int { return len(c.Data) }

// AgeMs returns how long ago the chunk was produced, in milliseconds,
// measured against the monotonic clock embedded in Timestamp.
func (c StreamChunk) AgeMs(now time.Time) float64 {
	return float64(now.Sub(c.Timestamp)) / float64(time.Millisecond)
}

// FrameInfo carries the presentation metadata for a Frame.
type FrameInfo struct {
	TimestampMs int64
	Width       int
	Height      int
	Rotation    int
	SampleRate  int
	Channels    int
}

// Frame is the unit handed to a TransportClient. A frame may be carried
// inside a chunk's payload, or derived from one by a MediaFilter.
type Frame struct {
	SSRC uint32
	Data []byte
	Info FrameInfo
	Kind Kind
}
