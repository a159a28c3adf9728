package streaming

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TgCaller/TgCaller/internal/errs"
	"github.com/TgCaller/TgCaller/internal/logging"
)

// ProcessorConfig governs one StreamProcessor's transcoder invocation.
type ProcessorConfig struct {
	// TranscoderPath is the child process executable, defaulting to
	// "ffmpeg" when empty.
	TranscoderPath string
	InputFormat    string
	InputRate      int
	InputChannels  int
	OutputCodec    string
	OutputFormat   string
	HardwareAccel  string
	EnableFilters  bool
	BufferSize     int
}

// DefaultProcessorConfig mirrors the original implementation's general
// transcoding defaults for Opus-over-WebRTC delivery.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		TranscoderPath: "ffmpeg",
		InputFormat:    "s16le",
		InputRate:      48000,
		InputChannels:  2,
		OutputCodec:    "libopus",
		OutputFormat:   "opus",
		EnableFilters:  true,
		BufferSize:     4096,
	}
}

func (c ProcessorConfig) transcoderPath() string {
	if c.TranscoderPath == "" {
		return "ffmpeg"
	}
	return c.TranscoderPath
}

// buildArgs encodes input sample format, hardware-acceleration hint, the
// audio filter chain (normalization, denoise, 80Hz high-pass, 15kHz
// low-pass, gated by EnableFilters) and the output codec/format.
func (c ProcessorConfig) buildArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if c.HardwareAccel != "" {
		args = append(args, "-hwaccel", c.HardwareAccel)
	}
	args = append(args,
		"-f", c.InputFormat,
		"-ar", fmt.Sprintf("%d", c.InputRate),
		"-ac", fmt.Sprintf("%d", c.InputChannels),
		"-i", "pipe:0",
	)
	if c.EnableFilters {
		args = append(args, "-af", "loudnorm,afftdn,highpass=f=80,lowpass=f=15000")
	}
	args = append(args,
		"-f", c.OutputFormat,
		"-c:a", c.OutputCodec,
		"pipe:1",
	)
	return args
}

// ProcessorStats carries a StreamProcessor's running telemetry.
type ProcessorStats struct {
	ChunksProcessed    int64
	BytesProcessed     int64
	ProcessingTimeMsEMA float64
	Errors             int64
}

// Efficiency returns chunks_processed / (chunks_processed + errors) * 100,
// or 100 when nothing has run yet.
func (s ProcessorStats) Efficiency() float64 {
	total := s.ChunksProcessed + s.Errors
	if total == 0 {
		return 100
	}
	return float64(s.ChunksProcessed) / float64(total) * 100
}

// StreamProcessor drives an external transcoder child process: a writer
// goroutine feeds raw input bytes to its stdin, a reader goroutine reads
// fixed-size blocks from its stdout and wraps each into a StreamChunk.
type StreamProcessor struct {
	cfg    ProcessorConfig
	logger logging.Logger
	clock  func() time.Time

	mu    sync.Mutex
	stats ProcessorStats
	seq   int64
}

// NewStreamProcessor builds a StreamProcessor from cfg.
func NewStreamProcessor(cfg ProcessorConfig, logger logging.Logger) *StreamProcessor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamProcessor{cfg: cfg, logger: logger.Named("processor"), clock: time.Now}
}

// Stats returns a snapshot of the processor's telemetry.
func (p *StreamProcessor) Stats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Process spawns the transcoder, feeds it from source, and emits each
// stdout block wrapped as a StreamChunk on the returned channel. The
// channel is closed when either end terminates; a non-nil error is sent
// as the final value read from the returned error channel. Process
// consumes source.
func (p *StreamProcessor) Process(ctx context.Context, source SourceProducer, kind Kind) (<-chan StreamChunk, <-chan error) {
	out := make(chan StreamChunk, p.cfg.BufferSize)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		cmd := exec.CommandContext(ctx, p.cfg.transcoderPath(), p.cfg.buildArgs()...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			errc <- errs.Media("spawn transcoder", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errc <- errs.Media("spawn transcoder", err)
			return
		}
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Start(); err != nil {
			errc <- errs.Media("spawn transcoder", err)
			return
		}

		// Verify liveness by waiting briefly and checking the child is
		// still running before committing to the pipeline.
		time.Sleep(20 * time.Millisecond)
		if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
			errc <- errs.Media("transcoder exited immediately", fmt.Errorf("%s", stderr.String()))
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return p.writeLoop(gctx, stdin, source) })
		g.Go(func() error { return p.readLoop(gctx, stdout, out, kind) })

		runErr := g.Wait()
		p.teardown(cmd, stdin)

		if runErr != nil && runErr != io.EOF {
			p.mu.Lock()
			p.stats.Errors++
			p.mu.Unlock()
			errc <- runErr
		}
	}()

	return out, errc
}

// Source drives Process over source and adapts its output chunk sequence
// back into a SourceProducer, so a FastStreamBuffer can consume
// transcoded media the same way it would consume any raw source.
func (p *StreamProcessor) Source(ctx context.Context, source SourceProducer, kind Kind) SourceProducer {
	chunks, errc := p.Process(ctx, source, kind)
	return &processedSource{chunks: chunks, errc: errc}
}

// processedSource adapts a StreamProcessor's (chunks, errc) output pair
// into the SourceProducer shape FastStreamBuffer.Start expects.
type processedSource struct {
	chunks <-chan StreamChunk
	errc   <-chan error
}

func (s *processedSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case c, ok := <-s.chunks:
		if !ok {
			select {
			case err := <-s.errc:
				if err != nil {
					return nil, err
				}
			default:
			}
			return nil, io.EOF
		}
		return c.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *StreamProcessor) writeLoop(ctx context.Context, stdin io.WriteCloser, source SourceProducer) error {
	defer stdin.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		block, err := source.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errs.Media("read source", err)
		}
		if _, err := stdin.Write(block); err != nil {
			return errs.Media("write transcoder stdin", err)
		}
		if f, ok := stdin.(interface{ Flush() error }); ok {
			_ = f.Flush()
		}
	}
}

func (p *StreamProcessor) readLoop(ctx context.Context, stdout io.Reader, out chan<- StreamChunk, kind Kind) error {
	bufSize := p.cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 4096
	}
	buf := make([]byte, bufSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			seq := atomic.AddInt64(&p.seq, 1)
			chunk := StreamChunk{
				Data:      data,
				Timestamp: p.clock(),
				Sequence:  seq,
				Kind:      kind,
			}
			p.mu.Lock()
			p.stats.ChunksProcessed++
			p.stats.BytesProcessed += int64(n)
			p.mu.Unlock()
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errs.Media("read transcoder stdout", err)
		}
	}
}

// teardown closes stdin, requests graceful termination, waits up to 5s,
// then force-kills.
func (p *StreamProcessor) teardown(cmd *exec.Cmd, stdin io.Closer) {
	_ = stdin.Close()
	if cmd.Process == nil {
		return
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	_ = cmd.Process.Signal(processTerminateSignal())
	select {
	case <-done:
		return
	case <-time.After(5 * time.Second):
	}
	_ = cmd.Process.Kill()
	<-done
}
