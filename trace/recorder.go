package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stackmesh/agenthub/types"
)

// Config controls the span recorder.
type Config struct {
	// Path is the JSONL output file. Opened in append mode so restarts
	// extend the existing trace log.
	Path string `yaml:"path" json:"path" env:"PATH"`
	// BufferSize bounds spans queued for the writer goroutine.
	BufferSize int `yaml:"buffer_size" json:"buffer_size" env:"BUFFER_SIZE"`
}

// DefaultConfig returns recorder defaults.
func DefaultConfig() Config {
	return Config{
		Path:       "agenthub_trace.jsonl",
		BufferSize: 1024,
	}
}

// Recorder buffers spans and writes them as JSON lines in the background.
type Recorder struct {
	ch      chan *types.Span
	dropped atomic.Uint64
	written atomic.Uint64
	logger  *zap.Logger

	closer io.Closer
	done   chan struct{}

	closeOnce sync.Once
}

// NewRecorder opens the configured file and starts the writer goroutine.
func NewRecorder(cfg Config, logger *zap.Logger) (*Recorder, error) {
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", cfg.Path, err)
	}
	r := newRecorder(f, cfg.BufferSize, logger)
	r.closer = f
	return r, nil
}

// NewRecorderWriter starts a recorder on an arbitrary writer. Tests use this
// with a bytes.Buffer.
func NewRecorderWriter(w io.Writer, bufferSize int, logger *zap.Logger) *Recorder {
	return newRecorder(w, bufferSize, logger)
}

func newRecorder(w io.Writer, bufferSize int, logger *zap.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultConfig().BufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		ch:     make(chan *types.Span, bufferSize),
		logger: logger.With(zap.String("component", "trace")),
		done:   make(chan struct{}),
	}
	go r.run(w)
	return r
}

func (r *Recorder) run(w io.Writer) {
	defer close(r.done)
	enc := json.NewEncoder(w)
	for span := range r.ch {
		if err := enc.Encode(span); err != nil {
			r.logger.Error("failed to write span", zap.Error(err))
			continue
		}
		r.written.Add(1)
	}
}

// Record enqueues a span for writing. It never blocks: when the buffer is
// full the span is dropped and counted. Recording after Drain is a no-op.
func (r *Recorder) Record(span *types.Span) {
	if span == nil {
		return
	}
	defer func() {
		// Send on a closed channel after Drain.
		if recover() != nil {
			r.dropped.Add(1)
		}
	}()
	select {
	case r.ch <- span:
	case <-r.done:
		r.dropped.Add(1)
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many spans were discarded due to backpressure or
// recording after shutdown.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written reports how many spans reached the output.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Drain stops accepting spans, flushes everything buffered, and closes the
// underlying file if the recorder owns one. It returns early with the
// context error if the deadline expires first.
func (r *Recorder) Drain(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.ch) })
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
