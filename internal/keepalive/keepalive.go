// Package keepalive keeps a conversational surface responsive while a
// long agent invocation runs: a periodic best-effort signal (typing
// indicators, spinner ticks) and a line throttler that batches streamed
// output instead of forwarding every line.
package keepalive

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentrelay/agentrelay/internal/logging"
)

// Run emits fn every interval until ctx is cancelled. Emission errors
// are logged at debug and otherwise swallowed; a failed signal must
// never disturb the invocation it decorates. Run blocks, so callers
// start it in a goroutine and cancel ctx when the invocation ends.
func Run(ctx context.Context, interval time.Duration, fn func(context.Context) error, logger *logging.Logger) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if interval <= 0 || fn == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Debug("keepalive signal failed", "error", err)
			}
		}
	}
}

// FlushFunc receives a block of buffered lines joined by newlines.
type FlushFunc func(text string)

// Throttler buffers observer lines and flushes them as one block when
// either the size cap or the flush interval is reached. Observe is
// called from the executor's stdout goroutine; flushes run inline on
// whichever path triggered them.
type Throttler struct {
	mu        sync.Mutex
	buf       []string
	lastFlush time.Time

	maxLines int
	interval time.Duration
	flush    FlushFunc
	logger   *logging.Logger
	now      func() time.Time
}

// NewThrottler creates a Throttler. flush must be non-nil.
func NewThrottler(maxLines int, interval time.Duration, flush FlushFunc, logger *logging.Logger) *Throttler {
	if flush == nil {
		panic("keepalive: flush func must not be nil")
	}
	if maxLines < 1 {
		maxLines = 1
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	t := &Throttler{
		maxLines: maxLines,
		interval: interval,
		flush:    flush,
		logger:   logger,
		now:      time.Now,
	}
	t.lastFlush = t.now()
	return t
}

// Observe buffers one line, flushing if the batch is full or the flush
// interval has elapsed since the last flush.
func (t *Throttler) Observe(line string) {
	t.mu.Lock()
	t.buf = append(t.buf, line)
	due := len(t.buf) >= t.maxLines ||
		(t.interval > 0 && t.now().Sub(t.lastFlush) >= t.interval)
	var block string
	if due {
		block = t.takeLocked()
	}
	t.mu.Unlock()

	if due {
		t.emit(block)
	}
}

// Flush sends any buffered lines immediately. Call once the invocation
// completes so the tail of the stream is not lost.
func (t *Throttler) Flush() {
	t.mu.Lock()
	block := t.takeLocked()
	t.mu.Unlock()

	if block != "" {
		t.emit(block)
	}
}

// takeLocked drains the buffer and marks the flush time. Caller holds
// the lock.
func (t *Throttler) takeLocked() string {
	if len(t.buf) == 0 {
		return ""
	}
	block := strings.Join(t.buf, "\n")
	t.buf = t.buf[:0]
	t.lastFlush = t.now()
	return block
}

// emit delivers a block, containing sink panics so a broken consumer
// cannot take down the stdout reader.
func (t *Throttler) emit(block string) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("stream flush panicked", "panic", r)
		}
	}()
	t.flush(block)
}
