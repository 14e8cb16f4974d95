// Package batch decides when a user's accumulated input is handed to
// the bridge. In the default mode every new item restarts a short
// debounce timer and the whole batch is dispatched once the user goes
// quiet. In explicit mode items accumulate (bounded per kind) until the
// user accepts or cancels.
package batch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentrelay/agentrelay/internal/errors"
	"github.com/agentrelay/agentrelay/internal/logging"
	"github.com/agentrelay/agentrelay/internal/metrics"
)

// File is one accumulated file: extracted text plus its original name.
type File struct {
	Name    string
	Content string
}

// DispatchFunc receives the combined payload when a debounce timer
// fires. It runs outside the accumulator's lock and may block.
type DispatchFunc func(userID int64, payload string)

// pending is one user's batch under accumulation.
type pending struct {
	messages  []string
	files     []File
	timer     *time.Timer
	gen       uint64 // guards against a stopped timer's late firing
	explicit  bool
	createdAt time.Time
}

// Accumulator owns all pending batches, keyed by user id.
type Accumulator struct {
	mu    sync.Mutex
	users map[int64]*pending

	delay       time.Duration
	maxMessages int
	maxFiles    int
	staleAfter  time.Duration

	dispatch DispatchFunc
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time
}

// New creates an Accumulator. dispatch must be non-nil.
func New(delay time.Duration, maxMessages, maxFiles int, staleAfter time.Duration, dispatch DispatchFunc, m *metrics.Metrics, logger *logging.Logger) *Accumulator {
	if dispatch == nil {
		panic("batch: dispatch func must not be nil")
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Accumulator{
		users:       make(map[int64]*pending),
		delay:       delay,
		maxMessages: maxMessages,
		maxFiles:    maxFiles,
		staleAfter:  staleAfter,
		dispatch:    dispatch,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// AddMessage appends a message to the user's batch. In debounce mode
// the timer restarts; in explicit mode the per-kind cap applies and
// overflow is rejected with a capacity error rather than dropped.
func (a *Accumulator) AddMessage(userID int64, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.pending(userID)
	if p.explicit {
		if len(p.messages) >= a.maxMessages {
			return fmt.Errorf("%w: %d messages", errors.ErrBatchCapacity, a.maxMessages)
		}
		p.messages = append(p.messages, text)
		return nil
	}

	p.messages = append(p.messages, text)
	a.restartTimer(userID, p)
	return nil
}

// AddFile appends a file to the user's batch, under the same rules as
// AddMessage.
func (a *Accumulator) AddFile(userID int64, name, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.pending(userID)
	if p.explicit {
		if len(p.files) >= a.maxFiles {
			return fmt.Errorf("%w: %d files", errors.ErrBatchCapacity, a.maxFiles)
		}
		p.files = append(p.files, File{Name: name, Content: content})
		return nil
	}

	p.files = append(p.files, File{Name: name, Content: content})
	a.restartTimer(userID, p)
	return nil
}

// StartExplicit switches the user's batch into explicit mode. Items
// already accumulating under a debounce timer are kept; the timer is
// cancelled.
func (a *Accumulator) StartExplicit(userID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.pending(userID)
	p.explicit = true
	a.stopTimer(p)
}

// Accept combines and removes the user's batch, returning the payload.
// ok is false when there is nothing to dispatch.
func (a *Accumulator) Accept(userID int64) (payload string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, exists := a.users[userID]
	if !exists || (len(p.messages) == 0 && len(p.files) == 0) {
		return "", false
	}
	payload = Combine(p.messages, p.files)
	a.remove(userID, p)
	return payload, true
}

// Cancel discards the user's batch without dispatching, cancelling any
// stray timer. Reports whether a batch existed.
func (a *Accumulator) Cancel(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, exists := a.users[userID]
	if !exists {
		return false
	}
	a.remove(userID, p)
	return true
}

// Size reports the user's accumulated item counts and mode.
func (a *Accumulator) Size(userID int64) (messages, files int, explicit bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, exists := a.users[userID]
	if !exists {
		return 0, 0, false
	}
	return len(p.messages), len(p.files), p.explicit
}

// SweepStale removes batches older than the staleness threshold
// regardless of mode, so abandoned accumulations cannot hold memory
// forever. Returns the number removed.
func (a *Accumulator) SweepStale() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.staleAfter <= 0 {
		return 0
	}
	cutoff := a.now().Add(-a.staleAfter)
	removed := 0
	for userID, p := range a.users {
		if p.createdAt.Before(cutoff) {
			a.remove(userID, p)
			removed++
			a.metrics.BatchesSweptStale.Inc()
			a.logger.Info("stale batch discarded", "user_id", userID,
				"messages", len(p.messages), "files", len(p.files))
		}
	}
	return removed
}

// pending returns (creating if needed) the user's batch. Caller holds
// the lock.
func (a *Accumulator) pending(userID int64) *pending {
	p, ok := a.users[userID]
	if !ok {
		p = &pending{createdAt: a.now()}
		a.users[userID] = p
	}
	return p
}

// restartTimer arms (or re-arms) the debounce timer. The generation
// counter makes a superseded timer's late firing a no-op. Caller holds
// the lock.
func (a *Accumulator) restartTimer(userID int64, p *pending) {
	a.stopTimer(p)
	gen := p.gen
	p.timer = time.AfterFunc(a.delay, func() {
		a.fire(userID, gen)
	})
}

// stopTimer cancels the current timer and bumps the generation so an
// already-fired callback cannot dispatch. Caller holds the lock.
func (a *Accumulator) stopTimer(p *pending) {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}

// remove deletes the batch, cancelling its timer. Caller holds the lock.
func (a *Accumulator) remove(userID int64, p *pending) {
	a.stopTimer(p)
	delete(a.users, userID)
}

// fire runs when a debounce timer elapses. It dispatches only if the
// batch still exists, is still in debounce mode, and the timer was not
// superseded.
func (a *Accumulator) fire(userID int64, gen uint64) {
	a.mu.Lock()
	p, exists := a.users[userID]
	if !exists || p.explicit || p.gen != gen {
		a.mu.Unlock()
		return
	}
	payload := Combine(p.messages, p.files)
	a.remove(userID, p)
	a.mu.Unlock()

	// Dispatch outside the lock; the bridge call can take minutes.
	a.dispatch(userID, payload)
}

// Combine renders a batch as one payload: messages joined in arrival
// order by blank lines, then each file as a delimited block.
func Combine(messages []string, files []File) string {
	var b strings.Builder
	b.WriteString(strings.Join(messages, "\n\n"))
	for _, f := range files {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("=== File: ")
		b.WriteString(f.Name)
		b.WriteString(" ===\n")
		b.WriteString(f.Content)
		b.WriteString("\n=== End of file ===")
	}
	return b.String()
}
