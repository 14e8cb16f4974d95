// Package janitor runs the periodic sweeps that keep volatile state
// bounded: idle session expiry, stale batch removal, and expired
// confirmation cleanup.
package janitor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentrelay/agentrelay/internal/batch"
	"github.com/agentrelay/agentrelay/internal/confirm"
	"github.com/agentrelay/agentrelay/internal/logging"
	"github.com/agentrelay/agentrelay/internal/session"
)

// Janitor schedules the sweeps on a shared cron runner.
type Janitor struct {
	cron   *cron.Cron
	logger *logging.Logger
}

// New creates a Janitor sweeping every interval. All three stores are
// required.
func New(interval time.Duration, store *session.Store, batches *batch.Accumulator, confirms *confirm.Manager, logger *logging.Logger) (*Janitor, error) {
	if store == nil || batches == nil || confirms == nil {
		panic("janitor: all stores must be non-nil")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if interval < time.Second {
		interval = time.Second
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	_, err := c.AddFunc(spec, func() {
		expired := store.ExpireIdle()
		stale := batches.SweepStale()
		dropped := confirms.Sweep()
		if expired+stale+dropped > 0 {
			logger.Info("sweep complete",
				"sessions_expired", expired,
				"batches_stale", stale,
				"confirmations_expired", dropped)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling sweep: %w", err)
	}

	return &Janitor{cron: c, logger: logger}, nil
}

// Start begins the sweep schedule in its own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
