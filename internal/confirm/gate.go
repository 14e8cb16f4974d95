// Package confirm holds risky commands for user approval before they
// may be dispatched. Each user has at most one pending confirmation;
// entries expire after a fixed timeout and the oldest entry is evicted
// when the store is full.
package confirm

import (
	"strings"
	"sync"
	"time"

	"github.com/agentrelay/agentrelay/internal/logging"
	"github.com/agentrelay/agentrelay/internal/metrics"
)

// Tier is the risk classifier's severity, used only to choose which
// confirmation vocabulary resolves the entry.
type Tier int

const (
	// TierCaution is resolved by a plain affirmative reply.
	TierCaution Tier = iota
	// TierDanger is resolved only by the exact configured phrase.
	TierDanger
)

// String returns the tier's display name.
func (t Tier) String() string {
	if t == TierDanger {
		return "danger"
	}
	return "caution"
}

// Pending is one held command awaiting confirmation.
type Pending struct {
	Command   string
	Tier      Tier
	CreatedAt time.Time
}

// Outcome classifies a resolution attempt.
type Outcome int

const (
	// OutcomeConfirmed means the command may now be dispatched.
	OutcomeConfirmed Outcome = iota
	// OutcomeCancelled means the entry was cleared without dispatch.
	OutcomeCancelled
	// OutcomePending means the reply matched nothing; the entry stays
	// and the caller should remind the user.
	OutcomePending
)

// Resolution vocabularies. Matching is case-insensitive on the trimmed
// reply.
var (
	cancelWords      = []string{"no", "cancel", "abort", "stop", "nevermind", "never mind"}
	affirmativeWords = []string{"yes", "y", "yeah", "yep", "ok", "okay", "sure", "confirm", "do it"}
)

// Manager is the per-user single-slot store of pending confirmations.
// Construct once at startup and inject; safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	pending map[int64]*Pending

	timeout      time.Duration
	maxPending   int
	strictPhrase string

	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewManager creates a Manager. strictPhrase is the exact reply
// required for danger-tier commands.
func NewManager(timeout time.Duration, maxPending int, strictPhrase string, m *metrics.Metrics, logger *logging.Logger) *Manager {
	if maxPending < 1 {
		maxPending = 1
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		pending:      make(map[int64]*Pending),
		timeout:      timeout,
		maxPending:   maxPending,
		strictPhrase: strictPhrase,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// Add stores a pending confirmation for the user, replacing any prior
// one. Expired entries are swept first; if still at capacity the single
// oldest entry (by creation time) is evicted.
func (m *Manager) Add(userID int64, command string, tier Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()

	if _, exists := m.pending[userID]; !exists && len(m.pending) >= m.maxPending {
		m.evictOldestLocked()
	}

	m.pending[userID] = &Pending{
		Command:   command,
		Tier:      tier,
		CreatedAt: m.now(),
	}
}

// Get returns the user's pending confirmation. An entry past the
// timeout is treated as absent and removed on access.
func (m *Manager) Get(userID int64) (*Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[userID]
	if !ok {
		return nil, false
	}
	if m.expiredLocked(p) {
		delete(m.pending, userID)
		m.metrics.ConfirmationsExpired.Inc()
		return nil, false
	}
	copied := *p
	return &copied, true
}

// Contains reports whether the user has a live pending confirmation.
func (m *Manager) Contains(userID int64) bool {
	_, ok := m.Get(userID)
	return ok
}

// Resolve interprets the user's free-text reply against the pending
// entry's tier. Confirmed and cancelled outcomes clear the entry; a
// pending outcome leaves it in place.
func (m *Manager) Resolve(userID int64, reply string) (Pending, Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[userID]
	if !ok || m.expiredLocked(p) {
		delete(m.pending, userID)
		return Pending{}, OutcomeCancelled
	}

	text := strings.ToLower(strings.TrimSpace(reply))

	for _, w := range cancelWords {
		if text == w {
			cleared := *p
			delete(m.pending, userID)
			return cleared, OutcomeCancelled
		}
	}

	switch p.Tier {
	case TierDanger:
		if text == strings.ToLower(m.strictPhrase) {
			cleared := *p
			delete(m.pending, userID)
			return cleared, OutcomeConfirmed
		}
	default:
		for _, w := range affirmativeWords {
			if text == w {
				cleared := *p
				delete(m.pending, userID)
				return cleared, OutcomeConfirmed
			}
		}
	}

	return *p, OutcomePending
}

// Cancel clears the user's pending confirmation without dispatching.
func (m *Manager) Cancel(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.pending[userID]
	delete(m.pending, userID)
	return ok
}

// StrictPhrase returns the configured danger-tier phrase, for prompts.
func (m *Manager) StrictPhrase() string {
	return m.strictPhrase
}

// Sweep removes all expired entries. Returns the number removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

func (m *Manager) sweepLocked() int {
	removed := 0
	for userID, p := range m.pending {
		if m.expiredLocked(p) {
			delete(m.pending, userID)
			removed++
			m.metrics.ConfirmationsExpired.Inc()
		}
	}
	return removed
}

func (m *Manager) expiredLocked(p *Pending) bool {
	return m.timeout > 0 && m.now().Sub(p.CreatedAt) > m.timeout
}

// evictOldestLocked removes the entry with the earliest creation time.
func (m *Manager) evictOldestLocked() {
	var oldestUser int64
	var oldest *Pending
	for userID, p := range m.pending {
		if oldest == nil || p.CreatedAt.Before(oldest.CreatedAt) {
			oldest = p
			oldestUser = userID
		}
	}
	if oldest != nil {
		delete(m.pending, oldestUser)
		m.metrics.ConfirmationsEvicted.Inc()
		m.logger.Info("pending confirmation evicted", "user_id", oldestUser)
	}
}
