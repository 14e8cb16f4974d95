// Package session holds the per-user collections of named agent
// sessions. All state is in-memory and rebuilt from zero on restart.
//
// Each user owns a set of named sessions and exactly one active name.
// The store enforces a per-user capacity with LRU eviction and an idle
// TTL enforced by ExpireIdle, which callers run opportunistically
// before each dispatch.
package session

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/agentrelay/agentrelay/internal/errors"
	"github.com/agentrelay/agentrelay/internal/logging"
	"github.com/agentrelay/agentrelay/internal/metrics"
)

// DefaultName is the session name used before any session exists and
// for implicitly created sessions.
const DefaultName = "default"

// namePattern restricts session names to a short, safe identifier set.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Session is one named, resumable conversation against the agent.
// AgentSessionID is the opaque token the agent returned; empty until
// the first successful invocation.
type Session struct {
	Name           string
	AgentSessionID string
	CreatedAt      time.Time
	LastUsed       time.Time
	Model          string
}

// Info is a Session snapshot plus its active flag, as returned by List.
type Info struct {
	Session
	Active bool
}

// userSessions owns all sessions for one user.
type userSessions struct {
	active   string
	sessions map[string]*Session
}

// Store is the process-wide session registry. Construct once at startup
// and inject; safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	users      map[int64]*userSessions
	maxPerUser int
	ttl        time.Duration
	allowed    map[int64]bool // empty = permit all
	metrics    *metrics.Metrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewStore creates a Store. A nil metrics or logger is replaced with a
// no-op equivalent. An empty allowedUsers list permits all callers.
func NewStore(maxPerUser int, ttl time.Duration, allowedUsers []int64, m *metrics.Metrics, logger *logging.Logger) *Store {
	if maxPerUser < 1 {
		maxPerUser = 1
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	allowed := make(map[int64]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}
	return &Store{
		users:      make(map[int64]*userSessions),
		maxPerUser: maxPerUser,
		ttl:        ttl,
		allowed:    allowed,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Authorized reports whether the user may use the relay.
func (s *Store) Authorized(userID int64) bool {
	if len(s.allowed) == 0 {
		return true
	}
	return s.allowed[userID]
}

// ValidName reports whether name matches the allowed pattern.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Create adds a session for the user. An empty name auto-generates
// "session-N" for the smallest unused N. When at capacity, one eviction
// is attempted first; if none is possible the call fails with a
// capacity error.
func (s *Store) Create(userID int64, name string, setActive bool) (Info, error) {
	if !s.Authorized(userID) {
		return Info{}, errors.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	us := s.user(userID)

	if name == "" {
		name = s.nextAutoName(us)
	} else if !ValidName(name) {
		return Info{}, errors.NewValidationError("session name", name, errors.ErrInvalidSessionName)
	}

	if _, exists := us.sessions[name]; exists {
		return Info{}, fmt.Errorf("%w: %s", errors.ErrSessionExists, name)
	}

	if len(us.sessions) >= s.maxPerUser {
		if !s.evictOne(userID, us) {
			return Info{}, errors.ErrSessionCapacity
		}
	}

	now := s.now()
	sess := &Session{Name: name, CreatedAt: now, LastUsed: now}
	us.sessions[name] = sess
	if setActive || len(us.sessions) == 1 {
		us.active = name
	}

	return Info{Session: *sess, Active: us.active == name}, nil
}

// Switch marks the named session active and refreshes its last-used time.
func (s *Store) Switch(userID int64, name string) error {
	if !s.Authorized(userID) {
		return errors.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	us := s.user(userID)
	sess, ok := us.sessions[name]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, name)
	}

	us.active = name
	sess.LastUsed = s.now()
	return nil
}

// Delete removes the named session. If it was active, the most recently
// used survivor becomes active, or the default placeholder when none
// remain.
func (s *Store) Delete(userID int64, name string) error {
	if !s.Authorized(userID) {
		return errors.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	us := s.user(userID)
	if _, ok := us.sessions[name]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, name)
	}

	delete(us.sessions, name)
	if us.active == name {
		us.active = s.mostRecentName(us)
	}
	return nil
}

// List returns the user's sessions ordered by last use, newest first,
// each flagged whether it is the active one.
func (s *Store) List(userID int64) ([]Info, error) {
	if !s.Authorized(userID) {
		return nil, errors.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	us := s.user(userID)
	out := make([]Info, 0, len(us.sessions))
	for _, sess := range us.sessions {
		out = append(out, Info{Session: *sess, Active: us.active == sess.Name})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out, nil
}

// Active returns the user's active session name. Before any session
// exists this is the default placeholder.
func (s *Store) Active(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user(userID).active
}

// Resolve returns the named session, creating it on demand. An empty
// name resolves the active session. The returned value is a copy; use
// SaveToken / ClearToken / SetModel to mutate.
func (s *Store) Resolve(userID int64, name string) (Session, error) {
	if !s.Authorized(userID) {
		return Session{}, errors.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	us := s.user(userID)
	if name == "" {
		name = us.active
	} else if !ValidName(name) {
		return Session{}, errors.NewValidationError("session name", name, errors.ErrInvalidSessionName)
	}

	if sess, ok := us.sessions[name]; ok {
		return *sess, nil
	}

	// Implicit creation on first message.
	if len(us.sessions) >= s.maxPerUser {
		if !s.evictOne(userID, us) {
			return Session{}, errors.ErrSessionCapacity
		}
	}
	now := s.now()
	sess := &Session{Name: name, CreatedAt: now, LastUsed: now}
	us.sessions[name] = sess
	if len(us.sessions) == 1 || us.active == "" {
		us.active = name
	}
	return *sess, nil
}

// SaveToken records the agent session id after a successful invocation
// and refreshes the session's last-used time.
func (s *Store) SaveToken(userID int64, name, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	us := s.user(userID)
	if sess, ok := us.sessions[name]; ok {
		if token != "" {
			sess.AgentSessionID = token
		}
		sess.LastUsed = s.now()
	}
}

// ClearToken discards the session's agent session id, forcing the next
// invocation to start a fresh conversation under the same name.
func (s *Store) ClearToken(userID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.user(userID).sessions[name]; ok {
		sess.AgentSessionID = ""
	}
}

// SetModel assigns the model used for the named session.
func (s *Store) SetModel(userID int64, name, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.user(userID).sessions[name]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, name)
	}
	sess.Model = model
	return nil
}

// ExpireIdle removes every session idle past the TTL, across all users.
// If a user's active session is removed, the most recently used
// survivor is promoted. Returns the number of sessions removed.
func (s *Store) ExpireIdle() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for userID, us := range s.users {
		for name, sess := range us.sessions {
			if sess.LastUsed.Before(cutoff) {
				delete(us.sessions, name)
				removed++
				s.metrics.SessionsExpired.Inc()
				s.logger.Info("session expired", "user_id", userID, "session", name)
			}
		}
		if _, ok := us.sessions[us.active]; !ok {
			us.active = s.mostRecentName(us)
		}
	}
	return removed
}

// user returns (creating if needed) the per-user set.
func (s *Store) user(userID int64) *userSessions {
	us, ok := s.users[userID]
	if !ok {
		us = &userSessions{active: DefaultName, sessions: make(map[string]*Session)}
		s.users[userID] = us
	}
	return us
}

// evictOne removes the least-recently-used non-active session. When no
// non-active candidate exists it falls back to the global LRU. It never
// evicts the sole remaining session. Reports whether a session was
// removed. Caller holds the lock.
func (s *Store) evictOne(userID int64, us *userSessions) bool {
	if len(us.sessions) <= 1 {
		return false
	}

	victim := s.lruName(us, true)
	if victim == "" {
		// Defensive: every candidate is active. Evict the global LRU.
		victim = s.lruName(us, false)
	}
	if victim == "" {
		return false
	}

	delete(us.sessions, victim)
	if us.active == victim {
		us.active = s.mostRecentName(us)
	}
	s.metrics.SessionsEvicted.Inc()
	s.logger.Info("session evicted", "user_id", userID, "session", victim)
	return true
}

// lruName returns the least-recently-used session name, optionally
// excluding the active one. Caller holds the lock.
func (s *Store) lruName(us *userSessions, excludeActive bool) string {
	var oldest *Session
	for name, sess := range us.sessions {
		if excludeActive && name == us.active {
			continue
		}
		if oldest == nil || sess.LastUsed.Before(oldest.LastUsed) {
			oldest = sess
		}
	}
	if oldest == nil {
		return ""
	}
	return oldest.Name
}

// mostRecentName returns the most-recently-used session name, or the
// default placeholder when none remain. Caller holds the lock.
func (s *Store) mostRecentName(us *userSessions) string {
	var newest *Session
	for _, sess := range us.sessions {
		if newest == nil || sess.LastUsed.After(newest.LastUsed) {
			newest = sess
		}
	}
	if newest == nil {
		return DefaultName
	}
	return newest.Name
}

// nextAutoName returns "session-N" for the smallest unused N.
// Caller holds the lock.
func (s *Store) nextAutoName(us *userSessions) string {
	for n := 1; ; n++ {
		name := fmt.Sprintf("session-%d", n)
		if _, ok := us.sessions[name]; !ok {
			return name
		}
	}
}
