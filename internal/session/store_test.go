package session

import (
	"testing"
	"time"

	"github.com/agentrelay/agentrelay/internal/errors"
)

const user = int64(7)

// newTestStore returns a store with an adjustable clock.
func newTestStore(maxPerUser int, ttl time.Duration) (*Store, *time.Time) {
	s := NewStore(maxPerUser, ttl, nil, nil, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCreateSwitchList(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	if _, err := s.Create(user, "work", false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(user, "play", false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Switch(user, "play"); err != nil {
		t.Fatalf("Switch: %v", err)
	}

	infos, err := s.List(user)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(infos))
	}
	for _, info := range infos {
		if info.Name == "play" && !info.Active {
			t.Errorf("play should be active after Switch")
		}
		if info.Name == "work" && info.Active {
			t.Errorf("work should not be active")
		}
	}
}

func TestCreateRejectsBadNames(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	for _, name := range []string{"has space", "semi;colon", "x/y", "", "this-name-is-way-way-way-too-long-to-pass"} {
		if name == "" {
			continue // empty means auto-generate
		}
		if _, err := s.Create(user, name, false); !errors.Is(err, errors.ErrInvalidSessionName) {
			t.Errorf("Create(%q) err = %v, want ErrInvalidSessionName", name, err)
		}
	}
}

func TestCreateDuplicate(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	if _, err := s.Create(user, "dup", false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(user, "dup", false); !errors.Is(err, errors.ErrSessionExists) {
		t.Errorf("err = %v, want ErrSessionExists", err)
	}
}

func TestAutoGeneratedNames(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	first, err := s.Create(user, "", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Name != "session-1" {
		t.Errorf("first auto name = %q, want session-1", first.Name)
	}

	second, _ := s.Create(user, "", false)
	if second.Name != "session-2" {
		t.Errorf("second auto name = %q, want session-2", second.Name)
	}

	// Deleting session-1 frees the smallest N.
	if err := s.Delete(user, "session-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	third, _ := s.Create(user, "", false)
	if third.Name != "session-1" {
		t.Errorf("auto name after delete = %q, want session-1", third.Name)
	}
}

func TestEvictionPrefersNonActiveLRU(t *testing.T) {
	s, now := newTestStore(3, time.Hour)

	s.Create(user, "a", true)
	*now = now.Add(time.Minute)
	s.Create(user, "b", false)
	*now = now.Add(time.Minute)
	s.Create(user, "c", false)
	*now = now.Add(time.Minute)

	// "a" is the global LRU but also active; "b" must be evicted.
	if _, err := s.Create(user, "d", false); err != nil {
		t.Fatalf("Create at capacity: %v", err)
	}

	infos, _ := s.List(user)
	names := make(map[string]bool)
	for _, info := range infos {
		names[info.Name] = true
	}
	if names["b"] {
		t.Errorf("LRU non-active session b should have been evicted")
	}
	if !names["a"] || !names["c"] || !names["d"] {
		t.Errorf("unexpected survivors: %v", names)
	}
}

func TestEvictionNeverRemovesSoleSession(t *testing.T) {
	s, _ := newTestStore(1, time.Hour)

	if _, err := s.Create(user, "only", true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(user, "another", false); !errors.Is(err, errors.ErrSessionCapacity) {
		t.Errorf("err = %v, want ErrSessionCapacity", err)
	}

	infos, _ := s.List(user)
	if len(infos) != 1 || infos[0].Name != "only" {
		t.Errorf("sole session should survive, got %v", infos)
	}
}

func TestLRUFallbackWhenAllCandidatesActive(t *testing.T) {
	// Degenerate store: the only session is the active one, so the
	// non-active scan finds nothing and the global scan is the fallback.
	s, _ := newTestStore(5, time.Hour)
	s.Create(user, "solo", true)

	s.mu.Lock()
	us := s.users[user]
	if got := s.lruName(us, true); got != "" {
		t.Errorf("lruName excluding active = %q, want empty", got)
	}
	if got := s.lruName(us, false); got != "solo" {
		t.Errorf("global lruName = %q, want solo", got)
	}
	s.mu.Unlock()
}

func TestDeleteActivePromotesMostRecent(t *testing.T) {
	s, now := newTestStore(10, time.Hour)

	s.Create(user, "old", false)
	*now = now.Add(time.Minute)
	s.Create(user, "mid", false)
	*now = now.Add(time.Minute)
	s.Create(user, "cur", true)

	if err := s.Delete(user, "cur"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := s.Active(user); got != "mid" {
		t.Errorf("Active = %q, want mid (most recently used survivor)", got)
	}
}

func TestDeleteLastSessionRestoresPlaceholder(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	s.Create(user, "gone", true)
	if err := s.Delete(user, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := s.Active(user); got != DefaultName {
		t.Errorf("Active = %q, want %q", got, DefaultName)
	}
}

func TestExpireIdle(t *testing.T) {
	s, now := newTestStore(10, 10*time.Minute)

	s.Create(user, "stale", true)
	*now = now.Add(8 * time.Minute)
	s.Create(user, "fresh", false)
	*now = now.Add(5 * time.Minute)

	// "stale" is 13m idle, "fresh" 5m.
	if removed := s.ExpireIdle(); removed != 1 {
		t.Fatalf("ExpireIdle removed %d, want 1", removed)
	}

	infos, _ := s.List(user)
	if len(infos) != 1 || infos[0].Name != "fresh" {
		t.Fatalf("survivors = %v, want only fresh", infos)
	}
	if got := s.Active(user); got != "fresh" {
		t.Errorf("active should be promoted to fresh, got %q", got)
	}
}

func TestExpireIdleRemovesAllAndOnlyStale(t *testing.T) {
	s, now := newTestStore(10, time.Hour)

	s.Create(user, "ancient", false)
	*now = now.Add(2 * time.Hour)
	s.Create(user, "recent", true)

	if removed := s.ExpireIdle(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if removed := s.ExpireIdle(); removed != 0 {
		t.Errorf("second sweep removed = %d, want 0", removed)
	}
}

func TestResolveCreatesOnDemand(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	sess, err := s.Resolve(user, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sess.Name != DefaultName {
		t.Errorf("implicit session name = %q, want %q", sess.Name, DefaultName)
	}
	if got := s.Active(user); got != DefaultName {
		t.Errorf("Active = %q", got)
	}
}

func TestSaveAndClearToken(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	s.Create(user, "tok", true)
	s.SaveToken(user, "tok", "agent-session-id-1")

	sess, err := s.Resolve(user, "tok")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sess.AgentSessionID != "agent-session-id-1" {
		t.Errorf("AgentSessionID = %q", sess.AgentSessionID)
	}

	s.ClearToken(user, "tok")
	sess, _ = s.Resolve(user, "tok")
	if sess.AgentSessionID != "" {
		t.Errorf("AgentSessionID = %q after ClearToken, want empty", sess.AgentSessionID)
	}
}

func TestSaveTokenEmptyKeepsPrior(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	s.Create(user, "tok", true)
	s.SaveToken(user, "tok", "first")
	s.SaveToken(user, "tok", "")

	sess, _ := s.Resolve(user, "tok")
	if sess.AgentSessionID != "first" {
		t.Errorf("AgentSessionID = %q, want first", sess.AgentSessionID)
	}
}

func TestAllowListAuthorization(t *testing.T) {
	s := NewStore(10, time.Hour, []int64{1, 2}, nil, nil)

	if !s.Authorized(1) || !s.Authorized(2) {
		t.Errorf("listed users should be authorized")
	}
	if s.Authorized(3) {
		t.Errorf("unlisted user should not be authorized")
	}

	if _, err := s.Create(3, "x", false); !errors.Is(err, errors.ErrUnauthorized) {
		t.Errorf("Create err = %v, want ErrUnauthorized", err)
	}
	if _, err := s.List(3); !errors.Is(err, errors.ErrUnauthorized) {
		t.Errorf("List err = %v, want ErrUnauthorized", err)
	}
}

func TestEmptyAllowListPermitsAll(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	if !s.Authorized(999999) {
		t.Errorf("empty allow-list should permit all users")
	}
}
