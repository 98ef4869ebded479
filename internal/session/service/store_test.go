package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"notifyhub/backend/internal/security"
	"notifyhub/backend/internal/session/domain"
	"notifyhub/backend/internal/session/repository"
)

// memSessionRepo mirrors the Postgres conditional-update semantics under a single mutex.
type memSessionRepo struct {
	mu       sync.Mutex
	byHash   map[string]*domain.Session
	failNext error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byHash: make(map[string]*domain.Session)}
}

func (m *memSessionRepo) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	if _, ok := m.byHash[s.TokenHash]; ok {
		return errors.New("duplicate token hash")
	}
	cp := *s
	m.byHash[s.TokenHash] = &cp
	return nil
}

func (m *memSessionRepo) Rotate(_ context.Context, p repository.RotateParams) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byHash[p.OldHash]
	if !ok || !old.Active(p.Now) {
		return nil, nil
	}
	at := p.Now
	old.RevokedAt = &at
	next := &domain.Session{
		ID: p.NewID, UserID: old.UserID, Username: old.Username, TokenHash: p.NewHash,
		UserAgent: p.Client.UserAgent, IP: p.Client.IP, ExpiresAt: p.ExpiresAt, CreatedAt: p.Now,
	}
	cp := *next
	m.byHash[p.NewHash] = &cp
	return next, nil
}

func (m *memSessionRepo) RevokeByHash(_ context.Context, hash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byHash[hash]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &at
	return true, nil
}

func (m *memSessionRepo) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.byHash {
		if s.UserID == userID && s.Active(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessionRepo) get(value string) *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byHash[security.HashRefreshToken(value)]
}

var client = domain.ClientInfo{UserAgent: "test-agent", IP: "127.0.0.1"}

func TestStore_Issue(t *testing.T) {
	repo := newMemSessionRepo()
	st := NewStore(repo, 0)
	if st.TTL() != DefaultTTL {
		t.Errorf("TTL = %v, want %v", st.TTL(), DefaultTTL)
	}

	iss, err := st.Issue(context.Background(), "alice", "alice", client)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if iss.Value == "" {
		t.Fatal("Issue returned empty value")
	}
	if iss.Session.TokenHash == iss.Value {
		t.Error("raw value must not be stored as the hash")
	}
	stored := repo.get(iss.Value)
	if stored == nil {
		t.Fatal("session not persisted under the value's hash")
	}
	if stored.UserAgent != "test-agent" || stored.IP != "127.0.0.1" {
		t.Errorf("client info not recorded: %+v", stored)
	}
	if d := time.Until(stored.ExpiresAt); d < DefaultTTL-time.Minute || d > DefaultTTL {
		t.Errorf("expires in %v, want ~%v", d, DefaultTTL)
	}
}

func TestStore_IssueEmptyUser(t *testing.T) {
	st := NewStore(newMemSessionRepo(), time.Hour)
	if _, err := st.Issue(context.Background(), "", "", client); !errors.Is(err, ErrEmptyUser) {
		t.Errorf("Issue empty user: want ErrEmptyUser, got %v", err)
	}
}

func TestStore_IssueRepoError(t *testing.T) {
	repo := newMemSessionRepo()
	repo.failNext = errors.New("db down")
	st := NewStore(repo, time.Hour)
	if _, err := st.Issue(context.Background(), "alice", "alice", client); err == nil {
		t.Fatal("Issue should surface repository errors")
	}
}

func TestStore_Rotate(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	st := NewStore(repo, time.Hour)

	first, err := st.Issue(ctx, "alice", "Alice", client)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := st.Rotate(ctx, first.Value, client)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if second == nil {
		t.Fatal("Rotate of an active session returned nil")
	}
	if second.Value == first.Value {
		t.Error("rotation must mint a fresh value")
	}
	if second.Session.UserID != "alice" || second.Session.Username != "Alice" {
		t.Errorf("rotated session user = %q/%q", second.Session.UserID, second.Session.Username)
	}
	if repo.get(first.Value).RevokedAt == nil {
		t.Error("old session should be revoked")
	}
	if !repo.get(second.Value).Active(time.Now()) {
		t.Error("new session should be active")
	}

	again, err := st.Rotate(ctx, first.Value, client)
	if err != nil {
		t.Fatalf("Rotate revoked: %v", err)
	}
	if again != nil {
		t.Error("rotating a revoked value must return nil")
	}
}

func TestStore_RotateUnknownOrExpired(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	st := NewStore(repo, time.Hour)

	if got, err := st.Rotate(ctx, "never-issued", client); err != nil || got != nil {
		t.Errorf("Rotate unknown = %v, %v; want nil, nil", got, err)
	}
	if got, err := st.Rotate(ctx, "", client); err != nil || got != nil {
		t.Errorf("Rotate empty = %v, %v; want nil, nil", got, err)
	}

	iss, err := st.Issue(ctx, "bob", "bob", client)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	st.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if got, err := st.Rotate(ctx, iss.Value, client); err != nil || got != nil {
		t.Errorf("Rotate expired = %v, %v; want nil, nil", got, err)
	}
}

func TestStore_ConcurrentRotateSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	st := NewStore(repo, time.Hour)
	iss, err := st.Issue(ctx, "alice", "alice", client)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make(chan *Issued, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := st.Rotate(ctx, iss.Value, client)
			if err != nil {
				t.Errorf("Rotate: %v", err)
				return
			}
			results <- got
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for r := range results {
		if r != nil {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("concurrent rotations produced %d new sessions, want 1", winners)
	}
}

func TestStore_RevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	st := NewStore(repo, time.Hour)
	iss, err := st.Issue(ctx, "alice", "alice", client)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := st.Revoke(ctx, iss.Value); err != nil {
			t.Fatalf("Revoke #%d: %v", i+1, err)
		}
	}
	if err := st.Revoke(ctx, "unknown"); err != nil {
		t.Errorf("Revoke unknown: %v", err)
	}
	if err := st.Revoke(ctx, ""); err != nil {
		t.Errorf("Revoke empty: %v", err)
	}
	if got, _ := st.Rotate(ctx, iss.Value, client); got != nil {
		t.Error("revoked session must not rotate")
	}
}

func TestStore_ListActive(t *testing.T) {
	ctx := context.Background()
	st := NewStore(newMemSessionRepo(), time.Hour)
	a1, _ := st.Issue(ctx, "alice", "alice", client)
	_, _ = st.Issue(ctx, "alice", "alice", client)
	_, _ = st.Issue(ctx, "bob", "bob", client)
	_ = st.Revoke(ctx, a1.Value)

	list, err := st.ListActive(ctx, "alice")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListActive(alice) = %d sessions, want 1", len(list))
	}
}
