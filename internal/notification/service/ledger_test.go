package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"notifyhub/backend/internal/notification/domain"
)

type memNotificationRepo struct {
	mu      sync.Mutex
	items   map[string]*domain.Notification
	fail    error
	lastIDs []string
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{items: make(map[string]*domain.Notification)}
}

func (m *memNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	cp := *n
	m.items[n.ID] = &cp
	return nil
}

func (m *memNotificationRepo) filter(userID string, keep func(*domain.Notification) bool) []*domain.Notification {
	var out []*domain.Notification
	for _, n := range m.items {
		if n.UserID == userID && keep(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memNotificationRepo) ListUnread(_ context.Context, userID string, limit int) ([]*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(userID, func(n *domain.Notification) bool { return !n.Read })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memNotificationRepo) List(_ context.Context, userID string, status domain.Status, limit int) ([]*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(userID, func(n *domain.Notification) bool {
		switch status {
		case domain.StatusRead:
			return n.Read
		case domain.StatusUnread:
			return !n.Read
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memNotificationRepo) MarkRead(_ context.Context, userID string, ids []string, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastIDs = ids
	var n int64
	for _, id := range ids {
		if it, ok := m.items[id]; ok && it.UserID == userID && !it.Read {
			it.Read = true
			n++
		}
	}
	return n, nil
}

func (m *memNotificationRepo) MarkAllRead(_ context.Context, userID string, _ time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.items {
		if it.UserID == userID && !it.Read {
			it.Read = true
			n++
		}
	}
	return n, n, nil
}

// steppingClock returns strictly increasing times so ordering is deterministic.
func steppingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestLedger() (*Ledger, *memNotificationRepo) {
	repo := newMemNotificationRepo()
	l := NewLedger(repo)
	l.now = steppingClock()
	return l, repo
}

func TestLedger_Append(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()

	n, err := l.Append(ctx, "alice", "Hi", "there", json.RawMessage(`{"url":"/x"}`))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := uuid.Parse(n.ID); err != nil {
		t.Errorf("id %q is not a uuid", n.ID)
	}
	if n.Read {
		t.Error("new notification must be unread")
	}
	if n.CreatedAt.IsZero() {
		t.Error("CreatedAt must be server-assigned")
	}
	if len(repo.items) != 1 {
		t.Errorf("stored = %d, want 1", len(repo.items))
	}

	n, err = l.Append(ctx, "alice", "No meta", "", json.RawMessage("null"))
	if err != nil {
		t.Fatalf("Append null meta: %v", err)
	}
	if n.Meta != nil {
		t.Errorf("null meta should be dropped, got %s", n.Meta)
	}
}

func TestLedger_AppendValidation(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	cases := []struct {
		name, user, title string
		meta              json.RawMessage
	}{
		{"missing user", "", "T", nil},
		{"blank user", "  ", "T", nil},
		{"missing title", "alice", "", nil},
		{"bad meta", "alice", "T", json.RawMessage(`{nope`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.Append(ctx, tc.user, tc.title, "", tc.meta); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("want ErrValidation, got %v", err)
			}
		})
	}
	if len(repo.items) != 0 {
		t.Errorf("validation failures must not persist, stored %d", len(repo.items))
	}
}

func TestLedger_AppendStoreFailure(t *testing.T) {
	l, repo := newTestLedger()
	repo.fail = errors.New("db down")
	_, err := l.Append(context.Background(), "alice", "T", "", nil)
	if err == nil || errors.Is(err, domain.ErrValidation) {
		t.Fatalf("store failure should surface as a non-validation error, got %v", err)
	}
}

func TestLedger_ListUnreadOrderAndCap(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	for i := 0; i < MaxUnread+5; i++ {
		if _, err := l.Append(ctx, "alice", "T", "", nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	_, _ = l.Append(ctx, "bob", "T", "", nil)

	list, err := l.ListUnread(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListUnread: %v", err)
	}
	if len(list) != MaxUnread {
		t.Fatalf("len = %d, want %d", len(list), MaxUnread)
	}
	for i := 1; i < len(list); i++ {
		if !list[i-1].CreatedAt.Before(list[i].CreatedAt) {
			t.Fatalf("unread list not ascending at %d", i)
		}
	}
	if big, _ := l.ListUnread(ctx, "alice", 500); len(big) != MaxUnread {
		t.Errorf("limit above cap returned %d", len(big))
	}
}

func TestLedger_ListByStatus(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	a, _ := l.Append(ctx, "alice", "A", "", nil)
	_, _ = l.Append(ctx, "alice", "B", "", nil)
	if _, err := l.MarkRead(ctx, "alice", []string{a.ID}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	all, err := l.List(ctx, "alice", "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Title != "B" {
		t.Errorf("List(all) = %d items, first %q; want 2 newest-first", len(all), all[0].Title)
	}
	read, _ := l.List(ctx, "alice", "read", 10)
	if len(read) != 1 || read[0].ID != a.ID {
		t.Errorf("List(read) = %+v", read)
	}
	unread, _ := l.List(ctx, "alice", "unread", 10)
	if len(unread) != 1 || unread[0].Title != "B" {
		t.Errorf("List(unread) = %+v", unread)
	}
	if _, err := l.List(ctx, "alice", "archived", 10); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("invalid status: want ErrValidation, got %v", err)
	}
}

func TestLedger_MarkReadOwnership(t *testing.T) {
	l, repo := newTestLedger()
	ctx := context.Background()
	mine, _ := l.Append(ctx, "alice", "mine", "", nil)
	theirs, _ := l.Append(ctx, "bob", "theirs", "", nil)

	n, err := l.MarkRead(ctx, "alice", []string{mine.ID, theirs.ID, "not-a-uuid", mine.ID})
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if repo.items[theirs.ID].Read {
		t.Error("another user's notification must not be marked read")
	}
	if !repo.items[mine.ID].Read {
		t.Error("own notification should be read")
	}
	if len(repo.lastIDs) != 2 {
		t.Errorf("repo received %v, want malformed and duplicate ids dropped", repo.lastIDs)
	}

	if n, err := l.MarkRead(ctx, "alice", []string{"junk"}); err != nil || n != 0 {
		t.Errorf("all-malformed ids = %d, %v; want 0, nil", n, err)
	}
	if _, err := l.MarkRead(ctx, "alice", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty ids: want ErrValidation, got %v", err)
	}
}

func TestLedger_MarkAllRead(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	_, _ = l.Append(ctx, "alice", "1", "", nil)
	_, _ = l.Append(ctx, "alice", "2", "", nil)
	_, _ = l.Append(ctx, "bob", "3", "", nil)

	matched, modified, err := l.MarkAllRead(ctx, "alice")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if matched != 2 || modified != 2 {
		t.Errorf("MarkAllRead = %d/%d, want 2/2", matched, modified)
	}
	unread, _ := l.ListUnread(ctx, "alice", 0)
	if len(unread) != 0 {
		t.Errorf("alice unread = %d, want 0", len(unread))
	}
	bobs, _ := l.ListUnread(ctx, "bob", 0)
	if len(bobs) != 1 {
		t.Errorf("bob unread = %d, want 1", len(bobs))
	}
}
