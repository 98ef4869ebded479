package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"notifyhub/backend/internal/db/dbtest"
	"notifyhub/backend/internal/session/domain"
)

func newSession(userID string, now time.Time) *domain.Session {
	return &domain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Username:  userID,
		TokenHash: uuid.New().String(),
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
}

func TestPostgresRepository_RotateAndRevoke(t *testing.T) {
	repo := NewPostgresRepository(dbtest.Open(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := "it-" + uuid.New().String()

	s := newSession(user, now)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	next, err := repo.Rotate(ctx, RotateParams{
		OldHash: s.TokenHash, NewID: uuid.New().String(), NewHash: uuid.New().String(),
		ExpiresAt: now.Add(time.Hour), Now: now,
	})
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if next == nil || next.UserID != user {
		t.Fatalf("Rotate = %+v, want a session for %q", next, user)
	}

	again, err := repo.Rotate(ctx, RotateParams{
		OldHash: s.TokenHash, NewID: uuid.New().String(), NewHash: uuid.New().String(),
		ExpiresAt: now.Add(time.Hour), Now: now,
	})
	if err != nil || again != nil {
		t.Errorf("second Rotate = %v, %v; want nil, nil", again, err)
	}

	ok, err := repo.RevokeByHash(ctx, next.TokenHash, now)
	if err != nil || !ok {
		t.Errorf("RevokeByHash = %v, %v; want true, nil", ok, err)
	}
	ok, err = repo.RevokeByHash(ctx, next.TokenHash, now)
	if err != nil || ok {
		t.Errorf("repeat RevokeByHash = %v, %v; want false, nil", ok, err)
	}

	active, err := repo.ListActiveByUser(ctx, user, now)
	if err != nil {
		t.Fatalf("ListActiveByUser: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active sessions = %d, want 0", len(active))
	}
}

func TestPostgresRepository_ConcurrentRotate(t *testing.T) {
	repo := NewPostgresRepository(dbtest.Open(t))
	ctx := context.Background()
	now := time.Now().UTC()
	s := newSession("it-"+uuid.New().String(), now)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := repo.Rotate(ctx, RotateParams{
				OldHash: s.TokenHash, NewID: uuid.New().String(), NewHash: uuid.New().String(),
				ExpiresAt: now.Add(time.Hour), Now: now,
			})
			if err != nil {
				t.Errorf("Rotate: %v", err)
				return
			}
			if next != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("winners = %d, want 1", winners)
	}
}
