package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type mockEmitter struct {
	mu      sync.Mutex
	events  []*Event
	ctxs    []context.Context
	emitErr error
	delay   time.Duration
}

func (m *mockEmitter) Emit(ctx context.Context, event *Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.ctxs = append(m.ctxs, ctx)
	return m.emitErr
}

func (m *mockEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	EmitAsync(nil, zap.NewNop(), NewEvent(EventPushSent, "u1", "n1", nil))

	m := &mockEmitter{}
	EmitAsync(m, zap.NewNop(), nil)
	time.Sleep(10 * time.Millisecond)
	if m.count() != 0 {
		t.Errorf("emitted %d events for a nil event, want 0", m.count())
	}
}

func TestEmitAsync_Emits(t *testing.T) {
	m := &mockEmitter{}
	ev := NewEvent(EventDeliveredLive, "u1", "n1", map[string]any{"connections": 2})
	EmitAsync(m, zap.NewNop(), ev)

	waitFor(t, func() bool { return m.count() == 1 })
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[0] != ev {
		t.Error("emitted a different event")
	}
	if _, ok := m.ctxs[0].Deadline(); !ok {
		t.Error("emit context should carry a deadline")
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	m := &mockEmitter{emitErr: errors.New("sink down")}
	EmitAsync(m, nil, NewEvent(EventPushFailed, "u1", "n1", nil))
	waitFor(t, func() bool { return m.count() == 1 })
}

func TestEmitAsync_Concurrent(t *testing.T) {
	m := &mockEmitter{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(m, zap.NewNop(), NewEvent(EventPushSent, "u1", "n1", nil))
		}()
	}
	wg.Wait()
	waitFor(t, func() bool { return m.count() == 50 })
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventPushPruned, "u1", "n1", map[string]any{"endpoint": "https://push.example/1"})
	if ev.Source != SourceServer {
		t.Errorf("Source = %q, want %q", ev.Source, SourceServer)
	}
	if ev.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	var meta map[string]string
	if err := json.Unmarshal(ev.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["endpoint"] != "https://push.example/1" {
		t.Errorf("metadata endpoint = %q", meta["endpoint"])
	}
	if NewEvent(EventPushSent, "u1", "", nil).Metadata != nil {
		t.Error("nil meta should leave Metadata empty")
	}
}

func TestMulti(t *testing.T) {
	a := &mockEmitter{}
	b := &mockEmitter{emitErr: errors.New("b failed")}
	em := Multi(a, nil, b)

	err := em.Emit(context.Background(), NewEvent(EventPushSent, "u1", "n1", nil))
	if err == nil {
		t.Fatal("Emit should return the failing emitter's error")
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", a.count(), b.count())
	}

	if err := Multi().Emit(context.Background(), NewEvent(EventPushSent, "u1", "n1", nil)); err != nil {
		t.Errorf("empty Multi Emit: %v", err)
	}
}
