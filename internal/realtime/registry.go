package realtime

import (
	"sync"

	"go.uber.org/zap"

	"notifyhub/backend/internal/metrics"
)

// Registry tracks live connections per user. Broadcasts take a read lock and never block on a
// slow peer: a full send queue drops the frame for that connection only.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
	log   *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		conns: make(map[string]map[*Conn]struct{}),
		log:   log.With(zap.String("component", "realtime_registry")),
	}
}

// Register moves an authenticated connection to Active, indexes it under its user and announces
// it to every other connection.
func (r *Registry) Register(c *Conn) error {
	if err := c.transition(StateActive); err != nil {
		return err
	}
	userID := c.UserID()

	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[userID] = set
	}
	set[c] = struct{}{}
	r.mu.Unlock()

	metrics.ActiveConnections.Inc()
	r.log.Debug("connection registered", zap.String("user_id", userID))
	r.BroadcastExcept(c, EventPresence, Presence{UserID: userID, Username: c.Username(), Status: PresenceOnline})
	return nil
}

// Unregister removes c. Returns false if c was not registered; presence-offline is only
// announced for connections that were.
func (r *Registry) Unregister(c *Conn) bool {
	userID := c.UserID()

	r.mu.Lock()
	set, ok := r.conns[userID]
	if ok {
		_, ok = set[c]
		delete(set, c)
		if len(set) == 0 {
			delete(r.conns, userID)
		}
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	metrics.ActiveConnections.Dec()
	r.log.Debug("connection unregistered", zap.String("user_id", userID))
	r.BroadcastExcept(c, EventPresence, Presence{UserID: userID, Username: c.Username(), Status: PresenceOffline})
	return true
}

// BroadcastTo queues event for every live connection of userID and returns how many accepted it.
// A zero return means the user has no reachable connection right now.
func (r *Registry) BroadcastTo(userID, event string, payload any) int {
	frame, err := Encode(event, payload)
	if err != nil {
		r.log.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for c := range r.conns[userID] {
		if c.enqueue(frame) {
			n++
		} else {
			r.log.Warn("send queue full or closed; frame dropped",
				zap.String("user_id", userID), zap.String("event", event))
		}
	}
	return n
}

// BroadcastExcept queues event for every registered connection other than skip.
func (r *Registry) BroadcastExcept(skip *Conn, event string, payload any) int {
	frame, err := Encode(event, payload)
	if err != nil {
		r.log.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		for c := range set {
			if c != skip && c.enqueue(frame) {
				n++
			}
		}
	}
	return n
}

// Count returns the number of live connections for userID.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// Len returns the total number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// CloseAll closes every registered connection with code. Each connection's own handler
// unregisters it once its reader exits.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	all := make([]*Conn, 0)
	for _, set := range r.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		c.Close(code, reason)
	}
}
