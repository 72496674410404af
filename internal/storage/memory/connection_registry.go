package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
)

// ConnectionRegistry keeps realtime subscribers in process memory.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]broadcast.Connection
}

// NewConnectionRegistry constructs an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[string]broadcast.Connection)}
}

// Add inserts conn unless the ID is already present.
func (r *ConnectionRegistry) Add(_ context.Context, conn broadcast.Connection) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID]; ok {
		return false, nil
	}
	r.conns[conn.ID] = conn
	return true, nil
}

// Remove deletes the connection if present.
func (r *ConnectionRegistry) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	return nil
}

// List returns a copy of all connections ordered by establishment time.
func (r *ConnectionRegistry) List(context.Context) ([]broadcast.Connection, error) {
	r.mu.RLock()
	out := make([]broadcast.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].EstablishedAt.Equal(out[j].EstablishedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EstablishedAt.Before(out[j].EstablishedAt)
	})
	return out, nil
}
