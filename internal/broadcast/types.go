package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrGone reports that a connection's transport endpoint no longer exists.
var ErrGone = errors.New("connection gone")

// ErrNotHeld reports that the poster does not hold the connection, which may
// be open on another process. It never marks a connection stale.
var ErrNotHeld = errors.New("connection not held by this process")

// ErrMissingDomain rejects events that do not name a website domain.
var ErrMissingDomain = errors.New("website_domain required")

// EventSitemapUpdate is emitted after a page's links are persisted.
const EventSitemapUpdate = "sitemap_update"

// Connection is one registered realtime subscriber.
type Connection struct {
	ID            string    `json:"connection_id"`
	EstablishedAt time.Time `json:"established_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Environment   string    `json:"environment,omitempty"`
}

// Expired reports whether the connection outlived its registration.
func (c Connection) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ConnectionRegistry stores subscriber connections. Implementations must be
// safe for concurrent use.
type ConnectionRegistry interface {
	// Add inserts conn unless its ID is already registered; it reports whether
	// a new record was written.
	Add(ctx context.Context, conn Connection) (bool, error)
	// Remove deletes the connection; removing an unknown ID is not an error.
	Remove(ctx context.Context, id string) error
	// List returns every registered connection.
	List(ctx context.Context) ([]Connection, error)
}

// Poster delivers one encoded event to one connection. It returns an error
// wrapping ErrGone when the endpoint is confirmed gone and ErrNotHeld when it
// cannot reach the connection from here.
type Poster interface {
	Post(ctx context.Context, connectionID string, data []byte) error
}

// Event is an ephemeral realtime message.
type Event struct {
	Type      string
	Domain    string
	Payload   map[string]any
	Timestamp time.Time
}

type wireEvent struct {
	Type      string         `json:"type"`
	Domain    string         `json:"website_domain"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// MarshalJSON renders the outbound wire form with a unix-seconds timestamp.
func (e Event) MarshalJSON() ([]byte, error) {
	data := e.Payload
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(wireEvent{
		Type:      e.Type,
		Domain:    e.Domain,
		Data:      data,
		Timestamp: e.Timestamp.Unix(),
	})
}

// UnmarshalJSON accepts the wire form, defaulting the type to sitemap_update.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.Type = w.Type
	if e.Type == "" {
		e.Type = EventSitemapUpdate
	}
	e.Domain = w.Domain
	e.Payload = w.Data
	if w.Timestamp != 0 {
		e.Timestamp = time.Unix(w.Timestamp, 0).UTC()
	}
	return nil
}

// Result aggregates per-connection delivery outcomes.
type Result struct {
	Delivered    int `json:"successful_sends"`
	Failed       int `json:"failed_sends"`
	StaleRemoved int `json:"stale_connections_removed"`
}
