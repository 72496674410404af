// Package realtime provides broadcast transports: an in-process websocket Hub,
// a RedisRelay that routes events to whichever process holds a socket, and a
// CallbackPoster that posts to an external connection-management API.
// A vanished connection is reported as broadcast.ErrGone; the Hub reports
// connections it never held as broadcast.ErrNotHeld.
package realtime
