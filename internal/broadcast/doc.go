// Package broadcast owns the realtime subscriber registry and fans progress
// events out to every live connection. Delivery failures are isolated per
// connection: a connection confirmed gone is unregistered, any other failure
// is logged and the connection kept.
package broadcast
