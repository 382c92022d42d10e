// Package timeouts defines shared timeout constants used across metas
// processes so server, store and broker limits stay discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Request caps the time a single API request may spend in the service.
const Request = 10 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// NATSConnect caps the wait when connecting to the optional NATS server.
const NATSConnect = 2 * time.Second

// WebsocketWrite caps a single event frame write to a subscriber.
const WebsocketWrite = 5 * time.Second

// SQLiteBusy is the busy_timeout applied to SQLite connections.
const SQLiteBusy = 5 * time.Second
