package config

import "time"

// HTTP server timeouts
const (
	ServerReadHeaderTimeout = 10 * time.Second
	ServerIdleTimeout       = 120 * time.Second
	ServerShutdownTimeout   = 30 * time.Second
	ServerRequestTimeout    = 30 * time.Second
)

// Pair codes
const (
	PairCodeAlphabet       = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	PairCodeLength         = 6
	PairCodeMaxGenAttempts = 10
)

// Lower bound for MAX_MESSAGE_BYTES so handshake frames always fit.
const MinMessageBytes = 1024

// Heartbeat for the ops event stream
const EventStreamHeartbeat = 30 * time.Second

// Buffer sizes for event fan-out
const (
	EventSubscriberBuffer = 100
	EventSinkBuffer       = 1024
)

// Close grace for flushing queued frames before the close handshake
const CloseFlushTimeout = 2 * time.Second
