package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Dependency ping timeout at startup
const PingTimeout = 5 * time.Second

// Pairing code allocation
const (
	PairingCodeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	PairingCodeLength      = 8
	PairingCodeMaxAttempts = 10
)

// WebSocket transport
const (
	WSMaxMessageBytes = 64 * 1024
	WSPongWait        = 60 * time.Second
	WSPingInterval    = 30 * time.Second
	WSWriteWait       = 10 * time.Second
	WSSendBuffer      = 64
)

// Backend release is best-effort and bounded
const BackendReleaseTimeout = 10 * time.Second

// Broker action queue depth
const BrokerQueueSize = 256

// Audit writer buffer
const AuditBufferSize = 512
