package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Upper bound on waiting for the queue lock before a join is reported as transient.
const QueueLockTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = time.Minute

// Websocket keepalive
const (
	WSWriteWait  = 10 * time.Second
	WSPongWait   = 60 * time.Second
	WSPingPeriod = 30 * time.Second
	WSReadLimit  = 64 << 10
)

const MaxChatMessageLength = 2000

// Default rate limiting
const DefaultRateLimitPerMin = 30
