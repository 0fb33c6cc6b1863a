package monitor

import "time"

// Status is a point-in-time health snapshot. OutboxOldestPending surfaces
// how long the oldest staged event has been waiting for redelivery, so an
// operator watching /health can tell a slow replay cron apart from a
// healthy, empty outbox without reading logs.
type Status struct {
	PostgreSQL          bool      `json:"postgresql"`
	Redis               bool      `json:"redis"`
	Buffer              bool      `json:"buffer"`
	BufferSize          int       `json:"buffer_size"`
	OutboxOldestPending time.Time `json:"outbox_oldest_pending,omitempty"`
	// PoolAcquiredConns/PoolIdleConns surface pgxpool's own saturation
	// counters, so a write-heavy burst of commands that's exhausting the
	// pool shows up on /health before commits start failing with
	// connection-acquire timeouts.
	PoolAcquiredConns int32 `json:"pool_acquired_conns"`
	PoolIdleConns     int32 `json:"pool_idle_conns"`
	// CacheMisses is go-redis's own cumulative PoolStats.Misses for the
	// record cache client: how often no idle connection was free in its
	// pool. It does not count cache-key misses.
	CacheMisses uint32    `json:"cache_misses"`
	LastCheck   time.Time `json:"last_check"`
}
