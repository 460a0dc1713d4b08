package schema

import "time"

// StatusSnapshot is the live-state record an optional provider hands to the
// prompt composer. Nil pointer fields mean "source unavailable" and their
// line is omitted from the composed status block.
type StatusSnapshot struct {
	Identity      string
	Connected     *bool
	Sessions      *int
	Uptime        time.Duration
	HeartbeatLive *bool
	ScheduledJobs *int
}

// StatusProvider returns a point-in-time snapshot. Implementations must be
// safe to call from any goroutine.
type StatusProvider func() StatusSnapshot
