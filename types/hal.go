package types

// ------------------------
// Common HAL state (retained)
// ------------------------

type HALState struct {
	Level  string `json:"level"`           // "idle", "ready", "stopped"
	Status string `json:"status"`          // freeform short code
	Drops  uint32 `json:"drops,omitempty"` // device events lost to a full queue
	TSms   int64  `json:"ts_ms"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TSms  int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"` // machine-readable short code
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Heartbeat is published on sys/heartbeat.
type Heartbeat struct {
	Seq      uint32 `json:"seq"`
	UptimeMs int64  `json:"uptime_ms"`
}

// HeartbeatConfig is accepted on config/heartbeat.
type HeartbeatConfig struct {
	IntervalMs uint32 `json:"interval_ms"`
}
