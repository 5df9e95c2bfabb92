package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Millis converts a millisecond count from configuration into a Duration.
// Zero stays zero so callers can treat it as "disabled".
func Millis(ms uint16) time.Duration { return time.Duration(ms) * time.Millisecond }
