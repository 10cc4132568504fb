package utils

import "time"

// NowMillis returns the current time in milliseconds since the Unix epoch,
// the timestamp unit of every history entry.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FromMillis converts a millisecond timestamp back to a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
