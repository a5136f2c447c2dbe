package utils

import "time"

// Now returns current time. Replaceable in tests.
var Now = time.Now

// Millis converts a time to Unix milliseconds on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts Unix milliseconds back to a time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// FormatTimestamp formats a timestamp in ISO 8601 format.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
