package copilot

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh identifier for a stored entry. UUIDv7 ids are
// unique across processes and sort roughly by creation time, which keeps
// store scans in insertion order.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns the current time as Unix seconds, the granularity
// entry timestamps are stored at.
func NowUnix() int64 {
	return time.Now().Unix()
}
