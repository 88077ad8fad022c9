package node

import "time"

// nowMs is the wall-clock reading used for candidate timestamp validation. Isolated here so
// tests can see exactly where the worker reaches for real time.
func nowMs() int64 {
	return time.Now().UnixMilli()
}
