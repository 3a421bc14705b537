package chatengine

import "time"

// nowUnix returns the current Unix timestamp in seconds, used for the
// `created` field on response objects and chunks (spec.md §6).
func nowUnix() int64 {
	return time.Now().Unix()
}
