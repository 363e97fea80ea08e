// Package watcher is the producer side of the display pipeline.
//
// A Watcher holds one connection to a stream.Source and turns every item
// into a High priority, alerting event on the queue. A rate limit pauses
// the watcher for the configured cooldown; any other fault ends Run, and
// the supervisor starts a fresh Watcher on its next tick. The watcher never
// retries a failed connection itself.
//
// FetchStatusSummary is the status query the supervisor uses for idle
// filler: the tracked account's follower count and its 24 hour change.
package watcher
