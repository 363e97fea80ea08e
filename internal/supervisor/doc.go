// Package supervisor keeps the watcher and dispatcher running and the
// display fed.
//
// On every tick (immediately, then once per poll interval) the supervisor:
//
//  1. starts any component that is not running, including one that just
//     exited or was asked to restart;
//  2. if the queue is empty, enqueues a "Watching for:" filler per tracked
//     topic followed by the status summary;
//  3. hands the component stats to the health publisher, if any.
//
// Component goroutines run under their own child context. A panic in a
// component is recovered and treated as an exit with an error.
package supervisor
