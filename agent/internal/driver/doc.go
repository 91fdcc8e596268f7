// Package driver runs the capture and delivery loop.
//
// One Driver goroutine owns the loop. Every tick it checks the schedule and,
// when a capture is due, runs one cycle:
//
//	capture+encode -> local copy -> probe -> drain spool -> deliver fresh item
//	                                  |                           |
//	                                  +-- unreachable -> spool <--+-- failed
//
// The drain pass sends spooled items oldest first and stops at the first
// failure, so a newer capture is never delivered ahead of an older one in the
// same cycle. Independently, every SweepInterval the retention sweep removes
// expired items and, when the collector answers, runs another drain pass.
//
// Other goroutines (the control API, the config watcher) talk to the loop
// through Pause, Resume, Reload and DrainNow, which enqueue commands; Status
// reads a snapshot. Cancelling the context passed to Run stops the loop after
// the in-flight step.
package driver
