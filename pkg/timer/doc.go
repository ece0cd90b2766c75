// Package timer implements the re-arming interval timer used by mesh models.
//
// A Periodic timer drives two things in a model server: periodic state
// publication and expiry of the transaction dedup window.
//
// # Re-arming
//
// The timer is not a fixed-rate clock. After each firing the callback runs to
// completion and only then is the next firing scheduled, so drift equals the
// callback execution time.
//
// # Re-entry
//
// Calling Start on a running timer never stacks a second timer. The new
// interval and callback are recorded and take effect when the timer next
// re-arms.
//
// # Granularity
//
// Intervals below one second are rejected with ErrInvalidInterval. Mesh
// publication periods below one second are not served by this package.
//
// # Cancellation
//
// Cancel stops future firings and releases the runtime timer. It is safe to
// call from inside the callback and on a timer that is not running. Stop
// additionally waits for an in-flight callback and is meant for shutdown.
package timer
