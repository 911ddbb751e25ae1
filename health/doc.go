// Package health tracks the availability of downstream capability groups
// and derives a single process-wide operating mode.
//
// Each registered group is probed on an independent schedule. Consecutive
// failures past a threshold degrade the group; consecutive successes past a
// second threshold recover it (hysteresis, so flaky connectivity does not
// flip the mode on every probe). The global mode is Degraded while any
// critical group is Degraded. Mode reads are a single atomic load and safe
// from any number of concurrent router invocations.
package health
