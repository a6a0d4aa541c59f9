// Package clock supplies the wall-clock time source used throughout the
// scheduler and enforcer, plus ISO-8601 duration parsing. It exists so
// tests can substitute a fake clock instead of sleeping on real time.
package clock

import "time"

// Clock is the "now" source. Production code uses RealClock; tests use a
// FakeClock so scenarios like spec.md §8's Scenario A/B can be driven
// deterministically.
type Clock interface {
	Now() time.Time
	// NowSeconds returns Now() truncated to whole wall-clock seconds,
	// which is the unit every due_date/backoff/ttl computation in this
	// repo is expressed in.
	NowSeconds() int64
}

// RealClock is backed by time.Now().
type RealClock struct{}

func (RealClock) Now() time.Time   { return time.Now() }
func (RealClock) NowSeconds() int64 { return time.Now().Unix() }

// Default is the package-level clock used by code that doesn't thread a
// Clock through explicitly (mirrors tdns.Globals-style package globals).
var Default Clock = RealClock{}

// Now returns Default.Now().
func Now() time.Time { return Default.Now() }

// NowSeconds returns Default.NowSeconds().
func NowSeconds() int64 { return Default.NowSeconds() }

// Sentinel due-times, spec.md §3.1.
const (
	// Whenever means "do not wake me for this task".
	Whenever int64 = -1
	// Immediately means "runnable right now", sorting first among equal
	// "now" tasks because Task.perform reschedules IMMEDIATELY-hinted
	// tasks at epoch (0), not at now.
	Immediately int64 = 0
)
