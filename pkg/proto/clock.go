package proto

import "time"

// Clock supplies wall-clock timestamps. Components take a Clock so tests can
// pin time; SystemClock is the production implementation.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
