package alerting

import "github.com/jonboulle/clockwork"

// clock stamps CreatedAt/ExpiresAt and drives expiry. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
