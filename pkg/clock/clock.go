package clock

import "time"

// clock abstracts wall time and waiting so lock deadlines and lease math
// can be driven by a fake in tests
// every component takes a Clock instead of calling time.Now directly :
// lease expiry, acquire timeouts and renewal ticks all read the same source
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// Real is the production clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (Real) Sleep(d time.Duration) {
	time.Sleep(d)
}
