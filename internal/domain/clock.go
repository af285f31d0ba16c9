package domain

import "time"

// Clock abstracts the source of "now" so window and soft-close logic can be
// tested against a frozen time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Intended for tests.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
