package auth

import "time"

// Clock abstracts time for testability.
type Clock interface { // A
	Now() time.Time
}

type realClock struct{} // A

// Now returns the current time.
func (realClock) Now() time.Time { // A
	return time.Now()
}

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { // A
	return realClock{}
}

// FixedClock is a Clock that always reports the same instant.
type FixedClock time.Time // A

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { // A
	return time.Time(c)
}
