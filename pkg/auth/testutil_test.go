package auth

import "time"

const (
	testHash  = "bad42fa702ae3ea7d888fef11b46f450"
	testToken = "3kg6k6lzmp9kj4cpkcoxie964cmvjahbt4fod9zru44k4jqdmi"
)

var testKey = []byte("abcdefghijklmnopqrstuvwxyz")

// fakeClock is a test clock with a controllable Now().
type fakeClock struct { // A
	now time.Time
}

func (c *fakeClock) Now() time.Time { // A
	return c.now
}
