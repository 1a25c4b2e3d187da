package locator

import (
	"errors"
	"fmt"
)

// ErrInvalidLocator matches every *InvalidLocatorError via errors.Is.
var ErrInvalidLocator = errors.New("invalid locator")

// InvalidLocatorError reports a token that does not parse as a locator.
type InvalidLocatorError struct { // A
	Token  string
	Reason string
}

func (e *InvalidLocatorError) Error() string { // A
	return fmt.Sprintf("invalid locator %q: %s", e.Token, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidLocator) hold.
func (e *InvalidLocatorError) Is(target error) bool { // A
	return target == ErrInvalidLocator
}

func invalid(token, reason string) error {
	return &InvalidLocatorError{Token: token, Reason: reason}
}
