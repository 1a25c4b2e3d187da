package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is matched by every *PermissionDeniedError.
	ErrPermissionDenied = errors.New("permission denied")

	ErrNotOwnedByUser   = errors.New("is not owned by any user")
	ErrWouldCreateCycle = errors.New("would create an ownership cycle")
	ErrOwnershipCycle   = errors.New("has an ownership cycle")
)

// Reason tells apart the ways an authorization can fail.
type Reason string // A

const (
	// ReasonBadSignature means a signature was present but did not verify
	// or has expired.
	ReasonBadSignature     Reason = "invalid signature"
	ReasonMissingSignature Reason = "missing signature"
	ReasonNotPermitted     Reason = "not permitted"
	ReasonAnonymous        Reason = "anonymous"
	ReasonInactive         Reason = "inactive user"
)

// PermissionDeniedError is an authorization failure. Subject is the
// object or locator the caller was refused.
type PermissionDeniedError struct { // A
	Reason   Reason
	Subject  string
	Identity string
}

func (e *PermissionDeniedError) Error() string { // A
	switch {
	case e.Identity != "" && e.Subject != "":
		return fmt.Sprintf("permission denied (%s): %s on %s", e.Reason, e.Identity, e.Subject)
	case e.Subject != "":
		return fmt.Sprintf("permission denied (%s): %s", e.Reason, e.Subject)
	default:
		return fmt.Sprintf("permission denied (%s)", e.Reason)
	}
}

func (e *PermissionDeniedError) Is(target error) bool { // A
	return target == ErrPermissionDenied
}

// Denied builds a *PermissionDeniedError.
func Denied(reason Reason, subject, identity string) error { // A
	return &PermissionDeniedError{
		Reason:   reason,
		Subject:  subject,
		Identity: identity,
	}
}

// OwnershipError reports an owner_uuid that does not lead to a user.
type OwnershipError struct { // A
	UUID      string
	OwnerUUID string
	Err       error
}

func (e *OwnershipError) Error() string { // A
	return fmt.Sprintf("owner_uuid %s of %s %v", e.OwnerUUID, e.UUID, e.Err)
}

func (e *OwnershipError) Unwrap() error { // A
	return e.Err
}
