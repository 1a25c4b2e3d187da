package collection

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	hashPart = regexp.MustCompile(`^[0-9a-f]{32,}$`)
	sizePart = regexp.MustCompile(`^[0-9]+$`)
)

// NormalizeUUID reduces a collection reference such as
// "hash+size+hints" to "hash+size", dropping every hint. It fails when
// there is no hash part, or more than one hash or size part.
func NormalizeUUID(ref string) (string, error) { // A
	var hash, size string
	for _, tok := range strings.Split(ref, "+") {
		switch {
		case hashPart.MatchString(tok):
			if hash != "" {
				return "", fmt.Errorf("%w: %s has multiple hash parts", ErrInvalidReference, ref)
			}
			hash = tok
		case sizePart.MatchString(tok):
			if size != "" {
				return "", fmt.Errorf("%w: %s has multiple size parts", ErrInvalidReference, ref)
			}
			size = tok
		}
	}
	if hash == "" {
		return "", fmt.Errorf("%w: %s has no hash part", ErrInvalidReference, ref)
	}
	if size == "" {
		return hash, nil
	}
	return hash + "+" + size, nil
}

// LooksLikeReference reports whether s has the shape of a content
// address with optional hints, the form NormalizeUUID accepts.
func LooksLikeReference(s string) bool { // A
	return referencePattern.MatchString(s)
}

var referencePattern = regexp.MustCompile(`^[0-9a-f]{32,}(\+[@\w]+)*$`)
