// Package locator parses and manipulates Keep block locators.
//
// A locator names a block of bytes by content:
//
//	locator      ::= digest size-hint? hint*
//	digest       ::= <32 lowercase hexadecimal digits>
//	size-hint    ::= "+" [0-9]+
//	hint         ::= "+" hint-type hint-content
//	hint-type    ::= [A-Z]
//	hint-content ::= [A-Za-z0-9@_-]+
//
// The permission signature hint has its own inner format
// (see package auth):
//
//	sign-hint      ::= "+A" <40 lowercase hex digits> "@" sign-timestamp
//	sign-timestamp ::= <8 lowercase hex digits>
package locator

import (
	"strconv"
	"strings"
)

const (
	// HashLen is the number of hex digits in a block digest.
	HashLen = 32

	// EmptyBlockHash is the MD5 digest of zero bytes.
	EmptyBlockHash = "d41d8cd98f00b204e9800998ecf8427e"

	// EmptyBlock is the canonical locator of the zero-length block. It is
	// also the portable data hash of the empty manifest.
	EmptyBlock = EmptyBlockHash + "+0"

	// SignatureHintPrefix starts every permission signature hint.
	SignatureHintPrefix = "A"

	// sizeHintPrefix marks the alternative "GS<n>" block size hint.
	sizeHintPrefix = "GS"
)

// Locator is a parsed block locator. The zero value is not a valid
// locator; obtain one through Parse.
type Locator struct {
	hash     string
	size     int64
	sizeSet  bool
	sizeText string
	hints    []string
}

// Parse returns the Locator described by token. Leading and trailing
// whitespace is ignored. Parse fails with an *InvalidLocatorError when
// the token is empty, the digest is not 32 lowercase hex digits, the
// size is not a decimal, or any hint is malformed (including an empty
// hint produced by a stray '+').
func Parse(token string) (Locator, error) { // A
	tok := strings.TrimSpace(token)
	if tok == "" {
		return Locator{}, invalid(token, "locator is empty")
	}

	parts := strings.Split(tok, "+")
	if !isHash(parts[0]) {
		return Locator{}, invalid(token, "digest is not 32 lowercase hex digits")
	}

	loc := Locator{hash: parts[0]}
	rest := parts[1:]
	if len(rest) > 0 && isDigits(rest[0]) {
		size, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return Locator{}, invalid(token, "size out of range")
		}
		loc.size = size
		loc.sizeSet = true
		loc.sizeText = rest[0]
		rest = rest[1:]
	}

	if len(rest) > 0 {
		loc.hints = make([]string, 0, len(rest))
	}
	for _, hint := range rest {
		if !isHint(hint) {
			return Locator{}, invalid(token, "unknown hint "+strconv.Quote(hint))
		}
		loc.hints = append(loc.hints, hint)
	}

	return loc, nil
}

// MustParse is like Parse but panics on error. It is meant for
// constants and tests.
func MustParse(token string) Locator { // A
	loc, err := Parse(token)
	if err != nil {
		panic(err)
	}
	return loc
}

// Valid reports whether token parses as a locator.
func Valid(token string) bool { // A
	_, err := Parse(token)
	return err == nil
}

// Hash returns the 32 hex digit block digest.
func (l Locator) Hash() string { // A
	return l.hash
}

// Size returns the size hint and whether one was present.
func (l Locator) Size() (int64, bool) { // A
	return l.size, l.sizeSet
}

// Hints returns a copy of the hints in their original order.
func (l Locator) Hints() []string { // A
	out := make([]string, len(l.hints))
	copy(out, l.hints)
	return out
}

// Signature returns the first permission signature hint.
func (l Locator) Signature() (string, bool) { // A
	for _, h := range l.hints {
		if strings.HasPrefix(h, SignatureHintPrefix) {
			return h, true
		}
	}
	return "", false
}

// WithoutSignature returns a copy of l without any signature hints.
func (l Locator) WithoutSignature() Locator { // A
	out := l
	out.hints = make([]string, 0, len(l.hints))
	for _, h := range l.hints {
		if !strings.HasPrefix(h, SignatureHintPrefix) {
			out.hints = append(out.hints, h)
		}
	}
	return out
}

// WithHint returns a copy of l with hint appended.
func (l Locator) WithHint(hint string) Locator { // A
	out := l
	out.hints = make([]string, 0, len(l.hints)+1)
	out.hints = append(out.hints, l.hints...)
	out.hints = append(out.hints, hint)
	return out
}

// StripHints returns a copy of l with every hint removed. The size is
// kept.
func (l Locator) StripHints() Locator { // A
	out := l
	out.hints = nil
	return out
}

// StripHintsInPlace removes every hint from l and returns l.
func (l *Locator) StripHintsInPlace() *Locator { // A
	l.hints = nil
	return l
}

// BlockSize returns the block size. A "GS<n>" hint overrides the size
// hint; when there are several, the last one wins.
func (l Locator) BlockSize() (int64, bool) { // A
	size, known := l.size, l.sizeSet
	for _, h := range l.hints {
		digits, ok := strings.CutPrefix(h, sizeHintPrefix)
		if !ok || !isDigits(digits) {
			continue
		}
		if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
			size, known = n, true
		}
	}
	return size, known
}

// IsEmptyBlock reports whether l names the zero-length block.
func (l Locator) IsEmptyBlock() bool { // A
	if l.hash != EmptyBlockHash {
		return false
	}
	return !l.sizeSet || l.size == 0
}

// Equal reports whether l and other have the same digest, size and
// hints (in order).
func (l Locator) Equal(other Locator) bool { // A
	if l.hash != other.hash || l.sizeSet != other.sizeSet || l.size != other.size {
		return false
	}
	if len(l.hints) != len(other.hints) {
		return false
	}
	for i := range l.hints {
		if l.hints[i] != other.hints[i] {
			return false
		}
	}
	return true
}

// String returns the locator in hash[+size][+hint]* form. The size is
// written with the digits it was parsed from.
func (l Locator) String() string { // A
	var b strings.Builder
	b.Grow(len(l.hash) + 21 + 48*len(l.hints))
	b.WriteString(l.hash)
	if l.sizeSet {
		b.WriteByte('+')
		if l.sizeText != "" {
			b.WriteString(l.sizeText)
		} else {
			b.WriteString(strconv.FormatInt(l.size, 10))
		}
	}
	for _, h := range l.hints {
		b.WriteByte('+')
		b.WriteString(h)
	}
	return b.String()
}

func isHash(s string) bool {
	if len(s) != HashLen {
		return false
	}
	return isLowerHex(s)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isHint matches [A-Z][A-Za-z0-9@_-]+.
func isHint(s string) bool {
	if len(s) < 2 || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '@', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
