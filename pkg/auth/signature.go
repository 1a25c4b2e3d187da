// Package auth computes and verifies Keep permission signatures.
//
// A permission signature is a locator hint of the form
//
//	A<40 lowercase hex digits>@<8 lowercase hex digits>
//
// carrying HMAC-SHA1(key, hash "@" apiToken "@" expiryHex) and the expiry
// time in seconds since the epoch. It proves that the holder of apiToken
// was allowed to read the block at signing time.
package auth

import (
	"crypto/hmac"
	"crypto/sha1" //#nosec G505 -- the hint format mandates HMAC-SHA1
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/i5heu/ouroboros-keep/pkg/locator"
)

const (
	macHexLen    = sha1.Size * 2
	expiryHexLen = 8
	hintLen      = 1 + macHexLen + 1 + expiryHexLen
)

var (
	// ErrExpiryOutOfRange is returned when an expiry cannot be written
	// as 8 hex digits of seconds since the epoch.
	ErrExpiryOutOfRange = errors.New("signature expiry out of 32-bit range")

	// ErrMalformedSignature is returned by ParseSignatureHint.
	ErrMalformedSignature = errors.New("malformed signature hint")
)

// SignatureHint returns the "A<mac>@<expiry>" hint binding hash to
// apiToken until expiry.
func SignatureHint( // A
	hash string,
	apiToken string,
	key []byte,
	expiry time.Time,
) (string, error) {
	expiryHex, err := encodeExpiry(expiry)
	if err != nil {
		return "", err
	}
	return locator.SignatureHintPrefix +
		hex.EncodeToString(computeMAC(hash, apiToken, key, expiryHex)) +
		"@" + expiryHex, nil
}

// SignLocator replaces any signature on loc with a fresh one valid for
// ttl from now. An empty apiToken or key leaves loc unsigned, as there is
// nothing to bind the signature to.
func SignLocator( // A
	loc string,
	apiToken string,
	key []byte,
	ttl time.Duration,
	now time.Time,
) (string, error) {
	parsed, err := locator.Parse(loc)
	if err != nil {
		return "", err
	}
	if apiToken == "" || len(key) == 0 {
		return loc, nil
	}

	hint, err := SignatureHint(
		parsed.Hash(),
		apiToken,
		key,
		now.Add(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", parsed.Hash(), err)
	}
	return parsed.WithoutSignature().WithHint(hint).String(), nil
}

// VerifySignature reports whether loc carries a signature that was made
// with key for apiToken and has not expired at now. It never fails:
// malformed locators and absent or malformed hints verify false.
func VerifySignature( // A
	loc string,
	key []byte,
	apiToken string,
	now time.Time,
) bool {
	parsed, err := locator.Parse(loc)
	if err != nil {
		return false
	}
	return VerifyLocator(parsed, key, apiToken, now)
}

// VerifyLocator is VerifySignature for an already parsed locator.
func VerifyLocator( // A
	loc locator.Locator,
	key []byte,
	apiToken string,
	now time.Time,
) bool {
	hint, ok := loc.Signature()
	if !ok {
		return false
	}
	mac, expiry, err := ParseSignatureHint(hint)
	if err != nil {
		return false
	}
	if !now.Before(expiry) {
		return false
	}
	expected := computeMAC(
		loc.Hash(),
		apiToken,
		key,
		hint[len(hint)-expiryHexLen:],
	)
	return hmac.Equal(mac, expected)
}

// ParseSignatureHint splits a signature hint into its MAC bytes and
// expiry time.
func ParseSignatureHint( // A
	hint string,
) ([]byte, time.Time, error) {
	if len(hint) != hintLen ||
		hint[:1] != locator.SignatureHintPrefix ||
		hint[1+macHexLen] != '@' {
		return nil, time.Time{}, ErrMalformedSignature
	}

	macHex := hint[1 : 1+macHexLen]
	expiryHex := hint[len(hint)-expiryHexLen:]
	if !isLowerHex(macHex) || !isLowerHex(expiryHex) {
		return nil, time.Time{}, ErrMalformedSignature
	}

	mac, err := hex.DecodeString(macHex)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	secs, err := strconv.ParseUint(expiryHex, 16, 32)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return mac, time.Unix(int64(secs), 0), nil
}

func computeMAC(hash, apiToken string, key []byte, expiryHex string) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(hash + "@" + apiToken + "@" + expiryHex))
	return mac.Sum(nil)
}

// encodeExpiry writes expiry as exactly 8 lowercase hex digits. The hint
// format has no room for times past 2106-02-07, so those are rejected
// rather than truncated.
func encodeExpiry(expiry time.Time) (string, error) {
	secs := expiry.Unix()
	if secs < 0 || secs > math.MaxUint32 {
		return "", fmt.Errorf("%w: %d", ErrExpiryOutOfRange, secs)
	}
	return fmt.Sprintf("%08x", secs), nil
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
