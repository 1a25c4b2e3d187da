package auth

import "time"

// DefaultSignatureTTL is how long a fresh signature stays valid unless
// configured otherwise.
const DefaultSignatureTTL = 14 * 24 * time.Hour

// Signer carries the signing key and TTL so callers do not have to
// thread them through every call.
type Signer struct { // A
	Key   []byte
	TTL   time.Duration
	Clock Clock
}

// NewSigner creates a Signer. A zero ttl selects DefaultSignatureTTL and
// a nil clock the system clock.
func NewSigner( // A
	key []byte,
	ttl time.Duration,
	clock Clock,
) Signer {
	if ttl <= 0 {
		ttl = DefaultSignatureTTL
	}
	if clock == nil {
		clock = SystemClock()
	}
	return Signer{Key: key, TTL: ttl, Clock: clock}
}

// Sign returns loc signed for apiToken.
func (s Signer) Sign(loc, apiToken string) (string, error) { // A
	return SignLocator(loc, apiToken, s.Key, s.TTL, s.now())
}

// Verify reports whether loc carries a valid signature for apiToken.
func (s Signer) Verify(loc, apiToken string) bool { // A
	return VerifySignature(loc, s.Key, apiToken, s.now())
}

// Enabled reports whether a signing key is configured.
func (s Signer) Enabled() bool { // A
	return len(s.Key) > 0
}

func (s Signer) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}
