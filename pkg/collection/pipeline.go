package collection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/i5heu/ouroboros-keep/pkg/auth"
	"github.com/i5heu/ouroboros-keep/pkg/locator"
	"github.com/i5heu/ouroboros-keep/pkg/manifest"
	"github.com/i5heu/ouroboros-keep/pkg/permission"
)

const (
	logKeyLocator  = "locator"
	logKeyComputed = "computed"
	logKeyProvided = "provided"
	logKeyUser     = "user"
)

var fileTokenPrefix = regexp.MustCompile(`^[0-9]+:[0-9]+:`)

// Policy is the signing configuration the save checks run under.
type Policy struct { // A
	Key []byte
	// PermitUnsigned admits manifests with unsigned locators.
	PermitUnsigned bool
	Clock          auth.Clock
	Logger         *slog.Logger
}

func (p Policy) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock.Now()
}

func (p Policy) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

// Requester is the caller saving a collection.
type Requester struct { // A
	UserUUID string
	IsAdmin  bool
	APIToken string
}

// Prepare runs the save checks in order: signatures, stripping, hash
// assignment and hash verification. The first failing step stops the
// pipeline; its error is recorded in c.Errors and returned.
func Prepare( // A
	ctx context.Context,
	c *Collection,
	req Requester,
	policy Policy,
) error {
	c.errs = nil
	steps := []func() error{
		func() error { return CheckSignatures(ctx, c, req, policy) },
		func() error {
			StripManifestText(c)
			return nil
		},
		func() error { return SetPortableDataHash(c) },
		func() error { return EnsureHashMatchesManifestText(ctx, c, policy) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			c.errs = append(c.errs, err)
			break
		}
	}
	return errors.Join(c.errs...)
}

// CheckSignatures requires every locator in a changed manifest to carry
// a valid signature for the requester's token. Admins are exempt.
// Unsigned locators pass when the policy permits them, and the empty
// block always passes since it protects no data.
func CheckSignatures( // A
	ctx context.Context,
	c *Collection,
	req Requester,
	policy Policy,
) error {
	if req.IsAdmin || !c.manifestChanged {
		return nil
	}
	log := policy.logger()
	now := policy.now()
	for _, line := range strings.Split(c.manifestText, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Every token is checked, even past the first file token.
		for _, tok := range fields[1:] {
			if fileTokenPrefix.MatchString(tok) {
				continue
			}
			if len(policy.Key) > 0 && auth.VerifySignature(tok, policy.Key, req.APIToken, now) {
				continue
			}
			loc, err := locator.Parse(tok)
			if err == nil {
				if _, signed := loc.Signature(); signed {
					log.WarnContext(ctx, "invalid signature on locator",
						logKeyLocator, tok,
						logKeyUser, req.UserUUID,
					)
					return permission.Denied(permission.ReasonBadSignature, tok, req.UserUUID)
				}
			}
			if policy.PermitUnsigned {
				log.DebugContext(ctx, "missing signature on locator ignored", logKeyLocator, tok)
				continue
			}
			if err == nil && loc.IsEmptyBlock() {
				continue
			}
			log.WarnContext(ctx, "missing signature on locator",
				logKeyLocator, tok,
				logKeyUser, req.UserUUID,
			)
			return permission.Denied(permission.ReasonMissingSignature, tok, req.UserUUID)
		}
	}
	return nil
}

// StripManifestText removes permission signatures from every locator of
// a changed manifest. All other bytes are kept.
func StripManifestText(c *Collection) { // A
	if !c.manifestChanged {
		return
	}
	stripped := manifest.RewriteLocators(c.manifestText, func(loc locator.Locator) string {
		return loc.WithoutSignature().String()
	})
	if stripped != c.manifestText {
		c.manifestText = stripped
		c.parsed = nil
	}
}

// SetPortableDataHash computes the hash when none is set or the manifest
// changed without a new hash being supplied. A supplied hash is
// normalized to hash+size.
func SetPortableDataHash(c *Collection) error { // A
	if c.portableDataHash == "" || (c.manifestChanged && !c.hashChanged) {
		c.portableDataHash = ComputePortableDataHash(c.manifestText)
		return nil
	}
	if !c.hashChanged {
		return nil
	}
	loc, err := locator.Parse(c.portableDataHash)
	if err != nil {
		return &InvalidHashError{Hash: c.portableDataHash, Err: err}
	}
	c.portableDataHash = loc.StripHints().String()
	return nil
}

// EnsureHashMatchesManifestText rejects a collection whose portable data
// hash differs from the hash of its manifest text.
func EnsureHashMatchesManifestText( // A
	ctx context.Context,
	c *Collection,
	policy Policy,
) error {
	if !c.manifestChanged && !c.hashChanged {
		return nil
	}
	computed := ComputePortableDataHash(c.manifestText)
	if computed != c.portableDataHash {
		policy.logger().DebugContext(ctx, "portable data hash mismatch",
			logKeyComputed, computed,
			logKeyProvided, c.portableDataHash,
		)
		return &HashMismatchError{Computed: computed, Provided: c.portableDataHash}
	}
	return nil
}

// SignedManifestText returns the manifest with a fresh signature for
// apiToken on every locator. Without a signing key the manifest is
// returned as stored.
func (c *Collection) SignedManifestText(signer auth.Signer, apiToken string) (string, error) { // A
	if !signer.Enabled() || apiToken == "" {
		return c.manifestText, nil
	}
	var signErr error
	signed := manifest.RewriteLocators(c.manifestText, func(loc locator.Locator) string {
		if signErr != nil {
			return loc.String()
		}
		s, err := signer.Sign(loc.String(), apiToken)
		if err != nil {
			signErr = err
			return loc.String()
		}
		return s
	})
	if signErr != nil {
		return "", signErr
	}
	return signed, nil
}
