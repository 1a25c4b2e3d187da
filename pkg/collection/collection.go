// Package collection models a stored collection: a manifest, its
// portable data hash and metadata, and the checks a manifest must pass
// before it may be saved.
package collection

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/i5heu/ouroboros-keep/pkg/manifest"
	"github.com/i5heu/ouroboros-keep/pkg/properties"
)

// Redundancy status values.
const (
	StatusUnconfirmed = "unconfirmed"
	StatusDegraded    = "degraded"
	StatusOK          = "OK"
	StatusStale       = "stale"
)

// RedundancyConfirmationWindow is how long a redundancy confirmation
// counts as current.
const RedundancyConfirmationWindow = 7 * 24 * time.Hour

// Record is the persisted form of a Collection.
type Record struct { // A
	UUID                  string         `json:"uuid"`
	OwnerUUID             string         `json:"owner_uuid"`
	Name                  string         `json:"name,omitempty"`
	Description           string         `json:"description,omitempty"`
	Properties            properties.Map `json:"properties"`
	PortableDataHash      string         `json:"portable_data_hash"`
	ManifestText          string         `json:"manifest_text"`
	Redundancy            int            `json:"redundancy"`
	RedundancyConfirmedAs *int           `json:"redundancy_confirmed_as,omitempty"`
	RedundancyConfirmedAt *time.Time     `json:"redundancy_confirmed_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	ModifiedAt            time.Time      `json:"modified_at"`
	ModifiedByUserUUID    string         `json:"modified_by_user_uuid,omitempty"`
}

// Collection is a manifest with metadata. The manifest text and portable
// data hash are private so that their change tracking stays accurate.
// A Collection is not safe for concurrent mutation.
type Collection struct { // A
	UUID                  string
	OwnerUUID             string
	Name                  string
	Description           string
	Properties            properties.Map
	Redundancy            int
	RedundancyConfirmedAs *int
	RedundancyConfirmedAt *time.Time
	CreatedAt             time.Time
	ModifiedAt            time.Time
	ModifiedByUserUUID    string

	manifestText     string
	portableDataHash string
	manifestChanged  bool
	hashChanged      bool
	persisted        bool

	parsed *manifest.Manifest
	errs   []error
}

// New creates an unsaved collection holding manifestText.
func New(manifestText string) *Collection { // A
	return &Collection{
		Properties:      properties.Map{},
		Redundancy:      2,
		manifestText:    manifestText,
		manifestChanged: true,
	}
}

// Load restores a saved collection. Nothing is marked as changed.
func Load(rec Record) *Collection { // A
	props := rec.Properties
	if props == nil {
		props = properties.Map{}
	}
	return &Collection{
		UUID:                  rec.UUID,
		OwnerUUID:             rec.OwnerUUID,
		Name:                  rec.Name,
		Description:           rec.Description,
		Properties:            props,
		Redundancy:            rec.Redundancy,
		RedundancyConfirmedAs: rec.RedundancyConfirmedAs,
		RedundancyConfirmedAt: rec.RedundancyConfirmedAt,
		CreatedAt:             rec.CreatedAt,
		ModifiedAt:            rec.ModifiedAt,
		ModifiedByUserUUID:    rec.ModifiedByUserUUID,
		manifestText:          rec.ManifestText,
		portableDataHash:      rec.PortableDataHash,
		persisted:             true,
	}
}

// Record returns the persisted form of c.
func (c *Collection) Record() Record { // A
	return Record{
		UUID:                  c.UUID,
		OwnerUUID:             c.OwnerUUID,
		Name:                  c.Name,
		Description:           c.Description,
		Properties:            c.Properties.Clone(),
		PortableDataHash:      c.portableDataHash,
		ManifestText:          c.manifestText,
		Redundancy:            c.Redundancy,
		RedundancyConfirmedAs: c.RedundancyConfirmedAs,
		RedundancyConfirmedAt: c.RedundancyConfirmedAt,
		CreatedAt:             c.CreatedAt,
		ModifiedAt:            c.ModifiedAt,
		ModifiedByUserUUID:    c.ModifiedByUserUUID,
	}
}

// ObjectUUID returns the UUID, or the portable data hash for
// collections known only by content.
func (c *Collection) ObjectUUID() string { // A
	if c.UUID == "" {
		return c.portableDataHash
	}
	return c.UUID
}

func (c *Collection) ObjectOwnerUUID() string { // A
	return c.OwnerUUID
}

// IsNew reports whether c has never been persisted.
func (c *Collection) IsNew() bool { // A
	return !c.persisted
}

func (c *Collection) ManifestText() string { // A
	return c.manifestText
}

// SetManifestText replaces the manifest. Derived values are recomputed
// on next use.
func (c *Collection) SetManifestText(text string) { // A
	if text == c.manifestText && (c.persisted || c.manifestChanged) {
		return
	}
	c.manifestText = text
	c.manifestChanged = true
	c.parsed = nil
}

func (c *Collection) PortableDataHash() string { // A
	return c.portableDataHash
}

// SetPortableDataHash sets a caller supplied hash. The save pipeline
// normalizes it and checks it against the manifest.
func (c *Collection) SetPortableDataHash(pdh string) { // A
	if pdh == c.portableDataHash {
		return
	}
	c.portableDataHash = pdh
	c.hashChanged = true
}

func (c *Collection) ManifestChanged() bool { // A
	return c.manifestChanged
}

func (c *Collection) PortableDataHashChanged() bool { // A
	return c.hashChanged
}

// MarkPersisted clears change tracking after a successful save.
func (c *Collection) MarkPersisted() { // A
	c.persisted = true
	c.manifestChanged = false
	c.hashChanged = false
	c.errs = nil
}

// Errors returns the failures recorded by the last Prepare.
func (c *Collection) Errors() []error { // A
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

// Manifest returns the parsed manifest text.
func (c *Collection) Manifest() *manifest.Manifest { // A
	if c.parsed == nil {
		c.parsed = manifest.New(c.manifestText)
	}
	return c.parsed
}

// Files returns the logical files of the manifest.
func (c *Collection) Files() []manifest.File { // A
	return c.Manifest().Files()
}

// DataSize returns the total size of all referenced blocks; false when
// any block size is unknown.
func (c *Collection) DataSize() (int64, bool) { // A
	return c.Manifest().DataSize()
}

// TotalBytes is the sum of all file sizes.
func (c *Collection) TotalBytes() int64 { // A
	var total int64
	for _, f := range c.Files() {
		total += f.Size
	}
	return total
}

// RedundancyStatus summarizes how well the desired redundancy has been
// confirmed as of now.
func (c *Collection) RedundancyStatus(now time.Time) string { // A
	switch {
	case c.RedundancyConfirmedAs == nil:
		return StatusUnconfirmed
	case *c.RedundancyConfirmedAs < c.Redundancy:
		return StatusDegraded
	case c.RedundancyConfirmedAt == nil:
		return StatusUnconfirmed
	case now.Sub(*c.RedundancyConfirmedAt) < RedundancyConfirmationWindow:
		return StatusOK
	default:
		return StatusStale
	}
}

// ComputePortableDataHash returns the MD5 of text and its length in
// bytes, joined by "+".
func ComputePortableDataHash(text string) string { // A
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:]) + "+" + strconv.Itoa(len(text))
}
