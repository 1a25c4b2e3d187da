package keep

import (
	"log/slog"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-keep/pkg/auth"
	"github.com/i5heu/ouroboros-keep/pkg/logging"
)

// Config configures a Keep instance. Only Paths[0] is used at the
// moment.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// InMemory keeps all data in memory; Paths is ignored.
	InMemory bool
	// MinimumFreeGB is a free-space threshold checked when the store opens.
	MinimumFreeGB int
	// Compression of stored records: "zstd" (default), "lzma" or "none".
	Compression string
	// UUIDPrefix is the five character site prefix of generated uuids.
	UUIDPrefix string
	// SigningKey signs and verifies block locators. Without it nothing
	// is signed and only unsigned manifests can be saved.
	SigningKey []byte
	// SignatureTTL is the lifetime of issued signatures. Zero means two
	// weeks.
	SignatureTTL time.Duration
	// PermitUnsignedManifest admits manifests whose locators carry no
	// signature.
	PermitUnsignedManifest bool
	// DisableIndex turns off the search index.
	DisableIndex bool
	// Clock defaults to the system clock.
	Clock auth.Clock
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *slog.Logger
	// StoreLogger receives the store's own diagnostics.
	StoreLogger *logrus.Logger
}

func defaultLogger() *slog.Logger { // A
	return logging.New(logging.Options{Level: slog.LevelInfo})
}
