// Package config loads the keep configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultDataPath       = "./data"
	DefaultMinimumFreeGB  = 1
	DefaultSignatureTTL   = 14 * 24 * time.Hour
	DefaultUUIDPrefix     = "zzzzz"
	DefaultLogLevel       = "info"
	DefaultCompression    = "zstd"
	defaultConfigFileName = "keep.yaml"
)

// ErrNoSigningKey is returned by SigningKey when neither an inline key
// nor a key file is configured.
var ErrNoSigningKey = errors.New("no blob signing key configured")

// Config is the on-disk configuration. Zero values are replaced by
// defaults after decoding. BlobSignatureTTL is a Go duration string such
// as "336h".
type Config struct { // A
	DataPath               string `yaml:"dataPath"`
	InMemory               bool   `yaml:"inMemory"`
	MinimumFreeGB          int    `yaml:"minimumFreeGB"`
	Compression            string `yaml:"compression"`
	UUIDPrefix             string `yaml:"uuidPrefix"`
	BlobSigningKey         string `yaml:"blobSigningKey"`
	BlobSigningKeyFile     string `yaml:"blobSigningKeyFile"`
	BlobSignatureTTL       string `yaml:"blobSignatureTTL"`
	PermitUnsignedManifest bool   `yaml:"permitUnsignedManifest"`
	IndexEnabled           *bool  `yaml:"indexEnabled"`
	LogLevel               string `yaml:"logLevel"`
	NoColor                bool   `yaml:"noColor"`
}

// Default returns a Config with every default applied.
func Default() Config { // A
	var c Config
	c.applyDefaults()
	return c
}

// Load reads and decodes path. A missing file yields the defaults when
// path is the default file name.
func Load(path string) (Config, error) { // A
	if path == "" {
		path = defaultConfigFileName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == defaultConfigFileName {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (Config, error) { // A
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if _, err := c.SignatureTTL(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() { // A
	if c.DataPath == "" {
		c.DataPath = DefaultDataPath
	}
	if c.MinimumFreeGB == 0 {
		c.MinimumFreeGB = DefaultMinimumFreeGB
	}
	if c.Compression == "" {
		c.Compression = DefaultCompression
	}
	if c.UUIDPrefix == "" {
		c.UUIDPrefix = DefaultUUIDPrefix
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.IndexEnabled == nil {
		enabled := true
		c.IndexEnabled = &enabled
	}
}

// Indexing reports whether the search index is enabled.
func (c Config) Indexing() bool { // A
	return c.IndexEnabled == nil || *c.IndexEnabled
}

// SignatureTTL parses BlobSignatureTTL. Unset means two weeks.
func (c Config) SignatureTTL() (time.Duration, error) { // A
	if c.BlobSignatureTTL == "" {
		return DefaultSignatureTTL, nil
	}
	ttl, err := time.ParseDuration(c.BlobSignatureTTL)
	if err != nil {
		return 0, fmt.Errorf("blobSignatureTTL: %w", err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("blobSignatureTTL must be positive, got %s", ttl)
	}
	return ttl, nil
}

// SigningKey returns the inline key or, failing that, the contents of
// the key file.
func (c Config) SigningKey() ([]byte, error) { // A
	if c.BlobSigningKey != "" {
		return []byte(c.BlobSigningKey), nil
	}
	if c.BlobSigningKeyFile != "" {
		return LoadSigningKey(c.BlobSigningKeyFile)
	}
	return nil, ErrNoSigningKey
}

// LoadSigningKey reads a key file. Surrounding whitespace, including the
// trailing newline most editors add, is not part of the key.
func LoadSigningKey(path string) ([]byte, error) { // A
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key := bytes.TrimSpace(data)
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key file %s is empty", path)
	}
	return key, nil
}
