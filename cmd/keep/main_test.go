package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-keep/internal/config"
	"github.com/i5heu/ouroboros-keep/pkg/logging"
)

const testManifest = ". acbd18db4cc2f85cedef654fccc4a4d8+3 0:3:foo.txt\n./sub 37b51d194a7513e45b56f6524f2d51f2+3 0:3:bar.txt\n"

func testConfig() config.Config {
	conf := config.Default()
	conf.InMemory = true
	conf.BlobSigningKey = "cli-test-key"
	return conf
}

func writeManifest(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func runCmd(t *testing.T, conf config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), conf, logging.Discard(), args[0], args[1:], &out)
	return out.String(), err
}

func TestLocatorCommand(t *testing.T) { // A
	out, err := runCmd(t, testConfig(), "locator", "acbd18db4cc2f85cedef654fccc4a4d8+3+Kzzzzz")
	require.NoError(t, err)
	assert.Contains(t, out, "hash:\tacbd18db4cc2f85cedef654fccc4a4d8\n")
	assert.Contains(t, out, "size:\t3\n")
	assert.Contains(t, out, "hint:\tKzzzzz\n")

	_, err = runCmd(t, testConfig(), "locator", "nope")
	assert.Error(t, err)
}

func TestSignAndVerifyCommands(t *testing.T) { // A
	conf := testConfig()
	out, err := runCmd(t, conf, "sign", "-token", "tok", "acbd18db4cc2f85cedef654fccc4a4d8+3")
	require.NoError(t, err)
	signed := strings.TrimSpace(out)
	assert.Contains(t, signed, "+A")

	out, err = runCmd(t, conf, "verify", "-token", "tok", signed)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = runCmd(t, conf, "verify", "-token", "other", signed)
	assert.Error(t, err)

	conf.BlobSigningKey = ""
	_, err = runCmd(t, conf, "sign", "-token", "tok", "acbd18db4cc2f85cedef654fccc4a4d8+3")
	assert.ErrorIs(t, err, config.ErrNoSigningKey)
}

func TestManifestCommands(t *testing.T) { // A
	path := writeManifest(t, testManifest)
	conf := testConfig()

	out, err := runCmd(t, conf, "files", path)
	require.NoError(t, err)
	assert.Equal(t, "./foo.txt\t3\n./sub/bar.txt\t3\n", out)

	out, err = runCmd(t, conf, "tree", path)
	require.NoError(t, err)
	assert.Equal(t, "./sub/\n./sub/bar.txt\t3\n./foo.txt\t3\n", out)

	out, err = runCmd(t, conf, "strip", path)
	require.NoError(t, err)
	assert.Equal(t, testManifest, out)

	out, err = runCmd(t, conf, "check", path)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = runCmd(t, conf, "check", writeManifest(t, ". 0:3:foo.txt\n"))
	assert.Error(t, err)

	out, err = runCmd(t, conf, "pdh", path)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{32}\+[0-9]+\n$`, out)
}

func TestPutCommand(t *testing.T) { // A
	conf := testConfig()
	conf.BlobSigningKey = ""
	conf.PermitUnsignedManifest = true

	out, err := runCmd(t, conf, "put",
		"-user", "zzzzz-tpzed-aaaaaaaaaaaaaaa",
		"-name", "cli upload",
		writeManifest(t, testManifest),
	)
	require.NoError(t, err)
	assert.Regexp(t, `^zzzzz-4zz18-[0-9a-z]{15}\t[0-9a-f]{32}\+[0-9]+\n$`, out)

	_, err = runCmd(t, conf, "put", writeManifest(t, testManifest))
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) { // A
	_, err := runCmd(t, testConfig(), "frobnicate")
	assert.Error(t, err)
}
