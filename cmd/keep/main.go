package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	keep "github.com/i5heu/ouroboros-keep"
	"github.com/i5heu/ouroboros-keep/internal/config"
	"github.com/i5heu/ouroboros-keep/pkg/auth"
	"github.com/i5heu/ouroboros-keep/pkg/collection"
	"github.com/i5heu/ouroboros-keep/pkg/locator"
	"github.com/i5heu/ouroboros-keep/pkg/logging"
	"github.com/i5heu/ouroboros-keep/pkg/permission"
)

const (
	logKeyCommand  = "command"
	logKeyDataPath = "dataPath"
	logKeyError    = "error"
)

const usage = `Usage: keep [-config file] <command> [arguments]
Commands:
  locator <locator>                   show the parts of a locator
  sign -token T <locator>             sign a locator
  verify -token T <locator>           verify a signed locator
  pdh <manifest>                      portable data hash of a manifest
  files <manifest>                    list the files of a manifest
  tree <manifest>                     list a manifest as a directory tree
  strip <manifest>                    remove signatures from a manifest
  check <manifest>                    validate a manifest
  put -user U -token T [-name N] <manifest>
  get -user U -token T <uuid|pdh>
  search -user U <query>
A manifest argument of "-" reads standard input.`

func main() { // A
	global := flag.NewFlagSet("keep", flag.ExitOnError)
	configPath := global.String("config", "", "path to the YAML config file")
	global.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	if global.NArg() < 1 {
		global.Usage()
		os.Exit(1)
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{
		Level:   logging.ParseLevel(conf.LogLevel),
		NoColor: conf.NoColor,
	})

	cmd, args := global.Arg(0), global.Args()[1:]
	if err := run(context.Background(), conf, logger, cmd, args, os.Stdout); err != nil {
		logger.Error("command failed", logKeyCommand, cmd, logKeyError, err)
		os.Exit(1)
	}
}

func run( // A
	ctx context.Context,
	conf config.Config,
	logger *slog.Logger,
	cmd string,
	args []string,
	out io.Writer,
) error {
	switch cmd {
	case "locator":
		return cmdLocator(args, out)
	case "sign":
		return cmdSign(conf, args, out)
	case "verify":
		return cmdVerify(conf, args, out)
	case "pdh":
		return withManifest(cmd, args, func(c *collection.Collection) error {
			fmt.Fprintln(out, c.PortableDataHash())
			return nil
		})
	case "files":
		return withManifest(cmd, args, func(c *collection.Collection) error {
			for _, f := range c.Files() {
				fmt.Fprintf(out, "%s/%s\t%d\n", f.Stream, f.Name, f.Size)
			}
			return nil
		})
	case "tree":
		return withManifest(cmd, args, func(c *collection.Collection) error {
			for _, e := range c.FilesTree() {
				if e.IsDir {
					fmt.Fprintf(out, "%s/\n", e.Path())
					continue
				}
				fmt.Fprintf(out, "%s\t%d\n", e.Path(), e.Size)
			}
			return nil
		})
	case "strip":
		return withManifest(cmd, args, func(c *collection.Collection) error {
			fmt.Fprint(out, c.ManifestText())
			return nil
		})
	case "check":
		return withManifest(cmd, args, func(c *collection.Collection) error {
			if err := c.Manifest().Validate(); err != nil {
				return err
			}
			fmt.Fprintln(out, "ok")
			return nil
		})
	case "put", "get", "search":
		return cmdStore(ctx, conf, logger, cmd, args, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func cmdLocator(args []string, out io.Writer) error { // A
	if len(args) != 1 {
		return errors.New("usage: keep locator <locator>")
	}
	loc, err := locator.Parse(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "hash:\t%s\n", loc.Hash())
	if size, ok := loc.Size(); ok {
		fmt.Fprintf(out, "size:\t%d\n", size)
	}
	for _, h := range loc.Hints() {
		fmt.Fprintf(out, "hint:\t%s\n", h)
	}
	if sig, ok := loc.Signature(); ok {
		if _, expiry, err := auth.ParseSignatureHint(sig); err == nil {
			fmt.Fprintf(out, "expires:\t%s\n", expiry.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

func signer(conf config.Config) (auth.Signer, error) { // A
	key, err := conf.SigningKey()
	if err != nil {
		return auth.Signer{}, err
	}
	ttl, err := conf.SignatureTTL()
	if err != nil {
		return auth.Signer{}, err
	}
	return auth.NewSigner(key, ttl, auth.SystemClock()), nil
}

func cmdSign(conf config.Config, args []string, out io.Writer) error { // A
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	token := fs.String("token", "", "API token the signature is issued for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *token == "" {
		return errors.New("usage: keep sign -token T <locator>")
	}
	s, err := signer(conf)
	if err != nil {
		return err
	}
	signed, err := s.Sign(fs.Arg(0), *token)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, signed)
	return nil
}

func cmdVerify(conf config.Config, args []string, out io.Writer) error { // A
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	token := fs.String("token", "", "API token the signature was issued for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *token == "" {
		return errors.New("usage: keep verify -token T <locator>")
	}
	s, err := signer(conf)
	if err != nil {
		return err
	}
	if !s.Verify(fs.Arg(0), *token) {
		return permission.Denied(permission.ReasonBadSignature, fs.Arg(0), "")
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func readInput(path string) (string, error) { // A
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// withManifest loads a manifest file, strips its signatures and computes
// its portable data hash before handing it to fn.
func withManifest(cmd string, args []string, fn func(*collection.Collection) error) error { // A
	if len(args) != 1 {
		return fmt.Errorf("usage: keep %s <manifest>", cmd)
	}
	text, err := readInput(args[0])
	if err != nil {
		return err
	}
	c := collection.New(text)
	collection.StripManifestText(c)
	if err := collection.SetPortableDataHash(c); err != nil {
		return err
	}
	return fn(c)
}

func openKeep(conf config.Config, logger *slog.Logger) (*keep.Keep, error) { // A
	ttl, err := conf.SignatureTTL()
	if err != nil {
		return nil, err
	}
	key, err := conf.SigningKey()
	if err != nil && !errors.Is(err, config.ErrNoSigningKey) {
		return nil, err
	}
	storeLogger := logrus.New()
	storeLogger.SetLevel(logrusLevel(conf.LogLevel))
	return keep.New(keep.Config{
		Paths:                  []string{conf.DataPath},
		InMemory:               conf.InMemory,
		MinimumFreeGB:          conf.MinimumFreeGB,
		Compression:            conf.Compression,
		UUIDPrefix:             conf.UUIDPrefix,
		SigningKey:             key,
		SignatureTTL:           ttl,
		PermitUnsignedManifest: conf.PermitUnsignedManifest,
		DisableIndex:           !conf.Indexing(),
		Logger:                 logger,
		StoreLogger:            storeLogger,
	})
}

func logrusLevel(level string) logrus.Level { // A
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

func cmdStore( // A
	ctx context.Context,
	conf config.Config,
	logger *slog.Logger,
	cmd string,
	args []string,
	out io.Writer,
) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	user := fs.String("user", "", "uuid of the acting user")
	admin := fs.Bool("admin", false, "act as an admin")
	token := fs.String("token", "", "API token of the acting user")
	name := fs.String("name", "", "collection name (put)")
	owner := fs.String("owner", "", "owner uuid (put); defaults to the user")
	limit := fs.Int("limit", 0, "maximum number of results (search)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: keep %s -user U [flags] <argument>", cmd)
	}
	id := permission.Identity{UUID: *user, IsAdmin: *admin, IsActive: *user != ""}

	logger.DebugContext(ctx, "opening store", logKeyDataPath, conf.DataPath)
	k, err := openKeep(conf, logger)
	if err != nil {
		return err
	}
	defer k.Close()

	switch cmd {
	case "put":
		text, err := readInput(fs.Arg(0))
		if err != nil {
			return err
		}
		c, err := k.CreateCollection(ctx, id, *token, keep.CollectionInput{
			OwnerUUID:    *owner,
			Name:         *name,
			ManifestText: text,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", c.UUID, c.PortableDataHash())
	case "get":
		_, signed, err := k.GetCollection(ctx, id, *token, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprint(out, signed)
	case "search":
		hits, err := k.SearchCollections(ctx, id, strings.Join(fs.Args(), " "), *limit)
		if err != nil {
			return err
		}
		for _, c := range hits {
			fmt.Fprintf(out, "%s\t%s\t%s\n", c.UUID, c.PortableDataHash(), c.Name)
		}
	}
	return nil
}
