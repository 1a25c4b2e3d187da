package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/i5heu/ouroboros-keep/pkg/locator"
)

// ErrMalformedManifest is wrapped by every error Validate returns.
var ErrMalformedManifest = errors.New("malformed manifest")

// LineError locates a validation failure on a 1-based line.
type LineError struct { // A
	Line int
	Err  error
}

func (e *LineError) Error() string { // A
	return fmt.Sprintf("manifest line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { // A
	return e.Err
}

// Validate checks the manifest against the canonical format, which is
// stricter than what the parser accepts: every line ends in "\n", tokens
// are separated by single spaces, the stream name is "." or starts with
// "./", there is at least one block and one file token, and every file
// range lies within the stream when the block sizes are known.
func (m *Manifest) Validate() error { // A
	n := 0
	for ln := range lines(m.text) {
		n++
		if err := validateLine(ln.text); err != nil {
			return &LineError{Line: n, Err: err}
		}
	}
	return nil
}

func validateLine(line string) error {
	body, ok := strings.CutSuffix(line, "\n")
	if !ok {
		return fmt.Errorf("%w: missing trailing newline", ErrMalformedManifest)
	}
	if body == "" {
		return fmt.Errorf("%w: empty line", ErrMalformedManifest)
	}

	lt := classifyLine(body)
	toks := make([]string, 0, 1+len(lt.blocks)+len(lt.files))
	toks = append(toks, lt.name.of(body))
	for _, sp := range lt.blocks {
		toks = append(toks, sp.of(body))
	}
	for _, sp := range lt.files {
		toks = append(toks, sp.of(body))
	}
	if strings.Join(toks, " ") != body {
		return fmt.Errorf("%w: tokens must be separated by single spaces", ErrMalformedManifest)
	}

	if err := validateStreamName(UnescapeName(toks[0])); err != nil {
		return err
	}
	if len(lt.blocks) == 0 {
		return fmt.Errorf("%w: stream has no block locators", ErrMalformedManifest)
	}
	if len(lt.files) == 0 {
		return fmt.Errorf("%w: stream has no file tokens", ErrMalformedManifest)
	}

	streamSize, sizeKnown := int64(0), true
	for _, sp := range lt.blocks {
		n, ok := locator.MustParse(sp.of(body)).BlockSize()
		if !ok {
			sizeKnown = false
			break
		}
		streamSize += n
	}

	for _, sp := range lt.files {
		spec, err := SplitFileToken(sp.of(body))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedManifest, err)
		}
		if sizeKnown && (spec.Length > streamSize || spec.Offset > streamSize-spec.Length) {
			return fmt.Errorf(
				"%w: file range %d:%d exceeds stream size %d",
				ErrMalformedManifest, spec.Offset, spec.Length, streamSize,
			)
		}
	}
	return nil
}

func validateStreamName(name string) error {
	if name == "." {
		return nil
	}
	rest, ok := strings.CutPrefix(name, "./")
	if !ok {
		return fmt.Errorf("%w: stream name %q must start with \"./\"", ErrMalformedManifest, name)
	}
	for _, part := range strings.Split(rest, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: stream name %q has an invalid component", ErrMalformedManifest, name)
		}
	}
	return nil
}
