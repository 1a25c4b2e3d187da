// Package manifest parses Keep manifest text.
//
// A manifest is a sequence of lines, each describing one stream:
//
//	line       ::= stream-name (SP locator)* (SP file-token)* "\n"
//	file-token ::= offset ":" length ":" escaped-name
//
// Tokens after the stream name are block locators for as long as they
// parse as locators. The first token that does not parse ends the block
// list, and every later token on the line is a file token even if it
// would parse as a locator.
package manifest

import (
	"iter"
	"sync"
	"sync/atomic"

	"github.com/i5heu/ouroboros-keep/pkg/locator"
)

// Stream is one parsed manifest line. Name is unescaped; Blocks and
// Files hold the raw tokens.
type Stream struct { // A
	Name   string
	Blocks []string
	Files  []string
}

// FileSpec is one file token: a byte range of a stream contributing to
// the named file.
type FileSpec struct { // A
	Stream string
	Offset int64
	Length int64
	Name   string
}

// File is a logical file with the total length of all its ranges.
type File struct { // A
	Stream string
	Name   string
	Size   int64
}

type fileKey struct {
	stream string
	name   string
}

// Manifest wraps manifest text. It is immutable; derived views are
// computed lazily and are safe for concurrent use.
type Manifest struct { // A
	text string

	filesOnce  sync.Once
	filesReady atomic.Bool
	files      []File
	fileIndex  map[fileKey]int
}

// New wraps text.
func New(text string) *Manifest { // A
	return &Manifest{text: text}
}

// Text returns the manifest text.
func (m *Manifest) Text() string { // A
	return m.text
}

// Streams returns the parsed lines of the manifest. Blank lines are
// skipped. Each iteration re-scans the text from the start.
func (m *Manifest) Streams() iter.Seq[Stream] { // A
	return func(yield func(Stream) bool) {
		for ln := range lines(m.text) {
			lt := classifyLine(ln.text)
			if !lt.hasName {
				continue
			}
			s := Stream{
				Name:   UnescapeName(lt.name.of(ln.text)),
				Blocks: make([]string, 0, len(lt.blocks)),
				Files:  make([]string, 0, len(lt.files)),
			}
			for _, sp := range lt.blocks {
				s.Blocks = append(s.Blocks, sp.of(ln.text))
			}
			for _, sp := range lt.files {
				s.Files = append(s.Files, sp.of(ln.text))
			}
			if !yield(s) {
				return
			}
		}
	}
}

// FileSpecs returns every well-formed file token in manifest order.
// Tokens that do not split into offset, length and name are skipped.
func (m *Manifest) FileSpecs() iter.Seq[FileSpec] { // A
	return func(yield func(FileSpec) bool) {
		for s := range m.Streams() {
			for _, tok := range s.Files {
				spec, err := SplitFileToken(tok)
				if err != nil {
					continue
				}
				spec.Stream = s.Name
				if !yield(spec) {
					return
				}
			}
		}
	}
}

// Files returns each distinct (stream, name) pair with the summed
// length of all its ranges, in order of first appearance.
func (m *Manifest) Files() []File { // A
	m.filesOnce.Do(func() {
		m.fileIndex = make(map[fileKey]int)
		for spec := range m.FileSpecs() {
			k := fileKey{stream: spec.Stream, name: spec.Name}
			if i, ok := m.fileIndex[k]; ok {
				m.files[i].Size += spec.Length
				continue
			}
			m.fileIndex[k] = len(m.files)
			m.files = append(m.files, File{
				Stream: spec.Stream,
				Name:   spec.Name,
				Size:   spec.Length,
			})
		}
		m.filesReady.Store(true)
	})
	out := make([]File, len(m.files))
	copy(out, m.files)
	return out
}

// FileSize returns the total size of the named file.
func (m *Manifest) FileSize(stream, name string) (int64, bool) { // A
	m.Files()
	i, ok := m.fileIndex[fileKey{stream: stream, name: name}]
	if !ok {
		return 0, false
	}
	return m.files[i].Size, true
}

// FilesCount returns the number of distinct files. When stopAfter is
// positive and the file list has not been built yet, scanning stops as
// soon as stopAfter files have been seen and stopAfter is returned.
func (m *Manifest) FilesCount(stopAfter int) int { // A
	if stopAfter <= 0 || m.filesReady.Load() {
		return len(m.Files())
	}
	seen := make(map[fileKey]struct{})
	for spec := range m.FileSpecs() {
		seen[fileKey{stream: spec.Stream, name: spec.Name}] = struct{}{}
		if len(seen) >= stopAfter {
			return stopAfter
		}
	}
	return len(seen)
}

// ExactFileCount reports whether the manifest names exactly n files.
func (m *Manifest) ExactFileCount(n int) bool { // A
	return m.FilesCount(n+1) == n
}

// MinimumFileCount reports whether the manifest names at least n files.
func (m *Manifest) MinimumFileCount(n int) bool { // A
	return m.FilesCount(n) >= n
}

// HasFile reports whether stream contains a file called name.
func (m *Manifest) HasFile(stream, name string) bool { // A
	for spec := range m.FileSpecs() {
		if spec.Stream == stream && spec.Name == name {
			return true
		}
	}
	return false
}

// HasPath is HasFile with the stream and name taken from a path such as
// "./dir/file.txt".
func (m *Manifest) HasPath(p string) bool { // A
	stream, name := SplitPath(p)
	return m.HasFile(stream, name)
}

// DataSize returns the sum of the sizes of every block token. The second
// result is false when any block has no size hint.
func (m *Manifest) DataSize() (int64, bool) { // A
	var total int64
	for s := range m.Streams() {
		for _, tok := range s.Blocks {
			loc, err := locator.Parse(tok)
			if err != nil {
				return 0, false
			}
			n, ok := loc.BlockSize()
			if !ok {
				return 0, false
			}
			total += n
		}
	}
	return total, true
}
