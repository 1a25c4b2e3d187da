package manifest

import (
	"iter"
	"strings"

	"github.com/i5heu/ouroboros-keep/pkg/locator"
)

// span is a half-open byte range within a line.
type span struct {
	start, end int
}

func (s span) of(line string) string {
	return line[s.start:s.end]
}

// lineTokens is the result of classifying one line.
type lineTokens struct {
	hasName bool
	name    span
	blocks  []span
	files   []span
}

// rawLine is one line of text including its terminating newline, if any,
// and its byte offset in the whole text.
type rawLine struct {
	offset int
	text   string
}

// lines splits text after every '\n', like Ruby's each_line.
func lines(text string) iter.Seq[rawLine] {
	return func(yield func(rawLine) bool) {
		offset := 0
		for offset < len(text) {
			end := strings.IndexByte(text[offset:], '\n')
			if end < 0 {
				end = len(text)
			} else {
				end += offset + 1
			}
			if !yield(rawLine{offset: offset, text: text[offset:end]}) {
				return
			}
			offset = end
		}
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// tokenize returns the non-whitespace runs of line.
func tokenize(line string) []span {
	var out []span
	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i == len(line) {
			break
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		out = append(out, span{start: start, end: i})
	}
	return out
}

// classifyLine sorts the tokens of line in two phases: after the stream
// name, tokens are blocks while they parse as locators; once one does
// not, it and every later token are files.
func classifyLine(line string) lineTokens {
	toks := tokenize(line)
	if len(toks) == 0 {
		return lineTokens{}
	}
	lt := lineTokens{hasName: true, name: toks[0]}
	rest := toks[1:]

	i := 0
	for ; i < len(rest); i++ {
		if !locator.Valid(rest[i].of(line)) {
			break
		}
	}
	lt.blocks = rest[:i]
	lt.files = rest[i:]
	return lt
}

// RewriteLocators returns text with every block token replaced by the
// result of fn. Stream names, file tokens and all whitespace are kept
// byte for byte.
func RewriteLocators( // A
	text string,
	fn func(locator.Locator) string,
) string {
	var b strings.Builder
	b.Grow(len(text))
	for ln := range lines(text) {
		lt := classifyLine(ln.text)
		last := 0
		for _, sp := range lt.blocks {
			b.WriteString(ln.text[last:sp.start])
			loc, err := locator.Parse(sp.of(ln.text))
			if err != nil {
				b.WriteString(sp.of(ln.text))
			} else {
				b.WriteString(fn(loc))
			}
			last = sp.end
		}
		b.WriteString(ln.text[last:])
	}
	return b.String()
}
