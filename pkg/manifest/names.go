package manifest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFileToken is returned by SplitFileToken.
var ErrInvalidFileToken = errors.New("invalid file token")

// UnescapeName decodes the backslash escapes of a stream or file name:
// "\\" is a backslash and "\NNN" (three octal digits) is the byte NNN.
// Any other backslash is kept as is.
func UnescapeName(s string) string { // A
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		if s[i+1] == '\\' {
			b.WriteByte('\\')
			i++
			continue
		}
		// \400 and above do not fit in a byte and stay literal.
		if i+3 < len(s) && s[i+1] >= '0' && s[i+1] <= '3' &&
			isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// EscapeName encodes a name for use as a manifest token. Backslashes are
// doubled; whitespace, control bytes and DEL become "\NNN".
func EscapeName(s string) string { // A
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c <= ' ' || c == 0x7f:
			fmt.Fprintf(&b, `\%03o`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SplitFileToken splits "offset:length:name" on the first two colons, so
// the name may itself contain colons. The name is unescaped. Stream is
// left empty.
func SplitFileToken(token string) (FileSpec, error) { // A
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return FileSpec{}, fmt.Errorf("%w %q: want offset:length:name", ErrInvalidFileToken, token)
	}
	if parts[2] == "" {
		return FileSpec{}, fmt.Errorf("%w %q: empty name", ErrInvalidFileToken, token)
	}
	offset, err := parseUint(parts[0])
	if err != nil {
		return FileSpec{}, fmt.Errorf("%w %q: offset: %v", ErrInvalidFileToken, token, err)
	}
	length, err := parseUint(parts[1])
	if err != nil {
		return FileSpec{}, fmt.Errorf("%w %q: length: %v", ErrInvalidFileToken, token, err)
	}
	return FileSpec{
		Offset: offset,
		Length: length,
		Name:   UnescapeName(parts[2]),
	}, nil
}

// SplitPath splits p into directory and base name the way Ruby's
// File.split does: "a" is (".", "a"), "./a/b" is ("./a", "b"), "." is
// (".", ".") and "/" is ("/", "/"). Unlike path.Split the directory is
// not cleaned.
func SplitPath(p string) (string, string) { // A
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		if p == "" {
			return ".", ""
		}
		return "/", "/"
	}
	i := strings.LastIndexByte(trimmed, '/')
	if i < 0 {
		return ".", trimmed
	}
	dir := strings.TrimRight(trimmed[:i], "/")
	if dir == "" {
		dir = "/"
	}
	return dir, trimmed[i+1:]
}

// JoinPath is the inverse of SplitPath for directory entries.
func JoinPath(dir, name string) string { // A
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func parseUint(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%q is not a decimal", s)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}
