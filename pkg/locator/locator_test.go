package locator

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	testHash      = "bad42fa702ae3ea7d888fef11b46f450"
	testSignature = "A0123456789abcdef0123456789abcdef01234567@53bde7a1"
)

func TestParseHashAndSize(t *testing.T) { // A
	loc, err := Parse(testHash + "+44")
	require.NoError(t, err)

	assert.Equal(t, testHash, loc.Hash())
	size, ok := loc.Size()
	assert.True(t, ok)
	assert.EqualValues(t, 44, size)
	assert.Empty(t, loc.Hints())
	assert.Equal(t, testHash+"+44", loc.String())
}

func TestParseHashOnly(t *testing.T) { // A
	loc, err := Parse(testHash)
	require.NoError(t, err)

	_, ok := loc.Size()
	assert.False(t, ok)
	assert.Equal(t, testHash, loc.String())
}

func TestParseKeepsHintOrder(t *testing.T) { // A
	tok := testHash + "+44+Kzzzzz+" + testSignature + "+GS44"
	loc, err := Parse(tok)
	require.NoError(t, err)

	assert.Equal(t, []string{"Kzzzzz", testSignature, "GS44"}, loc.Hints())
	assert.Equal(t, tok, loc.String())
}

func TestParseTrimsWhitespace(t *testing.T) { // A
	loc, err := Parse("  " + testHash + "+3\n")
	require.NoError(t, err)
	assert.Equal(t, testHash+"+3", loc.String())
}

func TestParsePreservesSizeDigits(t *testing.T) { // A
	loc, err := Parse(testHash + "+0044")
	require.NoError(t, err)
	size, _ := loc.Size()
	assert.EqualValues(t, 44, size)
	assert.Equal(t, testHash+"+0044", loc.String())
}

func TestParseRejects(t *testing.T) { // A
	cases := map[string]string{
		"empty":             "",
		"blank":             "   ",
		"short hash":        "bad42fa702ae3ea7d888fef11b46f45",
		"long hash":         testHash + "0",
		"uppercase hash":    strings.ToUpper(testHash),
		"non-hex hash":      "zad42fa702ae3ea7d888fef11b46f450",
		"trailing plus":     testHash + "+44+",
		"double plus":       testHash + "++44",
		"stray plus hint":   testHash + "+44++K1234",
		"lowercase hint":    testHash + "+44+k1234",
		"single char hint":  testHash + "+44+A",
		"bad hint char":     testHash + "+44+K12.34",
		"second size":       testHash + "+44+55",
		"negative size":     testHash + "+-44",
		"size overflow":     testHash + "+99999999999999999999",
		"embedded space":    testHash + "+44 +K1234",
		"file token":        "0:44:md5sum.txt",
		"hash colon suffix": testHash + ":44",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tok)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidLocator))

			var locErr *InvalidLocatorError
			require.True(t, errors.As(err, &locErr))
			assert.Equal(t, tok, locErr.Token)
			assert.False(t, Valid(tok))
		})
	}
}

func TestSignature(t *testing.T) { // A
	loc := MustParse(testHash + "+44+K1234+" + testSignature)
	sig, ok := loc.Signature()
	require.True(t, ok)
	assert.Equal(t, testSignature, sig)

	_, ok = MustParse(testHash + "+44+K1234").Signature()
	assert.False(t, ok)
}

func TestWithoutSignatureDoesNotMutate(t *testing.T) { // A
	loc := MustParse(testHash + "+44+" + testSignature + "+K1234")
	stripped := loc.WithoutSignature()

	assert.Equal(t, testHash+"+44+K1234", stripped.String())
	assert.Equal(t, testHash+"+44+"+testSignature+"+K1234", loc.String())
}

func TestStripHints(t *testing.T) { // A
	loc := MustParse(testHash + "+44+" + testSignature + "+K1234")

	assert.Equal(t, testHash+"+44", loc.StripHints().String())
	assert.Len(t, loc.Hints(), 2)

	same := loc.StripHintsInPlace()
	assert.Same(t, &loc, same)
	assert.Equal(t, testHash+"+44", loc.String())
}

func TestWithHint(t *testing.T) { // A
	loc := MustParse(testHash + "+44")
	signed := loc.WithHint(testSignature)

	assert.Equal(t, testHash+"+44+"+testSignature, signed.String())
	assert.Equal(t, testHash+"+44", loc.String())
}

func TestBlockSize(t *testing.T) { // A
	n, ok := MustParse(testHash + "+44").BlockSize()
	assert.True(t, ok)
	assert.EqualValues(t, 44, n)

	n, ok = MustParse(testHash + "+GS12").BlockSize()
	assert.True(t, ok)
	assert.EqualValues(t, 12, n)

	n, ok = MustParse(testHash + "+3+GS100").BlockSize()
	assert.True(t, ok)
	assert.EqualValues(t, 100, n)

	n, ok = MustParse(testHash + "+3+GS7+GS9").BlockSize()
	assert.True(t, ok)
	assert.EqualValues(t, 9, n)

	_, ok = MustParse(testHash + "+K1234").BlockSize()
	assert.False(t, ok)
}

func TestIsEmptyBlock(t *testing.T) { // A
	assert.True(t, MustParse(EmptyBlock).IsEmptyBlock())
	assert.True(t, MustParse(EmptyBlockHash).IsEmptyBlock())
	assert.True(t, MustParse(EmptyBlock+"+K1234").IsEmptyBlock())
	assert.False(t, MustParse(EmptyBlockHash+"+1").IsEmptyBlock())
	assert.False(t, MustParse(testHash+"+0").IsEmptyBlock())
}

func TestMustParsePanics(t *testing.T) { // A
	assert.Panics(t, func() { MustParse("nope") })
}

// --------- property tests ---------

func drawHash(t *rapid.T) string {
	return rapid.StringMatching(`[0-9a-f]{32}`).Draw(t, "hash")
}

func drawHint(t *rapid.T) string {
	return rapid.StringMatching(`[A-Z][A-Za-z0-9@_-]{1,20}`).Draw(t, "hint")
}

func drawLocator(t *rapid.T) string {
	tok := drawHash(t)
	if rapid.Bool().Draw(t, "hasSize") {
		tok += "+" + strconv.FormatInt(rapid.Int64Range(0, 1<<40).Draw(t, "size"), 10)
	}
	hints := rapid.SliceOfN(rapid.Custom(drawHint), 0, 5).Draw(t, "hints")
	for _, h := range hints {
		tok += "+" + h
	}
	return tok
}

func TestPropertyRoundTrip(t *testing.T) { // A
	rapid.Check(t, func(t *rapid.T) {
		tok := drawLocator(t)
		loc, err := Parse(tok)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tok, err)
		}
		if loc.String() != tok {
			t.Fatalf("String() = %q, want %q", loc.String(), tok)
		}
		again, err := Parse(loc.String())
		if err != nil {
			t.Fatalf("reparse: %v", err)
		}
		if !again.Equal(loc) {
			t.Fatalf("reparsed %q != %q", again, loc)
		}
	})
}

func TestPropertyWithoutSignatureIdempotent(t *testing.T) { // A
	rapid.Check(t, func(t *rapid.T) {
		loc := MustParse(drawLocator(t))
		once := loc.WithoutSignature()
		twice := once.WithoutSignature()
		if !once.Equal(twice) {
			t.Fatalf("%q != %q", once, twice)
		}
		if _, ok := once.Signature(); ok {
			t.Fatalf("signature survived stripping: %q", once)
		}
	})
}

func TestPropertyValidMatchesParse(t *testing.T) { // A
	rapid.Check(t, func(t *rapid.T) {
		tok := rapid.String().Draw(t, "tok")
		_, err := Parse(tok)
		if Valid(tok) != (err == nil) {
			t.Fatalf("Valid(%q) disagrees with Parse error %v", tok, err)
		}
	})
}
