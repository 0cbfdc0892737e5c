package document

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateJSON(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		raw, ok := locateJSON(`{"labs": []}`)
		require.True(t, ok)
		assert.JSONEq(t, `{"labs": []}`, string(raw))
	})

	t.Run("markdown fences", func(t *testing.T) {
		raw, ok := locateJSON("```json\n{\"labs\": []}\n```")
		require.True(t, ok)
		assert.JSONEq(t, `{"labs": []}`, string(raw))
	})

	t.Run("surrounding prose", func(t *testing.T) {
		raw, ok := locateJSON(`Here is the extraction: {"vitals": [{"systolic": 120}]} hope that helps`)
		require.True(t, ok)
		assert.JSONEq(t, `{"vitals": [{"systolic": 120}]}`, string(raw))
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, ok := locateJSON("I could not read the document.")
		assert.False(t, ok)
	})

	t.Run("unbalanced braces", func(t *testing.T) {
		_, ok := locateJSON(`{"labs": [`)
		assert.False(t, ok)
	})
}

func TestNormalizeGender(t *testing.T) {
	cases := map[string]string{
		"f":          "female",
		"Female":     "female",
		"M":          "male",
		"male":       "male",
		"nonbinary":  "nonbinary",
		"non-binary": "nonbinary",
		"other":      "other",
		"":           "unknown",
		"attack":     "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeGender(in), "input %q", in)
	}
}

func TestParseFactTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("date only", func(t *testing.T) {
		v := "2024-01-15"
		got := parseFactTime(&v, now)
		assert.Equal(t, 2024, got.Year())
		assert.Equal(t, time.January, got.Month())
		assert.Equal(t, 15, got.Day())
	})

	t.Run("rfc3339", func(t *testing.T) {
		v := "2024-01-15T08:30:00Z"
		got := parseFactTime(&v, now)
		assert.Equal(t, 8, got.Hour())
	})

	t.Run("nil falls back to now", func(t *testing.T) {
		assert.Equal(t, now, parseFactTime(nil, now))
	})

	t.Run("garbage falls back to now", func(t *testing.T) {
		v := "last Tuesday"
		assert.Equal(t, now, parseFactTime(&v, now))
	})
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "short", truncateUTF8("short", 10))
	assert.Equal(t, "abcde", truncateUTF8("abcdefgh", 5))

	// A multi-byte rune straddling the cut is dropped whole.
	s := "abcd語"
	got := truncateUTF8(s, 5)
	assert.Equal(t, "abcd", got)
	assert.True(t, utf8.ValidString(truncateUTF8(strings.Repeat("語", 100), 80)))
	assert.Equal(t, 78, len(truncateUTF8(strings.Repeat("語", 100), 80)))
}

func TestNumericLabValue(t *testing.T) {
	v := numericLabValue("6.1")
	require.NotNil(t, v)
	assert.InDelta(t, 6.1, *v, 0.0001)

	assert.Nil(t, numericLabValue("negative"))
	assert.Nil(t, numericLabValue("1:80"))
	assert.Nil(t, numericLabValue(""))
}
