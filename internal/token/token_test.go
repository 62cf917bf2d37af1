package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{
		"Math",
		"Computer Science",
		"Ona tili_va adabiyot",
		"2024-05-17",
		"Abdullayev Sardor",
		"Физика",
		"a%b%%c",
		"",
		"_%20_",
	}
	for _, raw := range cases {
		require.Equal(t, raw, Decode(Encode(raw)), "round trip for %q", raw)
	}
}

func TestEncodeEscapesDelimiters(t *testing.T) {
	assert.NotContains(t, Encode("snake_case name"), "_")
	assert.NotContains(t, Encode("two words"), " ")
}

func TestEncodeKeepsSafeAlphabet(t *testing.T) {
	assert.Equal(t, "Math-101.v2~x", Encode("Math-101.v2~x"))
}

func TestDecodeMalformedIsBestEffort(t *testing.T) {
	// bad or truncated escapes pass through verbatim, never panic
	assert.Equal(t, "%", Decode("%"))
	assert.Equal(t, "%2", Decode("%2"))
	assert.Equal(t, "%zz", Decode("%zz"))
	assert.Equal(t, "abc%", Decode("abc%"))
	assert.Equal(t, "A%2", Decode("%41%2"))
}
