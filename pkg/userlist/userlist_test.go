package userlist

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceSecret = "SCRAM-SHA-256$4096:abcd$efgh:ijkl"

func TestEncodeSingleRecord(t *testing.T) {
	out := Encode([]Record{{Username: "alice", Secret: aliceSecret}})
	assert.Equal(t, `"alice" "SCRAM-SHA-256$4096:abcd$efgh:ijkl"`+"\n", string(out))
}

func TestEncodeEmpty(t *testing.T) {
	assert.Empty(t, Encode(nil))
}

func TestEncodeDoublesQuotes(t *testing.T) {
	out := Encode([]Record{{Username: `we"ird`, Secret: "x"}})
	assert.Equal(t, `"we""ird" "x"`+"\n", string(out))
}

func TestDecode(t *testing.T) {
	input := `
; managed by credsync
# comment
"alice" "SCRAM-SHA-256$4096:abcd$efgh:ijkl"
  "bob"   "md5d41d8cd98f00b204e9800998ecf8427e"
"we""ird" "x"
`
	records, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Username: "alice", Secret: aliceSecret},
		{Username: "bob", Secret: "md5d41d8cd98f00b204e9800998ecf8427e"},
		{Username: `we"ird`, Secret: "x"},
	}, records)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{name: "unquoted user", input: `alice "x"`, line: 1},
		{name: "missing secret", input: `"alice"`, line: 1},
		{name: "unterminated", input: "\"alice\" \"x\n", line: 1},
		{name: "trailing data", input: "\"a\" \"b\"\n\"alice\" \"x\" extra", line: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune(`abcXYZ019_-.@" $:/+=é`)

	randomString := func() string {
		n := 1 + rng.Intn(16)
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(out)
	}

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(8)
		records := make([]Record, 0, n)
		for i := 0; i < n; i++ {
			records = append(records, Record{
				Username: fmt.Sprintf("u%d%s", i, randomString()),
				Secret:   "SCRAM-SHA-256$4096:" + randomString(),
			})
		}

		decoded, err := Decode(Encode(records))
		require.NoError(t, err)
		if n == 0 {
			assert.Empty(t, decoded)
			continue
		}
		assert.Equal(t, records, decoded)
	}
}
