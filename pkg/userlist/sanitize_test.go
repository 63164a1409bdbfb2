package userlist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeField(t *testing.T) {
	cases := map[string]string{
		"alice":                   "alice",
		"  alice \t":              "alice",
		`al\ice`:                  "alice",
		`\"alice\"`:               `"alice"`,
		` \ a`:                    "a",
		`a\ `:                     "a",
		`SCRAM-SHA-256\$4096:a\$b`: "SCRAM-SHA-256$4096:a$b",
		"":                        "",
	}
	for in, want := range cases {
		got := SanitizeField(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, SanitizeField(got), "not idempotent for %q", in)
	}
}

func TestSanitizeRecordsIdempotent(t *testing.T) {
	in := []Record{
		{Username: " alice ", Secret: `SCRAM-SHA-256\$4096:abcd\$efgh:ijkl `},
		{Username: `bob\`, Secret: "md5d41d8cd98f00b204e9800998ecf8427e"},
	}

	once, err := SanitizeRecords(in)
	require.NoError(t, err)
	twice, err := SanitizeRecords(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, "alice", once[0].Username)
	assert.Equal(t, aliceSecret, once[0].Secret)
	assert.Equal(t, "bob", once[1].Username)

	// input untouched
	assert.Equal(t, " alice ", in[0].Username)
}

func TestSanitizeRecordsRejects(t *testing.T) {
	tests := []struct {
		name   string
		in     []Record
		index  int
		reason string
	}{
		{name: "empty username", in: []Record{{Username: " \\ ", Secret: "x"}}, index: 0, reason: "empty username"},
		{name: "empty secret", in: []Record{{Username: "alice", Secret: "  "}}, index: 0, reason: "empty secret"},
		{name: "newline", in: []Record{{Username: "al\nice", Secret: "x"}}, index: 0, reason: "control character in username"},
		{name: "nul in secret", in: []Record{{Username: "alice", Secret: "a\x00b"}}, index: 0, reason: "control character in secret"},
		{
			name:   "duplicate after trim",
			in:     []Record{{Username: "alice", Secret: "x"}, {Username: "alice ", Secret: "y"}},
			index:  1,
			reason: "duplicate of row 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := SanitizeRecords(tt.in)
			require.Error(t, err)
			assert.Nil(t, out)

			var re *RowError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.index, re.Index)
			assert.Equal(t, tt.reason, re.Reason)
		})
	}
}

// Every backslash is removed, including ones that belong to a role name.
// Two roles that differ only by backslashes therefore collide.
func TestSanitizeStripsDomainBackslash(t *testing.T) {
	assert.Equal(t, "corpalice", SanitizeField(`corp\alice`))

	out, err := SanitizeRecords([]Record{
		{Username: `corp\alice`, Secret: "x"},
		{Username: "corpalice", Secret: "y"},
	})
	require.Error(t, err)
	assert.Nil(t, out)

	var re *RowError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 1, re.Index)
	assert.Equal(t, "corpalice", re.Username)
	assert.Equal(t, "duplicate of row 1", re.Reason)
}
