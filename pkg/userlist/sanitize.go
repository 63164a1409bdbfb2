package userlist

import (
	"fmt"
	"strings"
	"unicode"
)

// SanitizeField removes stray backslash escapes and surrounding whitespace.
// SanitizeField(SanitizeField(s)) == SanitizeField(s).
func SanitizeField(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `\`, ""))
}

// RowError reports a record that cannot be written to the auth_file.
type RowError struct {
	Index    int
	Username string
	Reason   string
}

func (e *RowError) Error() string {
	if e.Username == "" {
		return fmt.Sprintf("row %d: %s", e.Index+1, e.Reason)
	}
	return fmt.Sprintf("row %d (%q): %s", e.Index+1, e.Username, e.Reason)
}

// SanitizeRecords cleans every field and rejects rows that would produce a
// broken or ambiguous auth_file. The input slice is not modified.
func SanitizeRecords(in []Record) ([]Record, error) {
	out := make([]Record, 0, len(in))
	seen := make(map[string]int, len(in))

	for i, r := range in {
		clean := Record{
			Username: SanitizeField(r.Username),
			Secret:   SanitizeField(r.Secret),
		}

		switch {
		case clean.Username == "":
			return nil, &RowError{Index: i, Reason: "empty username"}
		case clean.Secret == "":
			return nil, &RowError{Index: i, Username: clean.Username, Reason: "empty secret"}
		case hasControl(clean.Username):
			return nil, &RowError{Index: i, Username: clean.Username, Reason: "control character in username"}
		case hasControl(clean.Secret):
			return nil, &RowError{Index: i, Username: clean.Username, Reason: "control character in secret"}
		}

		if first, dup := seen[clean.Username]; dup {
			return nil, &RowError{
				Index:    i,
				Username: clean.Username,
				Reason:   fmt.Sprintf("duplicate of row %d", first+1),
			}
		}
		seen[clean.Username] = i

		out = append(out, clean)
	}

	return out, nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
