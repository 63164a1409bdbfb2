// Package userlist reads and writes PgBouncer auth_file content:
//
//	"username" "secret"
//
// one record per line, with embedded double quotes doubled.
package userlist

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// Record is one login-capable role and its stored secret.
type Record struct {
	Username string `json:"username" yaml:"username"`
	Secret   string `json:"-" yaml:"-"`
}

// Encode serialises records in order, one line each, "\n" terminated.
func Encode(records []Record) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		buf.WriteString(quote(r.Username))
		buf.WriteByte(' ')
		buf.WriteString(quote(r.Secret))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Decode parses auth_file content. Blank lines and lines starting with
// ';' or '#' are skipped.
func Decode(data []byte) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}

		user, rest, err := unquote(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Reason: "username: " + err.Error()}
		}
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return nil, &ParseError{Line: lineNo, Reason: "missing secret"}
		}
		secret, rest, err := unquote(rest)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Reason: "secret: " + err.Error()}
		}
		if strings.TrimSpace(rest) != "" {
			return nil, &ParseError{Line: lineNo, Reason: "trailing data after secret"}
		}

		records = append(records, Record{Username: user, Secret: secret})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read userlist: %w", err)
	}

	return records, nil
}

// ParseError locates a malformed auth_file line.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("userlist line %d: %s", e.Line, e.Reason)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// unquote reads one quoted token from the start of s and returns the
// decoded value and the unread remainder.
func unquote(s string) (string, string, error) {
	if s == "" || s[0] != '"' {
		return "", s, fmt.Errorf("expected opening quote")
	}

	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '"' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '"' {
			b.WriteByte('"')
			i++
			continue
		}
		return b.String(), s[i+1:], nil
	}

	return "", "", fmt.Errorf("unterminated quote")
}
