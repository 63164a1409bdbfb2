package userlist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedSecret is returned when a secret cannot be expressed as a
// verifier of the expected algorithm.
var ErrMalformedSecret = errors.New("malformed secret")

const delimiter = "$"

// NormalizeSecret labels secret with tag.
//
// A secret already starting with "<tag>$" is returned unchanged. Any other
// secret is re-tagged: tag + "$" + everything after its first "$". The
// re-tagged value must still have the SCRAM verifier shape
// <iterations>:<salt>$<stored-key>:<server-key>; md5 and plain-text
// secrets have no delimiter and are rejected. No hashing happens here.
func NormalizeSecret(secret, tag string) (string, error) {
	prefix := tag + delimiter
	if strings.HasPrefix(secret, prefix) {
		return secret, nil
	}

	idx := strings.Index(secret, delimiter)
	if idx < 0 {
		return "", fmt.Errorf("%w: no %q delimiter, cannot re-tag as %s", ErrMalformedSecret, delimiter, tag)
	}

	suffix := secret[idx+1:]
	if err := validateScramBody(suffix); err != nil {
		return "", fmt.Errorf("%w: re-tagged as %s: %v", ErrMalformedSecret, tag, err)
	}

	return prefix + suffix, nil
}

func validateScramBody(body string) error {
	head, keys, ok := strings.Cut(body, delimiter)
	if !ok {
		return errors.New("missing stored-key section")
	}

	iter, salt, ok := strings.Cut(head, ":")
	if !ok {
		return errors.New("missing salt")
	}
	n, err := strconv.Atoi(iter)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid iteration count %q", iter)
	}
	if salt == "" {
		return errors.New("empty salt")
	}

	stored, server, ok := strings.Cut(keys, ":")
	if !ok || stored == "" || server == "" {
		return errors.New("expected <stored-key>:<server-key>")
	}
	if strings.ContainsAny(server, ":"+delimiter) {
		return errors.New("unexpected extra delimiter")
	}

	return nil
}
