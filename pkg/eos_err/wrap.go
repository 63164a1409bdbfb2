// pkg/eos_err/wrap.go

package eos_err

import (
	cerr "github.com/cockroachdb/errors"
)

func WrapValidationError(err error) error {
	return cerr.WithHint(cerr.WithStack(err), "validation failed")
}

func WrapConfigError(err error, path string) error {
	return cerr.WithHintf(cerr.WithStack(err), "check the configuration file %s", path)
}
