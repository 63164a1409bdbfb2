package pgbouncer

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// Capabilities is what the source and target report about secret formats.
// Empty or nil fields mean the value could not be determined.
type Capabilities struct {
	PasswordEncryption string
	AuthType           string
	Version            *version.Version
}

// Finding describes one incompatibility with SCRAM secrets.
type Finding struct {
	Check   string
	Message string
}

// authTypes that accept SCRAM verifiers from auth_file.
var scramAuthTypes = map[string]bool{
	"scram-sha-256": true,
	"md5":           true,
	"hba":           true,
}

// Assess compares caps against what SCRAM secrets need. min is the oldest
// PgBouncer release that reads SCRAM verifiers from auth_file.
func Assess(caps Capabilities, min *version.Version) []Finding {
	var findings []Finding

	switch caps.PasswordEncryption {
	case "scram-sha-256":
	case "":
		findings = append(findings, Finding{Check: "password_encryption",
			Message: "could not determine source password_encryption"})
	default:
		findings = append(findings, Finding{Check: "password_encryption",
			Message: fmt.Sprintf("source password_encryption is %q, new passwords will not be stored as SCRAM-SHA-256", caps.PasswordEncryption)})
	}

	switch {
	case caps.AuthType == "":
		findings = append(findings, Finding{Check: "auth_type",
			Message: "could not determine target auth_type"})
	case !scramAuthTypes[caps.AuthType]:
		findings = append(findings, Finding{Check: "auth_type",
			Message: fmt.Sprintf("target auth_type is %q, SCRAM secrets in auth_file will not be used", caps.AuthType)})
	}

	switch {
	case caps.Version == nil:
		findings = append(findings, Finding{Check: "version",
			Message: "could not determine target version"})
	case min != nil && caps.Version.LessThan(min):
		findings = append(findings, Finding{Check: "version",
			Message: fmt.Sprintf("target version %s is older than %s, SCRAM secrets from auth_file are not supported", caps.Version, min)})
	}

	return findings
}
