// pkg/privilege_check/privileges.go
package privilege_check

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// PrivilegeLevel describes the effective identity of the process.
type PrivilegeLevel string

const (
	PrivilegeLevelRoot    PrivilegeLevel = "root"
	PrivilegeLevelRegular PrivilegeLevel = "regular"
)

// PrivilegeCheck is the result of inspecting the effective identity.
type PrivilegeCheck struct {
	UserID   int
	GroupID  int
	Username string
	IsRoot   bool
	Level    PrivilegeLevel
}

// Identity reports the effective uid and gid. Tests replace it.
type Identity interface {
	Geteuid() int
	Getegid() int
}

type processIdentity struct{}

func (processIdentity) Geteuid() int { return os.Geteuid() }
func (processIdentity) Getegid() int { return os.Getegid() }

// ProcessIdentity is the identity of the running process.
var ProcessIdentity Identity = processIdentity{}

// CheckPrivileges inspects id without failing on a non-root identity.
func CheckPrivileges(ctx context.Context, id Identity) *PrivilegeCheck {
	logger := otelzap.Ctx(ctx)

	if id == nil {
		id = ProcessIdentity
	}

	check := &PrivilegeCheck{
		UserID:  id.Geteuid(),
		GroupID: id.Getegid(),
	}
	check.IsRoot = check.UserID == 0
	check.Level = PrivilegeLevelRegular
	if check.IsRoot {
		check.Level = PrivilegeLevelRoot
	}

	if u, err := user.LookupId(strconv.Itoa(check.UserID)); err == nil {
		check.Username = u.Username
	} else {
		check.Username = fmt.Sprintf("uid-%d", check.UserID)
	}

	logger.Debug("Privilege check completed",
		zap.String("username", check.Username),
		zap.Int("uid", check.UserID),
		zap.Int("gid", check.GroupID),
		zap.String("level", string(check.Level)))

	return check
}

// RequireRoot fails unless the effective uid is 0.
func RequireRoot(ctx context.Context, id Identity) error {
	check := CheckPrivileges(ctx, id)
	if check.IsRoot {
		return nil
	}
	return eos_err.NewPermissionError(
		"the credential file and service",
		fmt.Sprintf("manage (running as %s, uid %d)", check.Username, check.UserID),
		"re-run the command as root, e.g. with sudo",
	)
}
