/* pkg/logger/paths.go */

package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/shared"
)

// EnsureLogPermissions creates the log directory (0700) and file (0600) if
// they are missing and tightens the file mode if it is looser.
func EnsureLogPermissions(logFilePath string) error {
	dir := filepath.Dir(logFilePath)

	if err := os.MkdirAll(dir, shared.FilePermOwnerRWX); err != nil {
		return fmt.Errorf("create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, shared.FilePermOwnerReadWrite)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", logFilePath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close log file %s: %w", logFilePath, err)
	}

	// O_CREATE does not touch the mode of an existing file
	if err := os.Chmod(logFilePath, shared.FilePermOwnerReadWrite); err != nil {
		return fmt.Errorf("chmod log file %s: %w", logFilePath, err)
	}

	return nil
}
