package fileops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/shared"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrNoBackup is returned by FindLatestBackup when no snapshot exists.
var ErrNoBackup = errors.New("no backup snapshot found")

const backupInfix = ".bak."

// BackupName returns the snapshot name for path taken at now.
func BackupName(path string, now time.Time) string {
	return path + backupInfix + now.Format(shared.BackupTimeFormat)
}

// Backup copies path to <path>.bak.<timestamp> with owner-only permissions
// and returns the snapshot path. An existing snapshot is never overwritten:
// a second backup within the same second gets a -N suffix.
func (f *FileSystemOperations) Backup(ctx context.Context, path string, now time.Time) (string, error) {
	base := BackupName(path, now)

	for n := 0; n < 1000; n++ {
		dst := base
		if n > 0 {
			dst = fmt.Sprintf("%s-%d", base, n)
		}

		err := f.CopyFile(ctx, path, dst, shared.FilePermOwnerReadWrite)
		if err == nil {
			f.logger.Info("Backup snapshot created",
				zap.String("source", path),
				zap.String("backup", dst))
			return dst, nil
		}
		if exists, _ := afero.Exists(f.fs, dst); !exists {
			return "", fmt.Errorf("failed to back up %s: %w", path, err)
		}
	}

	return "", fmt.Errorf("failed to back up %s: too many snapshots named %s", path, base)
}

// FindLatestBackup returns the newest snapshot of path, ordered by the
// timestamp in its name and then by collision suffix.
func (f *FileSystemOperations) FindLatestBackup(ctx context.Context, path string) (string, error) {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path) + backupInfix

	entries, err := afero.ReadDir(f.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoBackup
		}
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	type snapshot struct {
		name  string
		stamp time.Time
		seq   int
	}
	var found []snapshot

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		stamp, seq, ok := parseBackupSuffix(strings.TrimPrefix(entry.Name(), prefix))
		if !ok {
			f.logger.Debug("Ignoring file with backup-like name", zap.String("name", entry.Name()))
			continue
		}
		found = append(found, snapshot{name: entry.Name(), stamp: stamp, seq: seq})
	}

	if len(found) == 0 {
		return "", ErrNoBackup
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].stamp.Equal(found[j].stamp) {
			return found[i].stamp.Before(found[j].stamp)
		}
		return found[i].seq < found[j].seq
	})

	latest := filepath.Join(dir, found[len(found)-1].name)
	f.logger.Debug("Latest backup located",
		zap.String("path", path),
		zap.String("backup", latest),
		zap.Int("candidates", len(found)))
	return latest, nil
}

func parseBackupSuffix(s string) (time.Time, int, bool) {
	n := len(shared.BackupTimeFormat)
	if len(s) < n {
		return time.Time{}, 0, false
	}

	t, err := time.Parse(shared.BackupTimeFormat, s[:n])
	if err != nil {
		return time.Time{}, 0, false
	}

	rest := s[n:]
	if rest == "" {
		return t, 0, true
	}
	seqStr, ok := strings.CutPrefix(rest, "-")
	if !ok {
		return time.Time{}, 0, false
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil || seq <= 0 {
		return time.Time{}, 0, false
	}
	return t, seq, true
}
