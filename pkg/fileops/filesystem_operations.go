// Package fileops provides the filesystem side of a credential sync: reads,
// atomic replacement, and backup snapshots, on top of an afero.Fs so the
// same code runs against the real disk and in-memory test filesystems.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Ownership is applied to a file before it becomes visible at its final path.
// UID or GID of -1 leaves that id unchanged.
type Ownership struct {
	UID  int
	GID  int
	Mode os.FileMode
}

// FileSystemOperations provides filesystem operations
type FileSystemOperations struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewFileSystemOperations wraps fs. A nil fs means the host filesystem.
func NewFileSystemOperations(fs afero.Fs, logger *zap.Logger) *FileSystemOperations {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystemOperations{
		fs:     fs,
		logger: logger.Named("filesystem"),
	}
}

// ReadIfExists returns the file content and whether the file exists.
func (f *FileSystemOperations) ReadIfExists(ctx context.Context, path string) ([]byte, bool, error) {
	data, err := afero.ReadFile(f.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		f.logger.Debug("File does not exist", zap.String("path", path))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	f.logger.Debug("File read successfully",
		zap.String("path", path),
		zap.Int("size", len(data)))
	return data, true, nil
}

// AtomicWriteFile replaces path with data. The content is written to a
// temporary file in the same directory, synced, given its final mode and
// owner, then renamed over path. Readers see either the old or the new
// file, never a partial one; on failure path is untouched and the
// temporary file is removed.
func (f *FileSystemOperations) AtomicWriteFile(ctx context.Context, path string, data []byte, own Ownership) (err error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := afero.TempFile(f.fs, dir, "."+base+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			if rmErr := f.fs.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				f.logger.Warn("Failed to remove temporary file",
					zap.String("path", tmpName),
					zap.Error(rmErr))
			}
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temporary file %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temporary file %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", tmpName, err)
	}

	if err = f.fs.Chmod(tmpName, own.Mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if own.UID >= 0 || own.GID >= 0 {
		if err = f.fs.Chown(tmpName, own.UID, own.GID); err != nil {
			return fmt.Errorf("failed to chown %s: %w", tmpName, err)
		}
	}

	if err = f.fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, path, err)
	}

	f.syncDir(dir)

	f.logger.Info("File replaced atomically",
		zap.String("path", path),
		zap.Int("size", len(data)),
		zap.String("mode", own.Mode.String()),
		zap.Int("uid", own.UID),
		zap.Int("gid", own.GID))
	return nil
}

// syncDir makes the rename durable. Failure only costs durability across a
// crash, not atomicity, so it is logged and ignored.
func (f *FileSystemOperations) syncDir(dir string) {
	d, err := f.fs.Open(dir)
	if err != nil {
		f.logger.Debug("Failed to open directory for sync", zap.String("dir", dir), zap.Error(err))
		return
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		f.logger.Debug("Failed to sync directory", zap.String("dir", dir), zap.Error(err))
	}
}

// CopyFile copies src to dst, failing if dst already exists.
func (f *FileSystemOperations) CopyFile(ctx context.Context, src, dst string, perm os.FileMode) error {
	in, err := f.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := f.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}

	written, err := io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = f.fs.Remove(dst)
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	f.logger.Debug("File copied successfully",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.Int64("bytes_written", written))
	return nil
}
