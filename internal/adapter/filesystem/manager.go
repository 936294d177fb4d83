package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/chunkdl/internal/port"
)

// PartialSuffix marks files still being downloaded
const PartialSuffix = ".part"

// Manager places downloads in an output directory. Bytes are written to
// "<name>.part" and renamed to "<name>" once the download completes.
type Manager struct {
	rootDir string
	now     func() time.Time
}

// Ensure Manager implements port.PartialFiles
var _ port.PartialFiles = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	return &Manager{
		rootDir: rootDir,
		now:     time.Now,
	}, nil
}

// RootDir returns the output directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// DestPath returns the final path for a file name
func (m *Manager) DestPath(name string) string {
	return filepath.Join(m.rootDir, filepath.Base(name))
}

// PartialPath returns the in-progress path for a file name
func (m *Manager) PartialPath(name string) string {
	return m.DestPath(name) + PartialSuffix
}

// OpenPartial opens the partial file for name. With keep set, existing
// bytes are preserved so a session can resume after them; otherwise the
// file is truncated.
func (m *Manager) OpenPartial(name string, keep bool) (*os.File, error) {
	path := m.PartialPath(name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open partial file: %w", err)
	}

	if !keep {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to truncate partial file: %w", err)
		}
	}

	return f, nil
}

// Commit closes f and renames its partial file to the final path
func (m *Manager) Commit(f *os.File) (string, error) {
	partial := f.Name()
	if !strings.HasSuffix(partial, PartialSuffix) {
		f.Close()
		return "", fmt.Errorf("not a partial file: %s", partial)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	dest := strings.TrimSuffix(partial, PartialSuffix)
	if err := os.Rename(partial, dest); err != nil {
		return "", fmt.Errorf("failed to rename partial file: %w", err)
	}

	return dest, nil
}

// DeletePartial removes the partial file for name
func (m *Manager) DeletePartial(name string) error {
	if err := os.Remove(m.PartialPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete partial file: %w", err)
	}
	return nil
}

// PartialSize returns the size of the partial file for name, 0 if absent
func (m *Manager) PartialSize(name string) (int64, error) {
	info, err := os.Stat(m.PartialPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// CleanOldPartials removes partial files not modified within olderThan
func (m *Manager) CleanOldPartials(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read output dir: %w", err)
	}

	threshold := m.now().Add(-olderThan)
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PartialSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		if removeErr := os.Remove(filepath.Join(m.rootDir, entry.Name())); removeErr == nil {
			count++
		}
	}
	return count, nil
}
