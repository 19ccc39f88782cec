// Package atomic writes files through a same-directory temp file and rename,
// so readers observe either the previous content or the new content in full.
package atomic

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TempPrefix marks transient files created next to a write target.
const TempPrefix = ".filesafe-tmp-"

const (
	DirPerm  fs.FileMode = 0755
	FilePerm fs.FileMode = 0644
)

// IsTemp reports whether name looks like a temp file left by WriteFile.
func IsTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), TempPrefix)
}

// WriteFile replaces path with data. The parent directory must exist.
// An existing file keeps its permission bits; new files get perm. When path
// is a symlink, the file it points to is replaced and the link is kept.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := flush(tmpFile); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

// MkdirAll creates dir and any missing parents, like os.MkdirAll, and
// returns the directories it created, deepest first. On failure the list
// names every directory it may have created.
func MkdirAll(dir string) ([]string, error) {
	var missing []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if _, err := os.Lstat(d); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return nil, err
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return missing, err
	}
	return missing, nil
}

// RemoveDirs removes dirs in order, skipping any that are missing or no
// longer empty. Pass the result of MkdirAll to undo it.
func RemoveDirs(dirs []string) {
	for _, d := range dirs {
		_ = os.Remove(d)
	}
}
