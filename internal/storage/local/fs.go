package local

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	dirMode  = 0o750
	fileMode = 0o600
)

// writeFileAtomic replaces path with data, creating parent directories as needed.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	defer root.Close()
	return writeInRoot(root, filepath.Base(path), data)
}

// writeInRoot writes name under root via a sibling temp file and a rename.
// Names that resolve outside root are rejected by os.Root.
func writeInRoot(root *os.Root, name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := root.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmpName := filepath.Join(filepath.Dir(name),
		"."+filepath.Base(name)+".tmp-"+strconv.FormatInt(time.Now().UnixNano(), 36))
	f, err := root.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	defer func() { _ = root.Remove(tmpName) }()

	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(fileMode)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := root.Rename(tmpName, name); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
