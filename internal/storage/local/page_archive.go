// Package local implements filesystem-backed stores: the credential files and an
// archive directory for raw search pages.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config locates the page archive on disk.
type Config struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// PageArchive writes raw search pages below a base directory.
type PageArchive struct {
	baseDir string
}

// New prepares cfg.BaseDir, creating it when missing, and checks that it accepts writes.
func New(cfg Config) (*PageArchive, error) {
	dir := strings.TrimSpace(cfg.BaseDir)
	if dir == "" {
		return nil, errors.New("archive base directory is required")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve archive directory: %w", err)
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("archive directory %s is not writable: %w", dir, err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("remove probe file: %w", err)
	}
	return &PageArchive{baseDir: dir}, nil
}

// PutObject stores the body at path relative to the base directory and returns a file:// URI.
func (a *PageArchive) PutObject(_ context.Context, path string, _ string, body io.Reader) (string, error) {
	name := filepath.Clean(filepath.FromSlash(strings.TrimLeft(path, "/")))
	if strings.TrimSpace(path) == "" || name == "." {
		return "", errors.New("archive path is required")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read page %s: %w", path, err)
	}

	root, err := os.OpenRoot(a.baseDir)
	if err != nil {
		return "", fmt.Errorf("open archive directory: %w", err)
	}
	defer root.Close()
	if err := writeInRoot(root, name, data); err != nil {
		return "", err
	}
	return "file://" + filepath.Join(a.baseDir, name), nil
}
