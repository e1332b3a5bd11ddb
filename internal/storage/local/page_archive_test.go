package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/eures-crawler/internal/storage/local"
)

func TestNewPreparesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive", "pages")
	_, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the writability probe is cleaned up")
}

func TestNewRejectsUnusableBaseDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	for name, cfg := range map[string]local.Config{
		"blank":       {BaseDir: "  "},
		"regularFile": {BaseDir: file},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := local.New(cfg)
			require.Error(t, err)
		})
	}
}

func TestNewRejectsReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() {
		// #nosec G302 -- reverting permissions to allow cleanup.
		_ = os.Chmod(dir, 0o700)
	})

	_, err := local.New(local.Config{BaseDir: dir})
	require.Error(t, err)
}

func TestPageArchivePutObject(t *testing.T) {
	dir := t.TempDir()
	archive, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	page := `{"numberRecords":60,"jvs":[]}`
	uri, err := archive.PutObject(ctx, "raw/run-1/page-0001.json", "application/json", strings.NewReader(page))
	require.NoError(t, err)
	target := filepath.Join(dir, "raw", "run-1", "page-0001.json")
	assert.Equal(t, "file://"+target, uri)

	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, page, string(got))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = archive.PutObject(ctx, "raw/run-1/page-0001.json", "application/json", strings.NewReader("second"))
	require.NoError(t, err)
	// #nosec G304 -- test reads from the controlled temp directory.
	got, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	leftovers, err := filepath.Glob(filepath.Join(dir, "raw", "run-1", ".*tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPageArchiveRejectsBadPaths(t *testing.T) {
	dir := t.TempDir()
	archive, err := local.New(local.Config{BaseDir: filepath.Join(dir, "archive")})
	require.NoError(t, err)

	for _, path := range []string{"", "/", "../escape.json", "raw/../../escape.json"} {
		_, err := archive.PutObject(context.Background(), path, "application/json", strings.NewReader("{}"))
		assert.Error(t, err, "path %q", path)
	}
	_, err = os.Stat(filepath.Join(dir, "escape.json"))
	assert.True(t, os.IsNotExist(err))
}
