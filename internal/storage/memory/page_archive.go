// Package memory provides in-memory credential, listing and blob stores for development and tests.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
)

type archivedPage struct {
	contentType string
	body        []byte
}

// PageArchive keeps raw search pages in a map keyed by object path.
type PageArchive struct {
	mu    sync.RWMutex
	pages map[string]archivedPage
}

// NewPageArchive returns an empty archive.
func NewPageArchive() *PageArchive {
	return &PageArchive{pages: map[string]archivedPage{}}
}

// PutObject copies the body under path and returns a memory:// URI. A later put replaces it.
func (a *PageArchive) PutObject(_ context.Context, path string, contentType string, body io.Reader) (string, error) {
	path = strings.TrimLeft(path, "/")
	if strings.TrimSpace(path) == "" {
		return "", errors.New("archive path is required")
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return "", fmt.Errorf("read page %s: %w", path, err)
	}

	a.mu.Lock()
	a.pages[path] = archivedPage{contentType: contentType, body: buf.Bytes()}
	a.mu.Unlock()
	return "memory://" + path, nil
}

// Object returns a copy of the body archived under path.
func (a *PageArchive) Object(path string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	page, ok := a.pages[path]
	return bytes.Clone(page.body), ok
}

// ContentType reports the media type recorded for path.
func (a *PageArchive) ContentType(path string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pages[path].contentType
}

// Paths lists archived object paths in lexical order.
func (a *PageArchive) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.pages))
	for path := range a.pages {
		out = append(out, path)
	}
	slices.Sort(out)
	return out
}
