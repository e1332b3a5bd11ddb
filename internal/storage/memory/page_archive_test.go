package memory

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageArchiveKeepsPrivateCopy(t *testing.T) {
	t.Parallel()

	archive := NewPageArchive()
	payload := []byte(`{"numberRecords":1}`)
	uri, err := archive.PutObject(context.Background(), "/raw/run-1/page-0001.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://raw/run-1/page-0001.json", uri)

	payload[0] = '['
	stored, ok := archive.Object("raw/run-1/page-0001.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"numberRecords":1}`, string(stored))

	stored[0] = '['
	again, _ := archive.Object("raw/run-1/page-0001.json")
	assert.Equal(t, byte('{'), again[0], "Object returns a copy")
	assert.Equal(t, "application/json", archive.ContentType("raw/run-1/page-0001.json"))
}

func TestPageArchivePathsAndReplace(t *testing.T) {
	t.Parallel()

	archive := NewPageArchive()
	ctx := context.Background()
	for _, p := range []string{"raw/run-1/page-0002.json", "raw/run-1/page-0001.json", "raw/run-1/page-0002.json"} {
		_, err := archive.PutObject(ctx, p, "application/json", strings.NewReader(p))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"raw/run-1/page-0001.json", "raw/run-1/page-0002.json"}, archive.Paths())

	_, ok := archive.Object("raw/run-1/page-0003.json")
	assert.False(t, ok)
}

func TestPageArchiveRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewPageArchive().PutObject(context.Background(), "/", "application/json", strings.NewReader("{}"))
	require.Error(t, err)
}
