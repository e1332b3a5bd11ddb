package uuid

import (
	"strings"
	"testing"
	"time"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New("")
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	assert.Equal(t, goUUID.Version(7), parsed.Version())
	assert.LessOrEqual(t, id1, id2, "uuid7 ids sort by creation time")
}

func TestGeneratorPrefix(t *testing.T) {
	t.Parallel()

	id, err := New("eures").NewID()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "eures-"))

	parsed, err := goUUID.Parse(strings.TrimPrefix(id, "eures-"))
	require.NoError(t, err)
	sec, nsec := parsed.Time().UnixTime()
	assert.WithinDuration(t, time.Now(), time.Unix(sec, nsec), 5*time.Second)
}
