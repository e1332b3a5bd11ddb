package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

func openTestStore(t *testing.T) *ListingStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func listing(id, title, details string) crawler.JobListing {
	return crawler.JobListing{
		ID:                    id,
		CreationDate:          "2024-05-01T10:00:00Z",
		Title:                 title,
		NumberOfPosts:         2,
		LocationMap:           `{"BE":["BE1"]}`,
		EuresFlag:             "true",
		JobCategoriesCodes:    "null",
		PositionScheduleCodes: `["fulltime"]`,
		Employer:              "null",
		AvailableLanguages:    `["en"]`,
		Score:                 0.42,
		Details:               details,
	}
}

func upsertPage(t *testing.T, store *ListingStore, listings ...crawler.JobListing) {
	t.Helper()
	ctx := context.Background()
	batch, err := store.Begin(ctx)
	require.NoError(t, err)
	for _, l := range listings {
		require.NoError(t, batch.Upsert(ctx, l))
	}
	require.NoError(t, batch.Commit(ctx))
}

func TestUpsertRoundTrip(t *testing.T) {
	store := openTestStore(t)
	want := listing("a1", "Head of Engineering", `{"id":"a1"}`)
	upsertPage(t, store, want)

	got, ok, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	l := listing("a1", "Head of Engineering", "null")
	upsertPage(t, store, l)
	upsertPage(t, store, l)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertLastWriteWins(t *testing.T) {
	store := openTestStore(t)
	upsertPage(t, store, listing("a1", "old title", `{"v":1}`))
	upsertPage(t, store, listing("a1", "new title", "null"))

	got, ok, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new title", got.Title)
	assert.Equal(t, "null", got.Details)
}

func TestRollbackDiscardsPage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	batch, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Upsert(ctx, listing("a1", "t", "null")))
	require.NoError(t, batch.Rollback(ctx))
	require.NoError(t, batch.Rollback(ctx), "second rollback is a no-op")

	_, ok, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertRequiresID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	batch, err := store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = batch.Rollback(ctx) }()

	require.Error(t, batch.Upsert(ctx, crawler.JobListing{}))
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
}

func TestPing(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
}
