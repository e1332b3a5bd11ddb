package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
	ps "github.com/JakeFAU/eures-crawler/internal/publisher/pubsub"
)

func newEmulatedPublisher(t *testing.T) (*ps.Publisher, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	t.Setenv("PUBSUB_EMULATOR_HOST", srv.Addr)

	ctx := context.Background()
	client, err := ps.NewClient(ctx, ps.Config{ProjectID: "eures-test"})
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "eures-runs")
	require.NoError(t, err)

	pub := ps.New(client)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublishRunSummary(t *testing.T) {
	pub, srv := newEmulatedPublisher(t)

	summary := crawler.RunSummary{RunID: "run-1", TotalRecords: 60, TotalPages: 2, ListingsIngested: 60}
	id, err := pub.Publish(context.Background(), "eures-runs", summary)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "application/json", msgs[0].Attributes["content-type"])

	var got crawler.RunSummary
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, summary.RunID, got.RunID)
	assert.Equal(t, 60, got.ListingsIngested)
}

func TestPublishUnknownTopic(t *testing.T) {
	pub, _ := newEmulatedPublisher(t)
	_, err := pub.Publish(context.Background(), "missing", map[string]string{"k": "v"})
	require.Error(t, err)
}

func TestPublishValidation(t *testing.T) {
	pub, _ := newEmulatedPublisher(t)
	_, err := pub.Publish(context.Background(), "", "payload")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "eures-runs", func() {})
	require.Error(t, err, "unmarshalable payload")

	_, err = ps.NewClient(context.Background(), ps.Config{})
	require.Error(t, err)
}
