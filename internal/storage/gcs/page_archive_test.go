package gcs_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/eures-crawler/internal/storage/gcs"
)

type upload struct {
	path       string
	uploadType string
	body       string
}

// fakeGCS records uploads and answers with a minimal object resource.
type fakeGCS struct {
	mu      sync.Mutex
	uploads []upload
	status  int
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.uploads = append(f.uploads, upload{path: r.URL.Path, uploadType: r.URL.Query().Get("uploadType"), body: string(body)})
	status := f.status
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"bucket":"eures-archive","name":"raw/run-1/page-0001.json"}`)
}

func newTestArchive(t *testing.T, fake *fakeGCS) *gcs.PageArchive {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := gcs.Config{Bucket: "eures-archive", Endpoint: srv.URL}
	client, err := gcs.NewClient(context.Background(), cfg)
	require.NoError(t, err)
	archive, err := gcs.New(client, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })
	return archive
}

func TestPutObjectUploadsPage(t *testing.T) {
	fake := &fakeGCS{}
	archive := newTestArchive(t, fake)
	page := `{"numberRecords":60,"jvs":[]}`

	uri, err := archive.PutObject(context.Background(), "/raw/run-1/page-0001.json", "application/json", strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "gs://eures-archive/raw/run-1/page-0001.json", uri)

	require.Len(t, fake.uploads, 1)
	got := fake.uploads[0]
	assert.Contains(t, got.path, "/upload/storage/v1/b/eures-archive/o")
	assert.Equal(t, "multipart", got.uploadType)
	assert.Contains(t, got.body, page)
	assert.Contains(t, got.body, "application/json")
	assert.Contains(t, got.body, "raw/run-1/page-0001.json")
}

func TestPutObjectReportsUploadFailure(t *testing.T) {
	archive := newTestArchive(t, &fakeGCS{status: http.StatusForbidden})

	_, err := archive.PutObject(context.Background(), "raw/page.json", "application/json", strings.NewReader("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gs://eures-archive/raw/page.json")
}

func TestPutObjectRequiresPath(t *testing.T) {
	fake := &fakeGCS{}
	archive := newTestArchive(t, fake)
	for _, p := range []string{"", " ", "/"} {
		_, err := archive.PutObject(context.Background(), p, "application/json", strings.NewReader("{}"))
		require.Error(t, err, "path %q", p)
	}
	assert.Empty(t, fake.uploads)
}

func TestNewValidation(t *testing.T) {
	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	require.Error(t, err)

	client, err := gcs.NewClient(context.Background(), gcs.Config{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)
	defer client.Close()
	_, err = gcs.New(client, gcs.Config{Bucket: " "})
	require.Error(t, err)
}
