package crawler

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// CredentialStore persists the session credential across runs.
// Load never fails: a missing or unreadable credential is reported as absent.
type CredentialStore interface {
	Load(ctx context.Context) (Credential, bool)
	Save(ctx context.Context, cred Credential) error
}

// CredentialClearer is implemented by stores that can forget the stored credential.
type CredentialClearer interface {
	Clear(ctx context.Context) error
}

// SessionAcquirer mints a fresh credential, typically by driving a browser.
type SessionAcquirer interface {
	Acquire(ctx context.Context) (Credential, error)
}

// APIClient issues authenticated search and detail requests.
type APIClient interface {
	Search(ctx context.Context, page int) (SearchPage, error)
	// FetchDetail returns the raw detail document and false when it could not be fetched.
	FetchDetail(ctx context.Context, id string) (json.RawMessage, bool, error)
	Refreshes() int
}

// ListingRepository stores normalized listings with insert-or-overwrite semantics.
type ListingRepository interface {
	Begin(ctx context.Context) (ListingBatch, error)
}

// ListingBatch groups the upserts of one page into a single durable commit.
type ListingBatch interface {
	Upsert(ctx context.Context, listing JobListing) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run completion events to downstream stages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
