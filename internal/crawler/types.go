package crawler

import (
	"encoding/json"
	"strings"
	"time"
)

// PageSize is the number of listings requested per search page.
const PageSize = 50

// Credential is the paired session cookie and XSRF token the search API requires.
// Both values are opaque; validity is only learned from server responses.
type Credential struct {
	// SessionCookie holds the full "EURES_JVSE_SESSIONID=<value>" pair.
	SessionCookie string `json:"session_cookie"`
	// XSRFToken holds the bare token value.
	XSRFToken string `json:"xsrf_token"`
}

// Valid reports whether both halves of the credential are present.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.SessionCookie) != "" && strings.TrimSpace(c.XSRFToken) != ""
}

// CookieHeader renders the Cookie request header value.
func (c Credential) CookieHeader() string {
	return c.SessionCookie + "; XSRF-TOKEN=" + c.XSRFToken
}

// Redacted returns a log-safe rendering of the credential.
func (c Credential) Redacted() string {
	return redact(c.SessionCookie) + " / " + redact(c.XSRFToken)
}

func redact(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + "…" + v[len(v)-4:]
}

// SearchListing is one entry of the "jvs" array returned by the search endpoint.
// Structured sub-documents are kept raw so they can be stored verbatim.
type SearchListing struct {
	ID                    string          `json:"id"`
	CreationDate          string          `json:"creationDate"`
	LastModificationDate  string          `json:"lastModificationDate"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	NumberOfPosts         int             `json:"numberOfPosts"`
	LocationMap           json.RawMessage `json:"locationMap"`
	EuresFlag             json.RawMessage `json:"euresFlag"`
	JobCategoriesCodes    json.RawMessage `json:"jobCategoriesCodes"`
	PositionScheduleCodes json.RawMessage `json:"positionScheduleCodes"`
	PositionOfferingCode  string          `json:"positionOfferingCode"`
	Employer              json.RawMessage `json:"employer"`
	AvailableLanguages    json.RawMessage `json:"availableLanguages"`
	Score                 float64         `json:"score"`
}

// SearchPage is a decoded search response. It is never persisted.
type SearchPage struct {
	TotalRecords int             `json:"numberRecords"`
	Listings     []SearchListing `json:"jvs"`
	// Raw keeps the undecoded body for archiving.
	Raw []byte `json:"-"`
}

// JobListing is the normalized, persisted unit keyed by ID.
type JobListing struct {
	ID                    string
	CreationDate          string
	LastModificationDate  string
	Title                 string
	Description           string
	NumberOfPosts         int
	LocationMap           string
	EuresFlag             string
	JobCategoriesCodes    string
	PositionScheduleCodes string
	PositionOfferingCode  string
	Employer              string
	AvailableLanguages    string
	Score                 float64
	Details               string
}

// RunSummary describes the outcome of one ingestion run.
type RunSummary struct {
	RunID               string    `json:"run_id"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	TotalRecords        int       `json:"total_records"`
	TotalPages          int       `json:"total_pages"`
	PagesCommitted      int       `json:"pages_committed"`
	ListingsIngested    int       `json:"listings_ingested"`
	DetailsMissing      int       `json:"details_missing"`
	CredentialRefreshes int       `json:"credential_refreshes"`
}

// TotalPages returns ceil(total/PageSize); non-positive totals yield zero pages.
func TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + PageSize - 1) / PageSize
}
