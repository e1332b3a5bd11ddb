package session

import (
	"context"
	"strings"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

// Static hands out a fixed credential without launching a browser.
type Static struct {
	cred crawler.Credential
}

// NewStatic builds a Static acquirer.
func NewStatic(cred crawler.Credential) *Static {
	return &Static{cred: cred}
}

// Acquire returns the configured credential, or an acquisition error if it is incomplete.
func (s *Static) Acquire(_ context.Context) (crawler.Credential, error) {
	if s.cred.Valid() {
		return s.cred, nil
	}
	var missing []string
	if strings.TrimSpace(s.cred.SessionCookie) == "" {
		missing = append(missing, sessionCookieName)
	}
	if strings.TrimSpace(s.cred.XSRFToken) == "" {
		missing = append(missing, xsrfCookieName)
	}
	return crawler.Credential{}, &crawler.AcquisitionError{Missing: missing}
}
