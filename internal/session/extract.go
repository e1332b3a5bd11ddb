// Package session mints EURES session credentials by driving a headless browser and
// reading the Set-Cookie headers it observes on the wire.
package session

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

const (
	sessionCookieName = "EURES_JVSE_SESSIONID"
	xsrfCookieName    = "XSRF-TOKEN"
)

var (
	sessionPattern = regexp.MustCompile(sessionCookieName + `=([^;]+)`)
	xsrfPattern    = regexp.MustCompile(xsrfCookieName + `=([^;]+)`)
)

// LogEntry is one network response observed by the browser. Header names keep the
// casing the browser reported.
type LogEntry struct {
	RequestID string
	Headers   map[string]string
}

// ExtractCredential scans the network log for the session cookie and XSRF token.
// Later matches overwrite earlier ones and the scan stops once both are known.
// Either both values are returned or an *crawler.AcquisitionError naming what is missing.
func ExtractCredential(entries []LogEntry) (crawler.Credential, error) {
	var sessionID, xsrf string
	for _, entry := range entries {
		for name, value := range entry.Headers {
			if !strings.EqualFold(name, "set-cookie") {
				continue
			}
			for _, line := range strings.Split(value, "\n") {
				if m := sessionPattern.FindStringSubmatch(line); m != nil {
					sessionID = m[1]
				}
				if m := xsrfPattern.FindStringSubmatch(line); m != nil {
					xsrf = m[1]
				}
			}
		}
		if sessionID != "" && xsrf != "" {
			break
		}
	}

	var missing []string
	if sessionID == "" {
		missing = append(missing, sessionCookieName)
	}
	if xsrf == "" {
		missing = append(missing, xsrfCookieName)
	}
	if len(missing) > 0 {
		return crawler.Credential{}, &crawler.AcquisitionError{Missing: missing}
	}
	return crawler.Credential{
		SessionCookie: sessionCookieName + "=" + sessionID,
		XSRFToken:     xsrf,
	}, nil
}
