package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

func findBrowser(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests are skipped in short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or Chromium binary on PATH")
	return ""
}

func portalServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session":
			http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "xyz789", Path: "/"})
			w.WriteHeader(http.StatusNoContent)
		default:
			http.SetCookie(w, &http.Cookie{Name: "EURES_JVSE_SESSIONID", Value: "abc123", Path: "/", HttpOnly: true})
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><script>fetch("/session")</script></body></html>`))
		}
	}))
}

func browserConfig(t *testing.T, srv *httptest.Server) Config {
	return Config{
		TargetURL:     srv.URL + "/eures/portal/jv-se/search",
		BrowserPath:   findBrowser(t),
		Headless:      true,
		NoSandbox:     true,
		SettleTimeout: 10 * time.Second,
		PollInterval:  50 * time.Millisecond,
	}
}

func TestChromedpAcquire(t *testing.T) {
	srv := portalServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cred, err := NewChromedp(browserConfig(t, srv), zap.NewNop()).Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.Credential{SessionCookie: "EURES_JVSE_SESSIONID=abc123", XSRFToken: "xyz789"}, cred)
}

func TestRodAcquire(t *testing.T) {
	srv := portalServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cred, err := NewRod(browserConfig(t, srv), zap.NewNop()).Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.Credential{SessionCookie: "EURES_JVSE_SESSIONID=abc123", XSRFToken: "xyz789"}, cred)
}

func TestChromedpAcquireWithoutTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>maintenance</body></html>`))
	}))
	defer srv.Close()

	cfg := browserConfig(t, srv)
	cfg.SettleTimeout = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err := NewChromedp(cfg, zap.NewNop()).Acquire(ctx)
	require.ErrorIs(t, err, crawler.ErrAcquisition)
}

func TestChromedpSettleOutlivesNavigationTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session":
			time.Sleep(1500 * time.Millisecond)
			http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "late", Path: "/"})
			w.WriteHeader(http.StatusNoContent)
		default:
			http.SetCookie(w, &http.Cookie{Name: "EURES_JVSE_SESSIONID", Value: "abc123", Path: "/", HttpOnly: true})
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><script>fetch("/session")</script></body></html>`))
		}
	}))
	defer srv.Close()

	cfg := browserConfig(t, srv)
	cfg.NavigationTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cred, err := NewChromedp(cfg, zap.NewNop()).Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", cred.XSRFToken)
}
