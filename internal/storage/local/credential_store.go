package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

const xsrfCookieSuffix = "; XSRF-TOKEN="

// CredentialConfig names the two credential slots.
type CredentialConfig struct {
	// CookieFile holds {"Cookie": "<session cookie>; XSRF-TOKEN=<token>"}.
	CookieFile string `mapstructure:"cookie_file"`
	// XSRFFile holds the bare token.
	XSRFFile string `mapstructure:"xsrf_file"`
}

type cookieDocument struct {
	Cookie string `json:"Cookie"`
}

// CredentialStore persists the credential as a cookie file and a token file.
type CredentialStore struct {
	cookieFile string
	xsrfFile   string
	logger     *zap.Logger
}

// NewCredentialStore builds a file-backed credential store.
func NewCredentialStore(cfg CredentialConfig, logger *zap.Logger) (*CredentialStore, error) {
	if strings.TrimSpace(cfg.CookieFile) == "" || strings.TrimSpace(cfg.XSRFFile) == "" {
		return nil, fmt.Errorf("cookie file and xsrf file are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialStore{
		cookieFile: cfg.CookieFile,
		xsrfFile:   cfg.XSRFFile,
		logger:     logger.Named("credentials.file"),
	}, nil
}

// Load returns the stored credential. Missing, unreadable or empty slots yield absent.
func (s *CredentialStore) Load(_ context.Context) (crawler.Credential, bool) {
	cookie, err := s.readCookie()
	if err != nil {
		s.logger.Debug("cookie slot unavailable", zap.String("path", s.cookieFile), zap.Error(err))
		return crawler.Credential{}, false
	}
	token, err := s.readToken()
	if err != nil {
		s.logger.Debug("xsrf slot unavailable", zap.String("path", s.xsrfFile), zap.Error(err))
		return crawler.Credential{}, false
	}
	cred := crawler.Credential{SessionCookie: cookie, XSRFToken: token}
	if !cred.Valid() {
		return crawler.Credential{}, false
	}
	return cred, true
}

// Save writes both slots. Each slot is replaced atomically.
func (s *CredentialStore) Save(_ context.Context, cred crawler.Credential) error {
	if !cred.Valid() {
		return fmt.Errorf("refusing to save incomplete credential: %w", crawler.ErrCredentialMissing)
	}
	doc, err := json.MarshalIndent(cookieDocument{Cookie: cred.CookieHeader()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookie file: %w", err)
	}
	if err := writeFileAtomic(s.cookieFile, doc); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	if err := writeFileAtomic(s.xsrfFile, []byte(strings.TrimSpace(cred.XSRFToken))); err != nil {
		return fmt.Errorf("write xsrf file: %w", err)
	}
	return nil
}

func (s *CredentialStore) readCookie() (string, error) {
	raw, err := os.ReadFile(s.cookieFile)
	if err != nil {
		return "", fmt.Errorf("read cookie file: %w", err)
	}
	var doc cookieDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("decode cookie file: %w", err)
	}
	cookie := strings.TrimSpace(doc.Cookie)
	if idx := strings.Index(cookie, xsrfCookieSuffix); idx >= 0 {
		cookie = cookie[:idx]
	}
	if cookie == "" {
		return "", errors.New("cookie file is empty")
	}
	return cookie, nil
}

func (s *CredentialStore) readToken() (string, error) {
	raw, err := os.ReadFile(s.xsrfFile)
	if err != nil {
		return "", fmt.Errorf("read xsrf file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("xsrf file is empty")
	}
	return token, nil
}

// Clear removes both slots. Missing files are not an error.
func (s *CredentialStore) Clear(_ context.Context) error {
	var errs []error
	for _, path := range []string{s.cookieFile, s.xsrfFile} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
