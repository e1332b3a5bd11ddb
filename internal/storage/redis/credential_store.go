// Package redisstore keeps the session credential in Redis so several crawler
// hosts can share one session.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

const defaultPrefix = "eures:credential:"

// Config controls the Redis connection.
type Config struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CredentialStore stores the cookie and token under two keys without expiry.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewClient opens a Redis client from cfg.
func NewClient(cfg Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// NewCredentialStore wraps client. An empty prefix selects the default.
func NewCredentialStore(client redis.UniversalClient, prefix string, logger *zap.Logger) (*CredentialStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialStore{client: client, prefix: prefix, logger: logger.Named("credentials.redis")}, nil
}

func (s *CredentialStore) cookieKey() string { return s.prefix + "cookie" }
func (s *CredentialStore) xsrfKey() string   { return s.prefix + "xsrf" }

// Load returns the stored credential; any failure is reported as absent.
func (s *CredentialStore) Load(ctx context.Context) (crawler.Credential, bool) {
	values, err := s.client.MGet(ctx, s.cookieKey(), s.xsrfKey()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("load credential failed", zap.Error(err))
		}
		return crawler.Credential{}, false
	}
	if len(values) != 2 {
		return crawler.Credential{}, false
	}
	cookie, _ := values[0].(string)
	token, _ := values[1].(string)
	cred := crawler.Credential{
		SessionCookie: strings.TrimSpace(cookie),
		XSRFToken:     strings.TrimSpace(token),
	}
	if !cred.Valid() {
		return crawler.Credential{}, false
	}
	return cred, true
}

// Save writes both keys in a single MULTI/EXEC.
func (s *CredentialStore) Save(ctx context.Context, cred crawler.Credential) error {
	if !cred.Valid() {
		return fmt.Errorf("refusing to save incomplete credential: %w", crawler.ErrCredentialMissing)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.cookieKey(), strings.TrimSpace(cred.SessionCookie), 0)
		pipe.Set(ctx, s.xsrfKey(), strings.TrimSpace(cred.XSRFToken), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save credential: %w", err)
	}
	return nil
}

// Clear removes both keys.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.cookieKey(), s.xsrfKey()).Err(); err != nil {
		return fmt.Errorf("redis clear credential: %w", err)
	}
	return nil
}
