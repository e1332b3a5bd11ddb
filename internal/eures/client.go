package eures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
	"github.com/JakeFAU/eures-crawler/internal/metrics"
	"github.com/JakeFAU/eures-crawler/internal/policy/ratelimit"
)

const (
	endpointSearch = "search"
	endpointDetail = "detail"

	defaultUserAgent = "Mozilla/5.0"
	defaultTimeout   = 30 * time.Second
)

// Config controls the transport behaviour of the client.
type Config struct {
	UserAgent            string
	Timeout              time.Duration
	MaxRequestsPerSecond float64
	Retry                crawler.RetryPolicy
}

// Client is the authenticated EURES API client. It owns the current credential and
// transparently refreshes it once per call when the upstream answers 403.
type Client struct {
	query    Query
	cfg      Config
	store    crawler.CredentialStore
	acquirer crawler.SessionAcquirer
	limiter  *ratelimit.Limiter
	base     *colly.Collector
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	cred      crawler.Credential
	refreshes int

	// refreshMu serializes acquisitions so concurrent callers never race a refresh.
	refreshMu sync.Mutex
}

type request struct {
	endpoint string
	method   string
	url      string
	body     []byte
	headers  http.Header
}

type response struct {
	status     int
	body       []byte
	retryAfter time.Duration
}

// New builds a Client. The store and acquirer are required.
func New(
	query Query,
	cfg Config,
	store crawler.CredentialStore,
	acquirer crawler.SessionAcquirer,
	logger *zap.Logger,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = crawler.NewExponentialRetryPolicy()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	c.DisableCookies()
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.UserAgent = cfg.UserAgent

	return &Client{
		query:    query,
		cfg:      cfg,
		store:    store,
		acquirer: acquirer,
		limiter:  ratelimit.New(ratelimit.Config{RPS: cfg.MaxRequestsPerSecond, Burst: 1}),
		base:     c,
		logger:   logger.Named("eures"),
		sleep:    sleepContext,
	}
}

// Credential returns the credential currently used for requests.
func (c *Client) Credential() crawler.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

// SetCredential replaces the credential used for subsequent requests.
func (c *Client) SetCredential(cred crawler.Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

// Refreshes reports how many credentials this client has acquired.
func (c *Client) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// Search fetches one page of search results.
func (c *Client) Search(ctx context.Context, page int) (crawler.SearchPage, error) {
	payload, err := json.Marshal(c.query.searchBody(page))
	if err != nil {
		return crawler.SearchPage{}, fmt.Errorf("encode search request: %w", err)
	}
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("Content-Type", "application/json")
	headers.Set("Origin", c.query.Origin())
	headers.Set("Referer", c.query.PortalURL())

	body, err := c.call(ctx, request{
		endpoint: endpointSearch,
		method:   http.MethodPost,
		url:      c.query.SearchURL(),
		body:     payload,
		headers:  headers,
	})
	if err != nil {
		return crawler.SearchPage{}, err
	}

	var result crawler.SearchPage
	if err := json.Unmarshal(body, &result); err != nil {
		return crawler.SearchPage{}, fmt.Errorf("decode search page %d: %w: %v", page, crawler.ErrMalformedResponse, err)
	}
	result.Raw = body
	return result, nil
}

// FetchDetail fetches the detail document for one listing. The boolean is false when the
// detail is unavailable; only authorization and cancellation failures are returned as errors.
func (c *Client) FetchDetail(ctx context.Context, id string) (json.RawMessage, bool, error) {
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("Referer", c.query.DetailReferer(id))

	body, err := c.call(ctx, request{
		endpoint: endpointDetail,
		method:   http.MethodGet,
		url:      c.query.DetailURL(id),
		headers:  headers,
	})
	if err != nil {
		if isFatal(ctx, err) {
			return nil, false, err
		}
		c.logger.Warn("detail unavailable",
			zap.String("listing_id", id),
			zap.Error(fmt.Errorf("%w: %w", crawler.ErrDetailFetch, err)),
		)
		return nil, false, nil
	}
	if !json.Valid(body) {
		c.logger.Warn("detail body is not json",
			zap.String("listing_id", id),
			zap.Error(crawler.ErrMalformedResponse),
		)
		return nil, false, nil
	}
	return json.RawMessage(body), true, nil
}

// call performs one logical request with at most one credential refresh.
func (c *Client) call(ctx context.Context, req request) ([]byte, error) {
	cred, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.doWithRetry(ctx, req, cred)
	if !errors.Is(err, crawler.ErrAuthorizationDenied) {
		return body, err
	}

	c.logger.Info("credential rejected, refreshing session",
		zap.String("endpoint", req.endpoint),
		zap.String("url", req.url),
	)
	cred, err = c.refresh(ctx, cred)
	if err != nil {
		return nil, err
	}
	body, err = c.doWithRetry(ctx, req, cred)
	if errors.Is(err, crawler.ErrAuthorizationDenied) {
		return nil, fmt.Errorf("%w: %w", crawler.ErrPersistentAuthorization, err)
	}
	return body, err
}

// current returns the in-memory credential, falling back to the store and then to acquisition.
func (c *Client) current(ctx context.Context) (crawler.Credential, error) {
	cred := c.Credential()
	if cred.Valid() {
		return cred, nil
	}
	if stored, ok := c.store.Load(ctx); ok {
		c.SetCredential(stored)
		c.logger.Debug("loaded stored credential", zap.String("credential", stored.Redacted()))
		return stored, nil
	}
	c.logger.Info("no stored credential, acquiring session", zap.Error(crawler.ErrCredentialMissing))
	return c.refresh(ctx, cred)
}

// refresh acquires a new credential unless another caller already replaced stale.
func (c *Client) refresh(ctx context.Context, stale crawler.Credential) (crawler.Credential, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if cur := c.Credential(); cur.Valid() && cur != stale {
		return cur, nil
	}

	start := time.Now()
	cred, err := c.acquirer.Acquire(ctx)
	if err != nil {
		metrics.ObserveCredentialRefresh("failure", time.Since(start))
		return crawler.Credential{}, fmt.Errorf("refresh session: %w", err)
	}
	metrics.ObserveCredentialRefresh("success", time.Since(start))

	if err := c.store.Save(ctx, cred); err != nil {
		c.logger.Warn("persist credential failed", zap.Error(err))
	}

	c.mu.Lock()
	c.cred = cred
	c.refreshes++
	c.mu.Unlock()

	c.logger.Info("session refreshed",
		zap.String("credential", cred.Redacted()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return cred, nil
}

// doWithRetry sends req, retrying transient failures per the retry policy.
// Any non-2xx status is returned as a *crawler.StatusError.
func (c *Client) doWithRetry(ctx context.Context, req request, cred crawler.Credential) ([]byte, error) {
	attempt := 0
	for {
		resp, err := c.send(ctx, req, cred)
		if err == nil && (resp.status < 200 || resp.status > 299) {
			err = &crawler.StatusError{Endpoint: req.endpoint, StatusCode: resp.status, RetryAfter: resp.retryAfter}
		}
		if err == nil {
			return resp.body, nil
		}
		attempt++
		if ctx.Err() != nil {
			return nil, err
		}
		if !c.cfg.Retry.ShouldRetry(err, attempt) {
			if ctx.Err() == nil && !errors.Is(err, crawler.ErrUpstream) {
				err = fmt.Errorf("%w: %w", crawler.ErrUpstream, err)
			}
			return nil, err
		}
		backoff := c.cfg.Retry.Backoff(err, attempt)
		c.logger.Debug("retrying request",
			zap.String("endpoint", req.endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("%s retry wait: %w", req.endpoint, err)
		}
	}
}

// send performs a single HTTP exchange through a cloned collector.
func (c *Client) send(ctx context.Context, req request, cred crawler.Credential) (response, error) {
	if err := c.limiter.Wait(ctx, req.url); err != nil {
		return response{}, err
	}

	headers := req.headers.Clone()
	headers.Set("User-Agent", c.cfg.UserAgent)
	headers.Set("X-XSRF-TOKEN", cred.XSRFToken)
	headers.Set("Cookie", cred.CookieHeader())

	collector := c.base.Clone()
	collector.Context = ctx

	var (
		result  response
		respErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = newResponse(r)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result = newResponse(r)
		}
		respErr = err
	})

	start := time.Now()
	err := runCollector(ctx, func() error {
		var body io.Reader
		if req.body != nil {
			body = bytes.NewReader(req.body)
		}
		return collector.Request(req.method, req.url, body, nil, headers)
	})
	metrics.ObserveAPIRequest(req.endpoint, result.status, time.Since(start))
	if err != nil {
		return response{}, fmt.Errorf("%s request: %w", req.endpoint, err)
	}
	if respErr != nil && result.status == 0 {
		return response{}, fmt.Errorf("%s response: %w", req.endpoint, respErr)
	}
	return result, nil
}

func newResponse(r *colly.Response) response {
	res := response{status: r.StatusCode, body: append([]byte(nil), r.Body...)}
	if r.Headers != nil {
		res.retryAfter = parseRetryAfter(r.Headers.Get("Retry-After"), time.Now())
	}
	return res
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// runCollector runs visit on the calling goroutine; the collector is bound to ctx, so
// callbacks have finished by the time it returns.
func runCollector(ctx context.Context, visit func() error) error {
	err := visit()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("colly request canceled: %w", ctxErr)
	}
	return err
}

// isFatal reports failures that end the run. Deadline errors while ctx is live are
// client timeouts and degrade like any other transport error.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, crawler.ErrPersistentAuthorization) ||
		errors.Is(err, crawler.ErrAcquisition)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
