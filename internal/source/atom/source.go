package atom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"announcement_relay/internal/domain"
	"announcement_relay/internal/metrics"
)

// Config holds feed fetcher configuration.
type Config struct {
	Timeout           time.Duration
	UserAgent         string
	MaxBodyBytes      int64
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Source fetches and parses Atom, RSS and JSON feeds over HTTP.
type Source struct {
	httpClient     *http.Client
	userAgent      string
	maxBodyBytes   int64
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	limiter        *hostLimiter
	logger         *slog.Logger
}

// New creates a new feed source.
func New(cfg Config, logger *slog.Logger) *Source {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:      cfg.UserAgent,
		maxBodyBytes:   cfg.MaxBodyBytes,
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		limiter:        newHostLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:         logger.With("component", "feed_source"),
	}
}

// Fetch retrieves rawURL and parses it. Failures are *domain.FeedError.
func (s *Source) Fetch(ctx context.Context, rawURL string) (*domain.Feed, error) {
	u, err := validateURL(rawURL)
	if err != nil {
		return nil, domain.NewFeedError(domain.ErrInvalidFeedURL, rawURL, err)
	}

	start := time.Now()
	body, err := s.fetchBody(ctx, u)
	metrics.ObserveFetch(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	feed, skipped, err := parse(body, rawURL)
	if err != nil {
		return nil, domain.NewFeedError(domain.ErrDeserialization, rawURL, err)
	}
	if skipped > 0 {
		s.logger.Warn("skipped entries without a usable date",
			"url", rawURL,
			"skipped", skipped,
		)
	}

	s.logger.Debug("fetched feed",
		"url", rawURL,
		"canonical_id", feed.CanonicalID,
		"announcements", len(feed.Announcements),
	)

	return feed, nil
}

func validateURL(rawURL string) (*url.URL, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func (s *Source) fetchBody(ctx context.Context, u *url.URL) ([]byte, error) {
	var body []byte
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err = s.limiter.Wait(ctx, u.Hostname()); err != nil {
			return nil, domain.NewFeedError(domain.ErrNetwork, u.String(), err)
		}

		body, err = s.doRequest(ctx, u.String())
		if err == nil {
			return body, nil
		}

		if !retryable(err) || attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"url", u.String(),
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, domain.NewFeedError(domain.ErrNetwork, u.String(), ctx.Err())
		case <-time.After(backoff):
		}
	}

	return nil, err
}

func (s *Source) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewFeedError(domain.ErrInvalidFeedURL, rawURL, err)
	}

	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFeedError(domain.ErrNetwork, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := domain.ErrInvalidFeedURL
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = domain.ErrNetwork
		}
		return nil, &domain.FeedError{Kind: kind, URL: rawURL, StatusCode: resp.StatusCode}
	}

	reader := io.Reader(resp.Body)
	if s.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, s.maxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.NewFeedError(domain.ErrNetwork, rawURL, fmt.Errorf("read body: %w", err))
	}
	if s.maxBodyBytes > 0 && int64(len(body)) > s.maxBodyBytes {
		return nil, domain.NewFeedError(domain.ErrInvalidFeedURL, rawURL,
			fmt.Errorf("feed exceeds %d bytes", s.maxBodyBytes))
	}

	return body, nil
}

// retryable reports whether another attempt may succeed: transport failures,
// 429 and 5xx. A cancelled or expired context is final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrNetwork)
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if s.maxBackoff > 0 && backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}
