package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"streamflux/internal/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// limit response size to prevent memory issues
const maxResponseSize = 5 * 1024 * 1024

var ErrNotFound = errors.New("resource not found")

// fetcher is the shared GET client of the content providers: paced by a
// rate limiter, retried with linear backoff.
type fetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
	maxRetries int
	retryDelay time.Duration
	userAgent  string
}

// newFetcher lets burst requests through at once before pacing them by
// cfg.RateLimit.
func newFetcher(cfg config.HTTPClient, logger *logrus.Logger, burst int) *fetcher {
	if logger == nil {
		logger = logrus.New()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Every(cfg.RateLimit)
	}
	if burst < 1 {
		burst = 1
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}

	return &fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		maxRetries: retries,
		retryDelay: cfg.RetryDelay,
		userAgent:  cfg.UserAgent,
	}
}

// get returns the body of a 200 response. A 404 is returned as ErrNotFound
// right away; other failures are retried.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var rErr error

	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, status, err := f.do(ctx, url)
		if err == nil {
			f.logger.WithFields(logrus.Fields{
				"url":           redact(url),
				"attempt":       attempt,
				"status":        status,
				"response_size": len(body),
			}).Debug("API request successful")
			return body, nil
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}

		rErr = err
		f.retryLogger(attempt, url, err)
		if err := f.waitForRetry(ctx, attempt); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", f.maxRetries, rErr)
}

func (f *fetcher) do(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, resp.StatusCode, fmt.Errorf("API returned status code %d", resp.StatusCode)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > maxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes", resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("response too large: exceeded %d bytes", maxResponseSize)
	}
	return body, nil
}

func (f *fetcher) retryLogger(attempt int, url string, err error) {
	f.logger.WithFields(logrus.Fields{
		"attempt": attempt + 1,
		"url":     redact(url),
		"error":   err.Error(),
	}).Warn("API request failed, retrying...")
}

func (f *fetcher) waitForRetry(ctx context.Context, attempt int) error {
	if attempt >= f.maxRetries-1 {
		return nil
	}

	delay := time.Duration(attempt+1) * f.retryDelay
	f.logger.WithField("delay", delay).Debug("waiting before retry")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// redact hides the TMDB api key in logged URLs.
func redact(target string) string {
	i := strings.Index(target, "api_key=")
	if i < 0 {
		return target
	}
	rest := target[i+len("api_key="):]
	if j := strings.IndexByte(rest, '&'); j >= 0 {
		return target[:i] + "api_key=REDACTED" + rest[j:]
	}
	return target[:i] + "api_key=REDACTED"
}
