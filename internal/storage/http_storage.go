package storage

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/jdsidebottom/foliumai/pkg/models"
	"github.com/jdsidebottom/foliumai/pkg/validation"
	"github.com/sirupsen/logrus"
)

const maxFetchAttempts = 3

// HTTPImageFetcher downloads images over HTTP(S) with retries on transient failures
type HTTPImageFetcher struct {
	client    *http.Client
	validator *validation.URLValidator
	maxBytes  int64
	backoff   time.Duration
}

// HTTPOption configures an HTTPImageFetcher
type HTTPOption func(*HTTPImageFetcher)

// WithBackoff sets the base delay between attempts; attempt n waits n*d
func WithBackoff(d time.Duration) HTTPOption {
	return func(h *HTTPImageFetcher) { h.backoff = d }
}

// WithClient replaces the tuned HTTP client
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTPImageFetcher) { h.client = c }
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(maxBytes int64, opts ...HTTPOption) ImageFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// Connection pooling sized for single image downloads
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	h := &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		validator: validation.NewURLValidator(),
		maxBytes:  maxBytes,
		backoff:   time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (*models.UploadedFile, error) {
	parsed, err := h.validator.Validate(imageURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		file, retryable, err := h.fetchOnce(ctx, parsed.String())
		if err == nil {
			file.Name = path.Base(parsed.Path)
			return file, nil
		}
		lastErr = err

		// 4xx client errors are non-retryable
		if !retryable || attempt == maxFetchAttempts {
			break
		}

		logger.WithFields(logrus.Fields{
			"url":     imageURL,
			"attempt": attempt,
		}).WithError(err).Debug("Image fetch failed, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to fetch image: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * h.backoff):
		}
	}

	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", maxFetchAttempts, lastErr)
}

func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) (*models.UploadedFile, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, */*")
	req.Header.Set("User-Agent", "FoliumAI/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		return nil, true, err
	}
	return newUploadedFile("", data, resp.ContentLength), false, nil
}
