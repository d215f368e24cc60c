package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/jdsidebottom/foliumai/internal/analysis"
	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/jdsidebottom/foliumai/pkg/models"
	"github.com/jdsidebottom/foliumai/pkg/validation"
	"github.com/sirupsen/logrus"
)

const (
	PlantNameTimedOut = "Request Timed Out"
	PlantNameNetwork  = "Network Error"
	PlantNameCanceled = "Request Cancelled"
	MessageTimedOut   = "The request took too long. Please check your connection and try again."
	MessageNetwork    = "Could not reach the identification service. Please check your connection and try again."
	MessageCanceled   = "The identification was cancelled before a result arrived. Please try again."

	maxReplyBytes = 10 * 1024 * 1024
)

// Submitter sends one compressed image to the proxy and always returns a record.
type Submitter interface {
	Submit(ctx context.Context, img *EncodedImage) models.AnalysisRecord
}

// Client posts images to the identification proxy.
type Client struct {
	proxyURL   string
	timeout    time.Duration
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a proxy client. Every submission is bounded by timeout.
func NewClient(proxyURL string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	if _, err := validation.NewURLValidator().Validate(proxyURL); err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	c := &Client{
		proxyURL: proxyURL,
		timeout:  timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts {images:[b64]} and normalizes whatever comes back. Error
// envelopes from the proxy pass through the normalizer like any other body.
func (c *Client) Submit(ctx context.Context, img *EncodedImage) models.AnalysisRecord {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(models.IdentifyRequest{Images: []string{img.Base64}})
	if err != nil {
		return RecordFromError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL, bytes.NewReader(payload))
	if err != nil {
		return RecordFromError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportRecord(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return transportRecord(err)
	}

	rec := analysis.Normalize(body)
	logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
		"plant_name":  rec.PlantName,
		"error":       rec.Error,
	}).Info("Proxy replied")
	return rec
}

func transportRecord(err error) models.AnalysisRecord {
	var rec models.AnalysisRecord
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		rec = models.ErrorRecord(PlantNameTimedOut, MessageTimedOut)
		rec.Code = "timeout"
	} else if errors.Is(err, context.Canceled) {
		rec = models.ErrorRecord(PlantNameCanceled, MessageCanceled)
		rec.Code = "canceled"
	} else {
		rec = models.ErrorRecord(PlantNameNetwork, MessageNetwork)
		rec.Code = "network"
	}
	rec.Retryable = true
	logger.WithError(err).WithField("code", rec.Code).Warn("Proxy request failed")
	return rec
}
