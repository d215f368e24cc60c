package plantid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	apperrors "github.com/jdsidebottom/foliumai/internal/errors"
	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/sirupsen/logrus"
)

// DefaultDetails are the detail fields requested for every suggestion.
var DefaultDetails = []string{"common_names", "url", "name_authority", "description", "treatment"}

const maxBodyBytes = 10 * 1024 * 1024 // 10MB

// Client talks to the Plant.id identification service.
type Client struct {
	baseURL    string
	apiKey     string
	details    []string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default tuned HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDetails overrides the requested detail fields.
func WithDetails(details ...string) Option {
	return func(c *Client) { c.details = details }
}

// NewClient creates a client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		details:    DefaultDetails,
		httpClient: NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient returns a client with a transport tuned for small JSON calls.
// Deadlines come from the request context.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 16 << 10,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects (limit: 3)")
			}
			return nil
		},
	}
}

// HasAPIKey reports whether a credential was configured.
func (c *Client) HasAPIKey() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

func (c *Client) identificationURL() string {
	q := url.Values{}
	if len(c.details) > 0 {
		q.Set("details", strings.Join(c.details, ","))
	}
	u := c.baseURL + "/identification"
	if enc := q.Encode(); enc != "" {
		// Keep the comma list readable; the service accepts both forms.
		u += "?" + strings.ReplaceAll(enc, "%2C", ",")
	}
	return u
}

// Identify submits images. With async set the service may answer with a job
// reference instead of a result. Non-2xx answers and transport failures come
// back as *errors.AppError; a 2xx answer is returned as-is for the caller to
// inspect with Reply.Kind.
func (c *Client) Identify(ctx context.Context, images []string, async bool) (*Reply, error) {
	payload := IdentificationRequest{
		Images:              images,
		SimilarImages:       true,
		ClassificationLevel: "all",
		Health:              "all",
		Async:               async,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode identification request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.identificationURL(), bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build identification request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	logger.WithFields(logrus.Fields{
		"images": len(images),
		"async":  async,
	}).Debug("Submitting identification request")

	return c.do(req)
}

// Poll fetches the state of an accepted job.
func (c *Client) Poll(ctx context.Context, jobID, accessToken string) (*Reply, error) {
	u := c.baseURL + "/identification/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build poll request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Reply, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		appErr := ClassifyTransportError(err)
		logger.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.URL.Path,
			"code":   appErr.Type,
		}).WithError(err).Warn("Plant.id request failed")
		return nil, appErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	logger.WithFields(logrus.Fields{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Plant.id responded")

	if appErr := ClassifyStatus(resp.StatusCode); appErr != nil {
		return nil, appErr.WithDetails(fmt.Sprintf("upstream status %d", resp.StatusCode))
	}

	reply := &Reply{Status: resp.StatusCode, Body: body}
	if parsed, err := ParseResponse(body); err == nil {
		reply.Response = parsed
	}
	return reply, nil
}

// ClassifyStatus maps a non-2xx upstream status onto an application error.
// It returns nil for 2xx.
func ClassifyStatus(status int) *apperrors.AppError {
	cause := fmt.Errorf("upstream status %d", status)
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return apperrors.NewRateLimitedError(cause)
	case status == http.StatusPaymentRequired:
		return apperrors.NewQuotaExceededError(cause)
	case status >= 500:
		return apperrors.NewUnavailableError(cause)
	default:
		return apperrors.NewUpstreamError(status, cause)
	}
}

// ClassifyTransportError maps a failure to reach the service onto an
// application error using the error chain, never its message text.
func ClassifyTransportError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return apperrors.NewTimeoutError(err)
	case errors.Is(err, context.Canceled):
		// A caller that went away is reported like an expired bound.
		return apperrors.NewTimeoutError(err)
	case errors.As(err, &dnsErr):
		return apperrors.NewDNSError(err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return apperrors.NewTimeoutError(err)
	default:
		return apperrors.NewNetworkError(err)
	}
}
