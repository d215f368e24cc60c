package transport_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/jdsidebottom/foliumai/internal/config"
	"github.com/jdsidebottom/foliumai/internal/container"
	"github.com/jdsidebottom/foliumai/internal/plantid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	upstreamURL = "https://plantid.test/v3/identification"
	okBody      = `{"result":{"is_plant":{"binary":true},"classification":{"suggestions":[{"name":"Monstera deliciosa","probability":0.95}]}}}`
	validReq    = `{"images":["QUJD"]}`
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Host:               "127.0.0.1",
		Port:               "8080",
		RequestTimeout:     30 * time.Second,
		UpstreamTimeout:    12 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024,
		MaxImageKB:         1024,
		PlantIDAPIKey:      "test-key",
		PlantIDBaseURL:     "https://plantid.test/v3",
		Strategy:           config.StrategyDirect,
		PollInterval:       time.Millisecond,
		PollAttempts:       3,
		RateLimitBurst:     5,
	}
}

func newServer(t *testing.T, cfg *config.Config) (http.Handler, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c, err := container.NewContainer(cfg, "test", plantid.WithHTTPClient(&http.Client{Transport: mt}))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c.Handler(), mt
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestIdentify_PassesUpstreamBodyThrough(t *testing.T) {
	h, mt := newServer(t, testConfig())
	mt.RegisterResponder(http.MethodPost, upstreamURL, httpmock.NewStringResponder(200, okBody))

	for _, path := range []string{"/identify", "/api/identify-plant"} {
		w := do(h, http.MethodPost, path, validReq)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, okBody, w.Body.String())
		assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestIdentify_RateLimitedUpstreamAlwaysYields429(t *testing.T) {
	bodies := []string{``, `{}`, `{"result":{}}`, `<html>slow down</html>`}
	for _, body := range bodies {
		h, mt := newServer(t, testConfig())
		mt.RegisterResponder(http.MethodPost, upstreamURL, httpmock.NewStringResponder(429, body))

		w := do(h, http.MethodPost, "/identify", validReq)
		require.Equal(t, http.StatusTooManyRequests, w.Code, body)
		env := envelope(t, w)
		assert.Equal(t, true, env["error"])
		assert.Equal(t, "Rate Limited", env["plantName"])
		assert.Contains(t, env["message"], "Too many requests")
		assert.Equal(t, float64(0), env["healthScore"])
	}
}

func TestIdentify_UpstreamStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantName   string
	}{
		{"quota", 402, `{}`, 402, "Quota Exceeded"},
		{"server error", 500, `{}`, 503, "Service Down"},
		{"gateway", 504, ``, 503, "Service Down"},
		{"unauthorized", 401, `{"error":"bad key"}`, 500, "Error"},
		{"ok without result", 200, `{"status":"ok"}`, 502, "Invalid Response"},
		{"ok not json", 200, `not json`, 502, "Invalid Response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mt := newServer(t, testConfig())
			mt.RegisterResponder(http.MethodPost, upstreamURL, httpmock.NewStringResponder(tt.status, tt.body))

			w := do(h, http.MethodPost, "/identify", validReq)
			assert.Equal(t, tt.wantStatus, w.Code)
			env := envelope(t, w)
			assert.Equal(t, true, env["error"])
			assert.Equal(t, tt.wantName, env["plantName"])
			assert.NotEmpty(t, env["message"])
			assert.Equal(t, float64(0), env["healthScore"])
		})
	}
}

func TestIdentify_UpstreamTimeoutYields408WithinBound(t *testing.T) {
	cfg := testConfig()
	cfg.UpstreamTimeout = 100 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	h, mt := newServer(t, cfg)
	mt.RegisterResponder(http.MethodPost, upstreamURL, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	start := time.Now()
	w := do(h, http.MethodPost, "/identify", validReq)
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Less(t, elapsed, cfg.RequestTimeout)
	env := envelope(t, w)
	assert.Equal(t, "Timeout", env["plantName"])
	assert.Equal(t, true, env["retryable"])
	assert.Equal(t, float64(0), env["healthScore"])
}

func TestIdentify_NetworkFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "plantid.test", IsNotFound: true}, "dns"},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, "network"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mt := newServer(t, testConfig())
			mt.RegisterResponder(http.MethodPost, upstreamURL, httpmock.NewErrorResponder(tt.err))

			w := do(h, http.MethodPost, "/identify", validReq)
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			env := envelope(t, w)
			assert.Equal(t, tt.wantCode, env["code"])
			assert.Equal(t, true, env["retryable"])
		})
	}
}

func TestIdentify_MethodHandling(t *testing.T) {
	h, mt := newServer(t, testConfig())

	w := do(h, http.MethodOptions, "/identify", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := do(h, method, "/identify", "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		assert.Equal(t, true, envelope(t, w)["error"])
	}
	assert.Equal(t, 0, mt.GetTotalCallCount())
}

func TestIdentify_RequestValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantName string
	}{
		{"empty object", `{}`, "No Image"},
		{"empty list", `{"images":[]}`, "No Image"},
		{"blank image", `{"images":[""]}`, "No Image"},
		{"not json", `images=abc`, "Invalid Request"},
		{"too large", `{"images":["` + strings.Repeat("A", 1400*1024) + `"]}`, "Image Too Large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mt := newServer(t, testConfig())
			w := do(h, http.MethodPost, "/identify", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantName, envelope(t, w)["plantName"])
			assert.Equal(t, 0, mt.GetTotalCallCount())
		})
	}
}

func TestIdentify_DataURLPrefixIsStripped(t *testing.T) {
	h, mt := newServer(t, testConfig())

	var forwarded plantid.IdentificationRequest
	mt.RegisterResponder(http.MethodPost, upstreamURL, func(req *http.Request) (*http.Response, error) {
		_ = json.NewDecoder(req.Body).Decode(&forwarded)
		return httpmock.NewStringResponse(200, okBody), nil
	})

	w := do(h, http.MethodPost, "/identify", `{"images":["data:image/jpeg;base64,QUJD"]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"QUJD"}, forwarded.Images)
}

func TestIdentify_MissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.PlantIDAPIKey = ""
	h, mt := newServer(t, cfg)

	w := do(h, http.MethodPost, "/identify", validReq)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := envelope(t, w)
	assert.Equal(t, "Configuration Error", env["plantName"])
	assert.Equal(t, "configuration", env["code"])
	assert.Equal(t, 0, mt.GetTotalCallCount())
}

func TestIdentify_PollStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = config.StrategyPoll

	t.Run("exhausted attempts report pending with job id", func(t *testing.T) {
		h, mt := newServer(t, cfg)
		mt.RegisterResponder(http.MethodPost, upstreamURL,
			httpmock.NewStringResponder(200, `{"id":"job-1","access_token":"tok","status":"CREATED"}`))
		mt.RegisterResponder(http.MethodGet, upstreamURL+"/job-1",
			httpmock.NewStringResponder(200, `{"id":"job-1","status":"IN_PROGRESS"}`))

		w := do(h, http.MethodPost, "/identify", validReq)
		assert.Equal(t, http.StatusAccepted, w.Code)
		env := envelope(t, w)
		assert.Equal(t, true, env["error"])
		assert.Equal(t, "Still Processing", env["plantName"])
		assert.Equal(t, "job-1", env["jobId"])
		assert.Equal(t, 4, mt.GetTotalCallCount())
	})

	t.Run("completed job returns the polled body", func(t *testing.T) {
		h, mt := newServer(t, cfg)
		mt.RegisterResponder(http.MethodPost, upstreamURL,
			httpmock.NewStringResponder(200, `{"id":"job-2","access_token":"tok","status":"CREATED"}`))
		mt.RegisterResponder(http.MethodGet, upstreamURL+"/job-2",
			httpmock.ResponderFromMultipleResponses([]*http.Response{
				httpmock.NewStringResponse(500, `{}`),
				httpmock.NewStringResponse(200, okBody),
			}))

		w := do(h, http.MethodPost, "/identify", validReq)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, okBody, w.Body.String())
	})
}

func TestRateLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerSecond = 0.001
	cfg.RateLimitBurst = 1
	h, mt := newServer(t, cfg)
	mt.RegisterResponder(http.MethodPost, upstreamURL, httpmock.NewStringResponder(200, okBody))

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/identify", validReq).Code)

	w := do(h, http.MethodPost, "/identify", validReq)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "Rate Limited", envelope(t, w)["plantName"])
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestHealthAndMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.PlantIDAPIKey = ""
	h, _ := newServer(t, cfg)

	w := do(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := envelope(t, w)
	assert.Equal(t, "available", env["status"])
	assert.Equal(t, "direct", env["strategy"])
	assert.Equal(t, false, env["api_key_configured"])
	assert.NotContains(t, w.Body.String(), "test-key")

	w = do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("folium_proxy")))
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newServer(t, testConfig())
	w := do(h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, true, envelope(t, w)["error"])
}
