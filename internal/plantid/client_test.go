package plantid

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	apperrors "github.com/jdsidebottom/foliumai/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://plantid.test/v3"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(testBase+"/", "test-key", WithHTTPClient(hc))
}

func TestIdentify_SendsCredentialAndPayload(t *testing.T) {
	c := newMockedClient(t)

	var gotKey, gotQuery string
	var got IdentificationRequest
	httpmock.RegisterResponder(http.MethodPost, testBase+"/identification",
		func(req *http.Request) (*http.Response, error) {
			gotKey = req.Header.Get("Api-Key")
			gotQuery = req.URL.RawQuery
			raw, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(raw, &got)
			return httpmock.NewStringResponse(200, `{"result":{"is_plant":{"binary":true}}}`), nil
		})

	reply, err := c.Identify(context.Background(), []string{"QUJD"}, false)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "details=common_names,url,name_authority,description,treatment", gotQuery)
	assert.Equal(t, []string{"QUJD"}, got.Images)
	assert.True(t, got.SimilarImages)
	assert.Equal(t, "all", got.ClassificationLevel)
	assert.Equal(t, "all", got.Health)
	assert.False(t, got.Async)

	assert.Equal(t, KindResult, reply.Kind())
	assert.Equal(t, `{"result":{"is_plant":{"binary":true}}}`, string(reply.Body))
}

func TestIdentify_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType apperrors.ErrorType
		wantCode int
	}{
		{"rate limited", 429, apperrors.ErrorTypeRateLimited, 429},
		{"quota", 402, apperrors.ErrorTypeQuotaExceeded, 402},
		{"server error", 500, apperrors.ErrorTypeUnavailable, 503},
		{"bad gateway", 502, apperrors.ErrorTypeUnavailable, 503},
		{"unauthorized", 401, apperrors.ErrorTypeUpstream, 500},
		{"bad request", 400, apperrors.ErrorTypeUpstream, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t)
			httpmock.RegisterResponder(http.MethodPost, testBase+"/identification",
				httpmock.NewStringResponder(tt.status, `{"error":"nope"}`))

			_, err := c.Identify(context.Background(), []string{"QUJD"}, false)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType))
			assert.Equal(t, tt.wantCode, apperrors.GetStatusCode(err))
		})
	}
}

func TestIdentify_TransportErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType apperrors.ErrorType
	}{
		{"deadline", context.DeadlineExceeded, apperrors.ErrorTypeTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "plantid.test", IsNotFound: true}, apperrors.ErrorTypeDNS},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, apperrors.ErrorTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t)
			httpmock.RegisterResponder(http.MethodPost, testBase+"/identification",
				httpmock.NewErrorResponder(tt.err))

			_, err := c.Identify(context.Background(), []string{"QUJD"}, false)
			require.Error(t, err)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, appErr.Type)
			assert.True(t, appErr.Retryable)
		})
	}
}

func TestReplyKind(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ReplyKind
	}{
		{"result", `{"result":{}}`, KindResult},
		{"job accepted", `{"id":"job-1","access_token":"tok","status":"CREATED"}`, KindJobAccepted},
		{"id without token", `{"id":"job-1"}`, KindMalformed},
		{"empty object", `{}`, KindMalformed},
		{"not json", `<html>`, KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := &Reply{Status: 200, Body: []byte(tt.body)}
			if parsed, err := ParseResponse(reply.Body); err == nil {
				reply.Response = parsed
			}
			assert.Equal(t, tt.want, reply.Kind())
		})
	}
}

func TestPoll_UsesBearerToken(t *testing.T) {
	c := newMockedClient(t)

	var auth string
	httpmock.RegisterResponder(http.MethodGet, testBase+"/identification/job-42",
		func(req *http.Request) (*http.Response, error) {
			auth = req.Header.Get("Authorization")
			return httpmock.NewStringResponse(200, `{"id":"job-42","status":"COMPLETED","result":{}}`), nil
		})

	reply, err := c.Poll(context.Background(), "job-42", "tok")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "COMPLETED", reply.Response.Status)
}

func TestTextUnmarshal(t *testing.T) {
	var d SuggestionDetails
	require.NoError(t, json.Unmarshal([]byte(`{"description":{"value":"A fern."}}`), &d))
	assert.Equal(t, Text("A fern."), d.Description)

	require.NoError(t, json.Unmarshal([]byte(`{"description":"Plain."}`), &d))
	assert.Equal(t, Text("Plain."), d.Description)

	d = SuggestionDetails{}
	require.NoError(t, json.Unmarshal([]byte(`{"description":[1,2]}`), &d))
	assert.Equal(t, Text(""), d.Description)
}

func TestResultHealth(t *testing.T) {
	var r Result
	require.NoError(t, json.Unmarshal([]byte(`{
		"is_healthy": {"binary": false},
		"disease": {"suggestions": [{"name": "rust", "probability": 0.4}]}
	}`), &r))

	healthy, diseases := r.Health()
	require.NotNil(t, healthy)
	assert.False(t, *healthy.Binary)
	assert.Len(t, diseases, 1)

	var nilResult *Result
	h, d := nilResult.Health()
	assert.Nil(t, h)
	assert.Nil(t, d)
}
