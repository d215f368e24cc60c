package models

// IdentifyRequest is the body accepted by the proxy handler.
// Each image is base64 without a data-URL prefix.
type IdentifyRequest struct {
	Images []string `json:"images"`
}

// UploadedFile is a user-selected image before compression.
type UploadedFile struct {
	Name      string `json:"name"`
	Data      []byte `json:"-"`
	Size      int64  `json:"size"`
	MediaType string `json:"media_type"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status           string                 `json:"status"`
	Version          string                 `json:"version"`
	Time             string                 `json:"time"`
	Strategy         string                 `json:"strategy"`
	APIKeyConfigured bool                   `json:"api_key_configured"`
	Identifications  map[string]interface{} `json:"identifications,omitempty"`
}
