package validation

import (
	"strings"

	apperrors "github.com/jdsidebottom/foliumai/internal/errors"
)

// PayloadValidator checks the encoded images received by the proxy.
type PayloadValidator struct {
	maxKB int64
}

// NewPayloadValidator limits each image to maxKB decoded kilobytes.
func NewPayloadValidator(maxKB int64) *PayloadValidator {
	return &PayloadValidator{maxKB: maxKB}
}

// Normalize strips data-URL prefixes and enforces presence and size.
// It returns the images to forward.
func (v *PayloadValidator) Normalize(images []string) ([]string, error) {
	if len(images) == 0 || strings.TrimSpace(images[0]) == "" {
		return nil, apperrors.NewNoImageError()
	}

	out := make([]string, 0, len(images))
	for _, img := range images {
		img = StripDataURLPrefix(strings.TrimSpace(img))
		if img == "" {
			continue
		}
		if EstimatedKB(img) > float64(v.maxKB) {
			return nil, apperrors.NewImageTooLargeError(v.maxKB)
		}
		out = append(out, img)
	}
	if len(out) == 0 {
		return nil, apperrors.NewNoImageError()
	}
	return out, nil
}

// StripDataURLPrefix removes a leading "data:<type>;base64," if present.
func StripDataURLPrefix(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}

// EstimatedKB is the decoded size of a base64 string in kilobytes.
func EstimatedKB(b64 string) float64 {
	return float64(len(b64)) * 0.75 / 1024
}
