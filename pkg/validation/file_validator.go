package validation

import (
	"fmt"
	"mime"
	"strings"

	apperrors "github.com/jdsidebottom/foliumai/internal/errors"
	"github.com/jdsidebottom/foliumai/pkg/models"
)

// AllowedImageTypes are the media types accepted for upload.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// FileValidator checks a selected file before any processing or network call.
type FileValidator struct {
	maxBytes     int64
	allowedTypes []string
}

// NewFileValidator creates a validator for files up to maxBytes.
func NewFileValidator(maxBytes int64) *FileValidator {
	return &FileValidator{maxBytes: maxBytes, allowedTypes: AllowedImageTypes}
}

// Validate rejects oversized files and unsupported media types.
func (v *FileValidator) Validate(file models.UploadedFile) error {
	if file.Size <= 0 && len(file.Data) == 0 {
		return apperrors.NewInvalidFileError("The selected file is empty. Please choose a photo of your plant.")
	}
	size := file.Size
	if int64(len(file.Data)) > size {
		size = int64(len(file.Data))
	}
	if size > v.maxBytes {
		return apperrors.NewInvalidFileError(
			fmt.Sprintf("Please choose an image smaller than %s.", formatBytes(v.maxBytes))).
			WithDetails(fmt.Sprintf("file is %d bytes", size))
	}

	mediaType := NormalizeMediaType(file.MediaType)
	for _, allowed := range v.allowedTypes {
		if mediaType == allowed {
			return nil
		}
	}
	return apperrors.NewInvalidFileError("Please choose a JPEG, PNG or WebP image.").
		WithDetails(fmt.Sprintf("media type %q", file.MediaType))
}

// NormalizeMediaType lowercases, drops parameters and folds the image/jpg alias.
func NormalizeMediaType(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mediaType))
	}
	if mt == "image/jpg" || mt == "image/pjpeg" {
		return "image/jpeg"
	}
	return mt
}

func formatBytes(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	if n >= 1024 {
		return fmt.Sprintf("%dKB", n/1024)
	}
	return fmt.Sprintf("%d bytes", n)
}
