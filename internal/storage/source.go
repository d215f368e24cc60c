package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jdsidebottom/foliumai/pkg/models"
)

// DefaultMaxBytes bounds how much of a source is read into memory.
const DefaultMaxBytes = 5 * 1024 * 1024

// ImageFetcher loads a user image from a reference (path or URL).
// The media type is sniffed from content, not trusted from the source.
type ImageFetcher interface {
	FetchImage(ctx context.Context, ref string) (*models.UploadedFile, error)
}

// readLimited reads at most limit+1 bytes so an oversized source is still
// reported with a size above the limit without buffering all of it.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

func newUploadedFile(name string, data []byte, declaredSize int64) *models.UploadedFile {
	size := int64(len(data))
	if declaredSize > size {
		size = declaredSize
	}
	return &models.UploadedFile{
		Name:      name,
		Data:      data,
		Size:      size,
		MediaType: mimetype.Detect(data).String(),
	}
}
