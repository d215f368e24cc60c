package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jdsidebottom/foliumai/pkg/models"
)

// FileFetcher reads images from the local filesystem
type FileFetcher struct {
	maxBytes int64
}

// NewFileFetcher creates a local file fetcher
func NewFileFetcher(maxBytes int64) ImageFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &FileFetcher{maxBytes: maxBytes}
}

func (f *FileFetcher) FetchImage(ctx context.Context, ref string) (*models.UploadedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", ref, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", ref)
	}

	data, err := readLimited(file, f.maxBytes)
	if err != nil {
		return nil, err
	}
	return newUploadedFile(filepath.Base(ref), data, info.Size()), nil
}
