package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/jdsidebottom/foliumai/pkg/models"
	"github.com/jdsidebottom/foliumai/pkg/validation"
)

type azureStorage struct {
	client    *azblob.Client
	validator *validation.URLValidator
	maxBytes  int64
}

// NewAzureStorage creates a fetcher for blob URLs of the form
// https://<account>.blob.core.windows.net/<container>/<blob>.
// Without an account key the container must allow anonymous reads.
func NewAzureStorage(accountName, accountKey string, maxBytes int64) (ImageFetcher, error) {
	if accountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)

	var (
		client *azblob.Client
		err    error
	)
	if accountKey != "" {
		credential, credErr := azblob.NewSharedKeyCredential(accountName, accountKey)
		if credErr != nil {
			return nil, fmt.Errorf("invalid azure credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	} else {
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &azureStorage{
		client:    client,
		validator: validation.NewBlobURLValidator(),
		maxBytes:  maxBytes,
	}, nil
}

func (s *azureStorage) FetchImage(ctx context.Context, blobURL string) (*models.UploadedFile, error) {
	if _, err := s.validator.Validate(blobURL); err != nil {
		return nil, err
	}
	containerName, blobName, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	body := downloadResponse.Body
	defer body.Close()

	data, err := readLimited(body, s.maxBytes)
	if err != nil {
		return nil, err
	}
	var declared int64
	if downloadResponse.ContentLength != nil {
		declared = *downloadResponse.ContentLength
	}
	return newUploadedFile(path.Base(blobName), data, declared), nil
}

// ParseBlobURL splits a blob URL into container and blob names
func ParseBlobURL(blobURL string) (string, string, error) {
	parts, err := azblob.ParseURL(blobURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}
	if parts.ContainerName == "" || parts.BlobName == "" {
		return "", "", fmt.Errorf("blob URL must name a container and a blob: %s", blobURL)
	}
	return parts.ContainerName, parts.BlobName, nil
}
