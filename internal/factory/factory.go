package factory

import (
	"fmt"
	"os"
	"strings"

	"github.com/jdsidebottom/foliumai/internal/config"
	"github.com/jdsidebottom/foliumai/internal/plantid"
	"github.com/jdsidebottom/foliumai/internal/storage"
	"github.com/jdsidebottom/foliumai/internal/strategy"
)

// StrategyType names an identification strategy
type StrategyType string

const (
	// DirectStrategy submits once and expects the result synchronously
	DirectStrategy StrategyType = config.StrategyDirect
	// PollStrategy submits a job and polls for its result
	PollStrategy StrategyType = config.StrategyPoll
)

// StorageType represents the image source backends
type StorageType string

const (
	// HTTPStorage for http(s) image URLs
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure Blob Storage URLs
	AzureStorage StorageType = "azure"
	// LocalStorage for local file paths
	LocalStorage StorageType = "local"
)

// StrategyFactory creates identification strategies
type StrategyFactory interface {
	CreateStrategy(strategyType StrategyType) (strategy.IdentificationStrategy, error)
}

// StorageFactory creates image fetchers
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ImageFetcher, error)
}

type strategyFactory struct {
	client strategy.Identifier
	cfg    *config.Config
}

// NewStrategyFactory creates a strategy factory around a Plant.id client
func NewStrategyFactory(cfg *config.Config, client strategy.Identifier) StrategyFactory {
	return &strategyFactory{client: client, cfg: cfg}
}

// CreateStrategy creates a strategy based on the specified type
func (f *strategyFactory) CreateStrategy(strategyType StrategyType) (strategy.IdentificationStrategy, error) {
	switch strategyType {
	case DirectStrategy:
		return strategy.NewDirectStrategy(f.client), nil
	case PollStrategy:
		return strategy.NewPollStrategy(f.client, f.cfg.PollInterval, f.cfg.PollAttempts), nil
	default:
		return nil, fmt.Errorf("unsupported strategy type: %s", strategyType)
	}
}

// NewPlantIDClient builds the upstream client from configuration
func NewPlantIDClient(cfg *config.Config, opts ...plantid.Option) *plantid.Client {
	return plantid.NewClient(cfg.PlantIDBaseURL, cfg.PlantIDAPIKey, opts...)
}

type storageFactory struct {
	maxBytes int64
}

// NewStorageFactory creates a storage factory whose fetchers read at most maxBytes
func NewStorageFactory(maxBytes int64) StorageFactory {
	return &storageFactory{maxBytes: maxBytes}
}

// CreateStorage creates a fetcher based on the specified type. Azure
// credentials come from AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY.
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ImageFetcher, error) {
	switch storageType {
	case HTTPStorage:
		return storage.NewHTTPImageFetcher(f.maxBytes), nil
	case AzureStorage:
		return storage.NewAzureStorage(os.Getenv("AZURE_STORAGE_ACCOUNT"), os.Getenv("AZURE_STORAGE_KEY"), f.maxBytes)
	case LocalStorage:
		return storage.NewFileFetcher(f.maxBytes), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// StorageTypeFor picks the backend for an image reference
func StorageTypeFor(ref string) StorageType {
	lower := strings.ToLower(strings.TrimSpace(ref))
	switch {
	case strings.HasPrefix(lower, "https://") && strings.Contains(lower, ".blob.core.windows.net/"):
		return AzureStorage
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return HTTPStorage
	default:
		return LocalStorage
	}
}
