package cli

import (
	"encoding/json"
	"fmt"

	"github.com/jdsidebottom/foliumai/internal/config"
	"github.com/jdsidebottom/foliumai/internal/factory"
	"github.com/jdsidebottom/foliumai/internal/imaging"
	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/jdsidebottom/foliumai/internal/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type identifyFlags struct {
	proxyURL string
	retries  int
}

func identifyCommand() *cobra.Command {
	var flags identifyFlags

	cmd := &cobra.Command{
		Use:   "identify [image]",
		Short: "Identify the plant in a photo",
		Long: `Validate, compress and submit a photo to the proxy, then print the result record as JSON.
The image may be a local path, an http(s) URL or an Azure Blob Storage URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Keep stdout for the record.
			logger.Logger.SetOutput(cmd.ErrOrStderr())

			cfg, err := config.LoadClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if flags.proxyURL != "" {
				cfg.ProxyURL = flags.proxyURL
			}
			return runIdentify(cmd, cfg, args[0], flags.retries)
		},
	}

	cmd.Flags().StringVar(&flags.proxyURL, "proxy", "", "Proxy endpoint (overrides FOLIUM_PROXY_URL)")
	cmd.Flags().IntVar(&flags.retries, "retry", 0, "Retry up to N times while the result is retryable")

	return cmd
}

func runIdentify(cmd *cobra.Command, cfg *config.ClientConfig, ref string, retries int) error {
	ctx := cmd.Context()

	storageType := factory.StorageTypeFor(ref)
	fetcher, err := factory.NewStorageFactory(cfg.MaxFileBytes).CreateStorage(storageType)
	if err != nil {
		return err
	}
	file, err := fetcher.FetchImage(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	client, err := upload.NewClient(cfg.ProxyURL, cfg.ClientTimeout)
	if err != nil {
		return err
	}
	pipeline := upload.NewPipeline(cfg.MaxFileBytes, imaging.Options{
		MaxDimension: cfg.MaxDimension,
		Quality:      cfg.JPEGQuality,
	})
	session := upload.NewSession(pipeline, client)

	rec, err := session.Identify(ctx, *file)
	if err != nil {
		return err
	}
	for attempt := 1; attempt <= retries && rec.Retryable; attempt++ {
		logger.WithFields(logrus.Fields{
			"attempt":    attempt,
			"plant_name": rec.PlantName,
		}).Info("Retrying identification")
		if rec, err = session.Retry(ctx); err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
