package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"onenight-backend/internal/config"
	"onenight-backend/internal/models"
	"onenight-backend/internal/services"
)

var digestMinutes int

// digestCmd runs a single digest against local files without starting the
// server.
var digestCmd = &cobra.Command{
	Use:   "digest FILE...",
	Short: "Digest local files into a knowledge map",
	Long: `Digest local files into a knowledge map and print it as JSON.

Examples:
  # Map a lecture PDF for a one hour session
  onenight digest lecture.pdf

  # Several files, sized for a 30 minute session
  onenight digest --minutes 30 notes.md slides.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDigest,
}

func init() {
	digestCmd.Flags().IntVar(&digestMinutes, "minutes", models.DefaultDurationMinutes, "session length the map is sized for")
}

func runDigest(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	model, closeModel, err := newLanguageModel(cfg, logger)
	if err != nil {
		return fmt.Errorf("gemini client initialization failed: %w", err)
	}
	defer closeModel()

	sources := make([]services.FileSource, len(args))
	for i, path := range args {
		path := path
		sources[i] = services.FileSource{
			Name:         filepath.Base(path),
			DeclaredType: mime.TypeByExtension(filepath.Ext(path)),
			Open: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
		}
	}

	materials := services.NewMaterialIngestor(nil, nil, logger).IngestFiles(sources)
	if len(materials) == 0 {
		return fmt.Errorf("none of the %d files could be read", len(args))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	result := services.NewDigestClient(model, nil, logger).Digest(ctx, materials, digestMinutes)
	if result.Fallback {
		logger.Warn("digest fell back to the placeholder map", zap.Error(result.Err))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result.Tree)
}
