// Package main runs the study partner backend.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"onenight-backend/internal/config"
	"onenight-backend/internal/services"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "onenight",
	Short: "Study partner backend",
	Long: `onenight serves the study partner API: upload materials, digest them into a
knowledge map, and study against a countdown with an AI partner.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(digestCmd)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// newLanguageModel connects to Gemini, or returns a stand-in that fails every
// call when GEMINI_API_KEY is unset. The close func is always safe to call.
func newLanguageModel(cfg *config.Config, logger *zap.Logger) (services.LanguageModel, func(), error) {
	gemini, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, logger)
	if err == services.ErrModelUnavailable {
		logger.Warn("GEMINI_API_KEY not set, partner replies will use fallbacks")
		return services.UnavailableModel{}, func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return gemini, gemini.Close, nil
}
