package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

// storageTarget describes where the configured backend keeps its data.
func storageTarget(config *Config) string {
	switch config.Storage.Backend {
	case "surrealdb":
		return config.Storage.Address
	case "postgres":
		return "postgres"
	default:
		return config.Storage.Path
	}
}

// PrintBanner displays the startup banner to stderr.
func PrintBanner(config *Config, logger *Logger) {
	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 60) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	fmt.Fprintf(os.Stderr, "%s  FNOSCREEN  F&O price history, reconciliation and screens%s\n\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n\n", hr)

	kvLines := [][2]string{
		{"Version", Version},
		{"Build", Build},
		{"Commit", GitCommit},
		{"Environment", config.Environment},
		{"Service URL", serviceURL},
		{"Storage", config.Storage.Backend + " " + storageTarget(config)},
		{"Start date", config.Pipeline.StartDate},
		{"Workers", fmt.Sprintf("%d", config.Pipeline.Workers)},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-14s %s%s\n", textColor, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	logger.Info().
		Str("version", Version).
		Str("environment", config.Environment).
		Str("service_url", serviceURL).
		Str("storage_backend", config.Storage.Backend).
		Msg("Application started")
}

// PrintShutdownBanner displays the shutdown banner to stderr.
func PrintShutdownBanner(logger *Logger) {
	hr := banner.ColorCyan + strings.Repeat("═", 42) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n%s\n", hr)
	fmt.Fprintf(os.Stderr, "%s  FNOSCREEN  SHUTTING DOWN%s\n", banner.ColorBold+banner.ColorWhite, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n\n", hr)

	logger.Info().Msg("Application shutting down")
}
