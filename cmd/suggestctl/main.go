package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var Version = "development"

var (
	logLevel   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "suggestctl",
	Short: "Inspect location and profile suggestions",
	Long: `
suggestctl drives the suggestion pipeline from a terminal. It reads the same
environment variables as the suggest service (PLACES_API_KEY,
DIRECTORY_BASE_URL, REDIS_URL, ...).
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "force JSON lines even on a terminal")
	rootCmd.Version = Version
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
