package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/darkcrawl/internal/config"
	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/log"
	"github.com/nao1215/darkcrawl/internal/report"
)

// loadConfig builds the configuration from defaults, the configuration file
// and the global flags. It does not validate: crawl validates after its own
// flags are applied, the read-only commands only need the data directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}
	dataDir, err := flags.GetString("data-dir")
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.General.DataDir = dataDir
	}
	return cfg, nil
}

// newLogger creates the sanitizing logger and makes it the default, so
// libraries logging through slog are sanitized too.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := log.New(cmd.ErrOrStderr(), cfg.LogJSON, cfg.Verbose)
	slog.SetDefault(logger)
	if cfg.ConfigFilePath != "" {
		logger.Debug("configuration loaded", "path", cfg.ConfigFilePath)
	}
	return logger
}

// openExistingDB opens the database of a previous crawl. The read-only
// commands never create one.
func openExistingDB(cfg *config.Config) (*database.CrawlDB, error) {
	db, err := database.Open(cfg.General.DataDir, database.Options{EnableWAL: true})
	if errors.Is(err, database.ErrDatabaseNotFound) {
		return nil, fmt.Errorf("no crawl database in %s (run 'darkcrawl crawl' first): %w", cfg.General.DataDir, err)
	}
	return db, err
}

// addReportFlags adds the --format and --output flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", string(report.FormatText),
		"Output format: text, markdown or json")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to a file instead of stdout (creates directories if needed)")
}

// reportWriter returns the writer selected by --format and --output. The
// returned close function must be called after writing.
func reportWriter(cmd *cobra.Command) (report.Writer, func() error, error) {
	name, err := cmd.Flags().GetString("format")
	if err != nil {
		return nil, nil, err
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		return nil, nil, err
	}
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, nil, err
	}

	var (
		out     io.Writer = cmd.OutOrStdout()
		closeFn           = func() error { return nil }
	)
	if path != "" {
		f, err := createFile(path)
		if err != nil {
			return nil, nil, err
		}
		out, closeFn = f, f.Close
	}

	w, err := report.NewWriter(format, out)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return w, closeFn, nil
}

// createFile creates path and its parent directories.
func createFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// formatForPath guesses a report format from a file extension.
func formatForPath(path string) report.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return report.FormatJSON
	case ".txt", ".log":
		return report.FormatText
	default:
		return report.FormatMarkdown
	}
}
