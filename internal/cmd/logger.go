package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// setupLogger installs the default slog logger from the log.* settings.
func setupLogger() error {
	level, err := parseLevel(viper.GetString("log.level"))
	if err != nil {
		return err
	}

	writer, err := logWriter(viper.GetString("log.output"))
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(viper.GetString("log.format")) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "", "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", viper.GetString("log.format"))
	}

	slog.SetDefault(slog.New(handler).With("app", "device-gateway"))
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// logWriter resolves the log output. A path ending in "/" is a directory
// that receives one file per day. Files also get a copy on stderr.
func logWriter(output string) (io.Writer, error) {
	if output == "" || output == "stderr" {
		return os.Stderr, nil
	}

	path := output
	if strings.HasSuffix(output, "/") {
		path = filepath.Join(output,
			fmt.Sprintf("device-gateway-%s.log", time.Now().Format("2006-01-02")))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return io.MultiWriter(os.Stderr, f), nil
}
