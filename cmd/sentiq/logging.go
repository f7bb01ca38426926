package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"sentiq/internal/config"
)

// configureLogger installs the default slog logger. Precedence: flag, then
// environment, then config file, then the built-in default.
func configureLogger(flagLevel, configLevel string) error {
	raw := flagLevel
	if strings.TrimSpace(raw) == "" {
		raw = os.Getenv("SENTIQ_LOG_LEVEL")
	}
	if strings.TrimSpace(raw) == "" {
		raw = configLevel
	}
	if strings.TrimSpace(raw) == "" {
		raw = config.DefaultLogLevel
	}

	level, err := parseLogLevel(raw)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}
