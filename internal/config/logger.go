package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/simp-lee/logger"
)

// SetupLogger builds the process logger and installs it as the slog default.
// Request attributes stored with logger.WithContextAttrs are added to every
// record logged with that context. The caller must Close the logger.
func SetupLogger(cfg *LogConfig) (*logger.Logger, error) {
	if cfg == nil {
		return nil, errors.New("log config is nil")
	}

	format := outputFormat(cfg.Format)
	color := true
	if cfg.Color != nil {
		color = *cfg.Color
	}

	opts := append([]logger.Option{
		logger.WithLevel(parseLevel(cfg.Level)),
		logger.WithMiddleware(logger.ContextMiddleware()),
		logger.WithConsoleFormat(format),
		logger.WithConsoleColor(color),
	}, fileOptions(cfg, format)...)

	log, err := logger.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log.SetDefault()
	return log, nil
}

// outputFormat maps log.format; anything but text or json gets the console format.
func outputFormat(s string) logger.OutputFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return logger.FormatText
	case "json":
		return logger.FormatJSON
	default:
		return logger.FormatCustom
	}
}

// fileOptions enables the rotating file sink when a path is set. Zero
// rotation settings keep the library defaults.
func fileOptions(cfg *LogConfig, format logger.OutputFormat) []logger.Option {
	path := strings.TrimSpace(cfg.FilePath)
	if path == "" {
		return nil
	}

	opts := []logger.Option{logger.WithFilePath(path), logger.WithFileFormat(format)}
	if cfg.MaxSizeMB > 0 {
		opts = append(opts, logger.WithMaxSizeMB(cfg.MaxSizeMB))
	}
	if cfg.RetentionDays > 0 {
		opts = append(opts, logger.WithRetentionDays(cfg.RetentionDays))
	}
	if cfg.MaxBackups > 0 {
		opts = append(opts, logger.WithMaxBackups(cfg.MaxBackups))
	}
	if cfg.CompressRotated != nil {
		opts = append(opts, logger.WithCompressRotated(*cfg.CompressRotated))
	}
	return opts
}

// parseLevel accepts slog level names, case-insensitive, with optional
// offsets such as "debug+2". Anything else is info.
func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
