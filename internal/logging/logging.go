// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ksred/klear-accumulate/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup points the global logger at the console and, when a file name is
// configured, at a rotating log file. The returned closer flushes the file.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.FileName != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.FileName,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  cfg.LocalTime,
		}
		writers = append(writers, file)
		closer = file
	}

	if cfg.Console || len(writers) == 0 {
		if cfg.Production {
			writers = append(writers, os.Stdout)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: timeFormat,
			})
		}
	}

	zlog.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return closer, nil
}
