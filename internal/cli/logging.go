package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"workflowd/internal/common/fsutil"
	"workflowd/internal/config"
)

// newLogger builds the process logger from LOG_LEVEL, LOG_FORMAT and LOG_FILE.
// The file, when set, always receives JSON lines.
func newLogger(cfg config.Config, w io.Writer) (zerolog.Logger, func() error, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.Logger{}, nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	var out io.Writer
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		out = w
	case "console", "":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	default:
		return zerolog.Logger{}, nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}

	closer := func() error { return nil }
	if cfg.LogFile != "" {
		path, err := fsutil.PrepareFile(cfg.LogFile)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f.Close
	}
	log := zerolog.New(out).Level(level).With().Timestamp().Str("service", "workflowd").Logger()
	return log, closer, nil
}
