package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a zerolog logger. Unknown formats fall back to console output.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.WarnLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var writer io.Writer = output
	if !strings.EqualFold(cfg.Format, FormatJSON) {
		writer = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339, NoColor: !isTerminal(output)}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger(), nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	info, err := file.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}
