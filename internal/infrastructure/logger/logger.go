package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

const redacted = "[REDACTED]"

// Attribute keys whose values are credentials. Ticket tokens and signs grant
// access to the authority for hours, so they never reach a log line.
var secretKeys = map[string]bool{
	"token":           true,
	"sign":            true,
	"cms":             true,
	"password":        true,
	"pkcs12_password": true,
	"private_key":     true,
}

var levelColors = strings.NewReplacer(
	"level=DEBUG", colorCyan+"level=DEBUG"+colorReset,
	"level=INFO", colorGreen+"level=INFO"+colorReset,
	"level=WARN", colorYellow+"level=WARN"+colorReset,
	"level=ERROR", colorRed+"level=ERROR"+colorReset,
)

// colorWriter colors the level field of text handler output.
type colorWriter struct {
	writer io.Writer
}

func (cw colorWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(cw.writer, levelColors.Replace(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// isTerminal checks if the writer is a character device.
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

// New builds a structured slog logger writing to stdout.
func New(appName, level, environment string) *slog.Logger {
	return NewWithWriter(os.Stdout, appName, level, environment)
}

// NewWithWriter builds a logger honoring the configured level and environment.
// Development environments (local, dev, development) get text output, colored
// on terminals; everything else gets JSON. CLI commands pass stderr so stdout
// stays parseable.
func NewWithWriter(w io.Writer, appName, level, environment string) *slog.Logger {
	env := strings.ToLower(strings.TrimSpace(environment))
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		AddSource:   env != "test",
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	switch env {
	case "local", "dev", "development":
		if isTerminal(w) {
			w = colorWriter{writer: w}
		}
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("app", appName, "environment", env)
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}

// ParseLevel maps a configured level name to a slog level; unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
