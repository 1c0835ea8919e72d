// Package logging builds the process logger: the log/slog API backed by a
// zap core.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing to w. format is "json" or "console"; level is
// any zap level name ("debug", "info", "warn", "error").
func New(w io.Writer, level, format string) (*slog.Logger, func() error, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "json":
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "time"
		ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	case "console", "text":
		ec := zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", format)
	}

	ws := zapcore.Lock(zapcore.AddSync(w))
	core := zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(lvl))
	logger := slog.New(zapslog.NewHandler(core, zapslog.WithCaller(lvl == zapcore.DebugLevel)))
	return logger, core.Sync, nil
}

var sensitive = map[string]struct{}{
	"authorization":     {},
	"cookie":            {},
	"x-slack-signature": {},
}

// SafeHeaders renders request headers for debug logs with credentials redacted.
func SafeHeaders(r *http.Request) string {
	parts := make([]string, 0, len(r.Header))
	for k, v := range r.Header {
		if len(v) == 0 {
			continue
		}
		val := v[0]
		if _, ok := sensitive[strings.ToLower(k)]; ok && val != "" {
			val = "<redacted>"
		}
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, "; ")
}
