// Package telemetry provides the console log handler used across the
// engine's commands and internal packages.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/fatih/color"
)

// levelColors maps each standard slog level to the color its tag is
// printed in. Unrecognized levels (custom levels above/below the
// standard four) fall back to no coloring.
var levelColors = map[slog.Level]*color.Color{
	slog.LevelDebug: color.New(color.FgMagenta),
	slog.LevelInfo:  color.New(color.FgCyan),
	slog.LevelWarn:  color.New(color.FgYellow),
	slog.LevelError: color.New(color.FgRed, color.Bold),
}

// PrettyHandlerOptions wraps the standard slog.HandlerOptions so callers
// configure level/source the usual way while getting the console renderer
// below instead of JSON lines.
type PrettyHandlerOptions struct {
	SlogOpts slog.HandlerOptions
}

// PrettyHandler renders records as "[HH:MM:SS.mmm] LEVEL: message {attrs}",
// with attrs as compact JSON ("{}" when there are none). It embeds a
// slog.JSONHandler for level filtering and a plain log.Logger to write the
// final formatted line. Only the record's own attrs are printed: attrs and
// groups added through WithAttrs/WithGroup are kept on the embedded
// JSONHandler and do not appear in the output.
type PrettyHandler struct {
	Handler slog.Handler
	l       *log.Logger
}

// NewPrettyHandler builds a PrettyHandler writing to w.
func NewPrettyHandler(w io.Writer, opts PrettyHandlerOptions) *PrettyHandler {
	return &PrettyHandler{
		Handler: slog.NewJSONHandler(w, &opts.SlogOpts),
		l:       log.New(w, "", 0),
	}
}

func (h *PrettyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Handler.Enabled(ctx, level)
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PrettyHandler{Handler: h.Handler.WithAttrs(attrs), l: h.l}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	return &PrettyHandler{Handler: h.Handler.WithGroup(name), l: h.l}
}

func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("telemetry: marshal attrs: %w", err)
	}

	level := r.Level.String()
	if c, ok := levelColors[r.Level]; ok {
		level = c.Sprint(level)
	}
	timestamp := r.Time.Format("15:04:05.000")

	h.l.Printf("[%s] %s: %s %s", timestamp, level, r.Message, attrsJSON)
	return nil
}
