package logging

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/gommon/color"
)

const consoleTimeFormat = "2006-01-02 15:04:05"

// consoleHandler renders one human-readable line per record:
//
//	2025-05-01 15:04:05 [info]: user created {"id":7}
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	color  *color.Color
	attrs  []slog.Attr
	prefix string
}

func newConsoleHandler(out io.Writer, level slog.Leveler) *consoleHandler {
	c := color.New()
	c.SetOutput(out)
	return &consoleHandler{mu: &sync.Mutex{}, out: out, level: level, color: c}
}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(meta, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(meta, h.prefix, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := ts.Format(consoleTimeFormat) + " [" + h.levelText(r.Level) + "]: " + r.Message
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			line += " " + string(b)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line+"\n")
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

func (h *consoleHandler) levelText(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return h.color.Red("error")
	case l >= slog.LevelWarn:
		return h.color.Yellow("warn")
	case l >= slog.LevelInfo:
		return h.color.Green("info")
	default:
		return h.color.Blue("debug")
	}
}

func addAttr(meta map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(meta, p, ga)
		}
		return
	}
	var v any
	switch a.Value.Kind() {
	case slog.KindDuration:
		v = a.Value.Duration().String()
	default:
		v = a.Value.Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
	}
	meta[prefix+a.Key] = v
}
