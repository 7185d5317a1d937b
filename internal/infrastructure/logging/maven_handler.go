package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

const (
	systemKey  = "system"
	receiptKey = "receipt_id"
)

// MavenHandler is a slog.Handler that writes one Maven-style line per record:
//
//	[LEVEL] [SYSTEM] [HH:MM:SS] [receipt:ID] message key=value
//
// The receipt tag appears whenever a receipt_id attribute is present, so a
// single receipt can be followed through a batch run with grep.
type MavenHandler struct {
	w         io.Writer
	level     slog.Leveler
	mu        *sync.Mutex
	useColors bool

	system  string
	receipt string
	prefix  string // group prefix for attrs added after WithGroup
	fixed   string // attrs from WithAttrs, already formatted
}

// NewMavenHandler creates a new Maven-style handler
func NewMavenHandler(w io.Writer, opts *slog.HandlerOptions) *MavenHandler {
	h := &MavenHandler{
		w:         w,
		level:     slog.LevelInfo,
		mu:        &sync.Mutex{},
		useColors: isTerminal(w),
	}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Enabled reports whether the handler handles records at the given level.
func (h *MavenHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record
func (h *MavenHandler) Handle(_ context.Context, r slog.Record) error {
	receipt := h.receipt
	var attrs strings.Builder
	attrs.WriteString(h.fixed)
	r.Attrs(func(a slog.Attr) bool {
		switch {
		case h.prefix == "" && a.Key == systemKey:
		case h.prefix == "" && a.Key == receiptKey:
			receipt = a.Value.Resolve().String()
		default:
			writeAttr(&attrs, h.prefix, a)
		}
		return true
	})

	var buf strings.Builder
	h.colored(&buf, levelColor(r.Level), "["+levelString(r.Level)+"]")
	if h.system != "" {
		buf.WriteString(" [" + h.system + "]")
	}
	if !r.Time.IsZero() {
		buf.WriteString(" ")
		h.colored(&buf, colorGray, "["+r.Time.Format("15:04:05")+"]")
	}
	if receipt != "" {
		buf.WriteString(" ")
		h.colored(&buf, colorBold, "[receipt:"+receipt+"]")
	}
	buf.WriteString(" ")
	buf.WriteString(r.Message)
	buf.WriteString(attrs.String())
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *MavenHandler) colored(buf *strings.Builder, color, s string) {
	if !h.useColors {
		buf.WriteString(s)
		return
	}
	buf.WriteString(color)
	buf.WriteString(s)
	buf.WriteString(colorReset)
}

// WithAttrs returns a handler that prints attrs on every record.
func (h *MavenHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	var fixed strings.Builder
	fixed.WriteString(h.fixed)
	for _, a := range attrs {
		switch {
		case h.prefix == "" && a.Key == systemKey:
			h2.system = a.Value.Resolve().String()
		case h.prefix == "" && a.Key == receiptKey:
			h2.receipt = a.Value.Resolve().String()
		default:
			writeAttr(&fixed, h.prefix, a)
		}
	}
	h2.fixed = fixed.String()
	return &h2
}

// WithGroup returns a handler that writes later attrs as name.key=value.
func (h *MavenHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = joinKey(h.prefix, name)
	return &h2
}

// writeAttr appends " key=value". Groups are flattened into dotted keys and
// values containing spaces are quoted.
func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(buf, key, ga)
		}
		return
	}

	buf.WriteString(" ")
	buf.WriteString(key)
	buf.WriteString("=")
	buf.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		s = v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		s = v.Duration().Round(time.Millisecond).String()
	case slog.KindFloat64:
		s = strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	default:
		s = fmt.Sprint(v.Any())
	}
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorCyan
	default:
		return colorGray
	}
}

func levelString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return level.String()
	}
}
