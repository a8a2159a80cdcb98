package literal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// NewLogger returns a logger writing to w. format is "human" or "json".
func NewLogger(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	switch strings.ToLower(format) {
	case "", "human":
		return slog.New(NewHumanHandler(w, level)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// HumanHandler writes one line per record followed by indented attributes.
type HumanHandler struct {
	mu     *sync.Mutex
	writer io.Writer
	level  slog.Level
	attrs  []slog.Attr
}

func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		mu:     &sync.Mutex{},
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}

	var writeErr error
	write := func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	}
	for _, a := range h.attrs {
		if !write(a) {
			return writeErr
		}
	}
	record.Attrs(write)
	return writeErr
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup is not supported; attributes stay flat.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h
}
