package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

type LogHandler struct {
	subHandler  slog.Handler
	buffer      *bytes.Buffer
	bufferMutex *sync.Mutex
	out         io.Writer
	colour      bool
}

const (
	reset = "\033[0m"

	darkGray    = 90
	lightGray   = 37
	cyan        = 36
	lightYellow = 93
	lightRed    = 91
)

// attributes the JSON handler always emits, they are printed separately
var builtinAttrs = []string{slog.TimeKey, slog.LevelKey, slog.MessageKey, "module"}

func (h *LogHandler) colorize(colorCode int, v string) string {
	if !h.colour {
		return v
	}
	return fmt.Sprintf("\033[%dm%s%s", colorCode, v, reset)
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.subHandler.Enabled(ctx, level)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.subHandler = h.subHandler.WithAttrs(attrs)
	return &n
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	n := *h
	n.subHandler = h.subHandler.WithGroup(name)
	return &n
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + " "

	switch {
	case r.Level < slog.LevelInfo:
		level = h.colorize(darkGray, level)
	case r.Level < slog.LevelWarn:
		level = h.colorize(cyan, level)
	case r.Level < slog.LevelError:
		level = h.colorize(lightYellow, level)
	default:
		level = h.colorize(lightRed, level)
	}

	attrs, err := h.parseAttributes(ctx, r)
	if err != nil {
		return err
	}

	var line strings.Builder
	line.WriteString(h.colorize(lightGray, r.Time.Format("15:04:05.000 ")))
	line.WriteString(level)
	if attrs["module"] != nil {
		line.WriteString(h.colorize(lightGray, fmt.Sprintf("[%s] ", attrs["module"])))
	}
	line.WriteString(r.Message)
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if slices.Contains(builtinAttrs, k) {
			continue
		}
		line.WriteString(h.colorize(darkGray, fmt.Sprintf(" %s=%v", k, attrs[k])))
	}
	line.WriteByte('\n')

	h.bufferMutex.Lock()
	defer h.bufferMutex.Unlock()
	_, err = io.WriteString(h.out, line.String())
	return err
}

func (h *LogHandler) parseAttributes(ctx context.Context, r slog.Record) (map[string]any, error) {
	h.bufferMutex.Lock()
	defer func() {
		h.buffer.Reset()
		h.bufferMutex.Unlock()
	}()
	if err := h.subHandler.Handle(ctx, r); err != nil {
		return nil, fmt.Errorf("error when calling inner handler's Handle: %w", err)
	}

	var attrs map[string]any
	err := json.Unmarshal(h.buffer.Bytes(), &attrs)
	if err != nil {
		return nil, fmt.Errorf("error when unmarshaling inner handler's Handle result: %w", err)
	}
	return attrs, nil
}

// NewHandler writes to stdout.
func NewHandler(opts *slog.HandlerOptions) *LogHandler {
	return NewHandlerTo(os.Stdout, true, opts)
}

func NewHandlerTo(out io.Writer, colour bool, opts *slog.HandlerOptions) *LogHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	b := &bytes.Buffer{}
	return &LogHandler{
		buffer: b,
		subHandler: slog.NewJSONHandler(b, &slog.HandlerOptions{
			Level:       opts.Level,
			AddSource:   opts.AddSource,
			ReplaceAttr: opts.ReplaceAttr,
		}),
		bufferMutex: &sync.Mutex{},
		out:         out,
		colour:      colour,
	}
}

// Install makes a colourising stdout handler at level the default logger.
func Install(level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(&slog.HandlerOptions{Level: level})))
}
