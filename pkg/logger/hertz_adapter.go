package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// HertzSlogAdapter routes hertz's hlog output into slog. Messages below the
// hlog level set through SetLevel are dropped before reaching slog.
type HertzSlogAdapter struct {
	logger *slog.Logger
	min    hlog.Level
}

var _ hlog.FullLogger = (*HertzSlogAdapter)(nil)

// NewHertzSlogAdapter creates the adapter
func NewHertzSlogAdapter(logger *slog.Logger) *HertzSlogAdapter {
	return &HertzSlogAdapter{logger: logger, min: hlog.LevelTrace}
}

func slogLevel(l hlog.Level) slog.Level {
	switch {
	case l <= hlog.LevelDebug:
		return slog.LevelDebug
	case l <= hlog.LevelNotice:
		return slog.LevelInfo
	case l == hlog.LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func (h *HertzSlogAdapter) log(ctx context.Context, l hlog.Level, msg string) {
	if l < h.min {
		return
	}
	attrs := []any{"component", "hertz"}
	if l == hlog.LevelFatal {
		attrs = append(attrs, "fatal", true)
	}
	h.logger.Log(ctx, slogLevel(l), msg, attrs...)
}

func sprint(v ...interface{}) string {
	if len(v) == 1 {
		if s, ok := v[0].(string); ok {
			return s
		}
	}
	return fmt.Sprint(v...)
}

func (h *HertzSlogAdapter) Trace(v ...interface{})  { h.log(context.Background(), hlog.LevelTrace, sprint(v...)) }
func (h *HertzSlogAdapter) Debug(v ...interface{})  { h.log(context.Background(), hlog.LevelDebug, sprint(v...)) }
func (h *HertzSlogAdapter) Info(v ...interface{})   { h.log(context.Background(), hlog.LevelInfo, sprint(v...)) }
func (h *HertzSlogAdapter) Notice(v ...interface{}) { h.log(context.Background(), hlog.LevelNotice, sprint(v...)) }
func (h *HertzSlogAdapter) Warn(v ...interface{})   { h.log(context.Background(), hlog.LevelWarn, sprint(v...)) }
func (h *HertzSlogAdapter) Error(v ...interface{})  { h.log(context.Background(), hlog.LevelError, sprint(v...)) }
func (h *HertzSlogAdapter) Fatal(v ...interface{})  { h.log(context.Background(), hlog.LevelFatal, sprint(v...)) }

func (h *HertzSlogAdapter) Tracef(format string, v ...interface{}) {
	h.log(context.Background(), hlog.LevelTrace, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) Debugf(format string, v ...interface{}) {
	h.log(context.Background(), hlog.LevelDebug, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) Infof(format string, v ...interface{}) {
	h.log(context.Background(), hlog.LevelInfo, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) Noticef(format string, v ...interface{}) {
	h.log(context.Background(), hlog.LevelNotice, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) Warnf(format string, v ...interface{}) {
	h.log(context.Background(), hlog.LevelWarn, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) Errorf(format string, v ...interface{}) {
	h.log(context.Background(), hlog.LevelError, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) Fatalf(format string, v ...interface{}) {
	h.log(context.Background(), hlog.LevelFatal, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) CtxTracef(ctx context.Context, format string, v ...interface{}) {
	h.log(ctx, hlog.LevelTrace, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) CtxDebugf(ctx context.Context, format string, v ...interface{}) {
	h.log(ctx, hlog.LevelDebug, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) CtxInfof(ctx context.Context, format string, v ...interface{}) {
	h.log(ctx, hlog.LevelInfo, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) CtxNoticef(ctx context.Context, format string, v ...interface{}) {
	h.log(ctx, hlog.LevelNotice, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) CtxWarnf(ctx context.Context, format string, v ...interface{}) {
	h.log(ctx, hlog.LevelWarn, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) CtxErrorf(ctx context.Context, format string, v ...interface{}) {
	h.log(ctx, hlog.LevelError, fmt.Sprintf(format, v...))
}

func (h *HertzSlogAdapter) CtxFatalf(ctx context.Context, format string, v ...interface{}) {
	h.log(ctx, hlog.LevelFatal, fmt.Sprintf(format, v...))
}

// SetLevel drops hertz messages below level
func (h *HertzSlogAdapter) SetLevel(level hlog.Level) {
	h.min = level
}

// SetOutput is a no-op; output belongs to the slog handler
func (h *HertzSlogAdapter) SetOutput(io.Writer) {}
