package logging

import (
	"context"
	"log/slog"
	"strings"
)

// stageLevelHandler enforces a per-stage minimum level while delegating
// output to the wrapped handler (which should be configured with the most
// verbose level needed globally). The stage is picked up from the FieldStage
// attribute when a logger is derived with With.
type stageLevelHandler struct {
	next      slog.Handler
	base      slog.Level
	overrides map[string]slog.Level
	level     slog.Level
}

func newStageLevelHandler(next slog.Handler, base slog.Level, raw map[string]string) slog.Handler {
	if next == nil {
		return slog.DiscardHandler
	}
	overrides := make(map[string]slog.Level, len(raw))
	for stage, level := range raw {
		key := strings.ToLower(strings.TrimSpace(stage))
		if key == "" {
			continue
		}
		overrides[key] = parseLevel(level)
	}
	return &stageLevelHandler{next: next, base: base, overrides: overrides, level: base}
}

func (h *stageLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.level {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *stageLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *stageLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	level := h.level
	for _, attr := range attrs {
		if attr.Key != FieldStage {
			continue
		}
		stage := strings.ToLower(strings.TrimSpace(attr.Value.String()))
		if override, ok := h.overrides[stage]; ok {
			level = override
		} else {
			level = h.base
		}
	}
	return &stageLevelHandler{
		next:      h.next.WithAttrs(attrs),
		base:      h.base,
		overrides: h.overrides,
		level:     level,
	}
}

func (h *stageLevelHandler) WithGroup(name string) slog.Handler {
	return &stageLevelHandler{
		next:      h.next.WithGroup(name),
		base:      h.base,
		overrides: h.overrides,
		level:     h.level,
	}
}
