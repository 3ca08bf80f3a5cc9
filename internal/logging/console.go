package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// shortRunID is how much of a run id the console prefix keeps. Eight hex
// digits of a uuid are enough to tell concurrent runs apart in a terminal.
const shortRunID = 8

// shouldColorize reports whether w is a terminal. Multi-writers that also
// feed a log file never get escape codes.
func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// consoleHandler renders one line per record:
//
//	2026-01-02T15:04:05Z INFO  [1a2b3c4d] pipeline/store: batch stored batch_size=500 page=page-7.html
//
// The run id, component and stage form the prefix; page trails the record's
// own fields so lines from one page line up at the end.
type consoleHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	scope     lineScope
	attrs     []field
	groups    []string
	addSource bool
	color     bool
}

// lineScope holds the fields the console layout lifts out of key=value form.
type lineScope struct {
	runID     string
	component string
	stage     string
	page      string
}

// take absorbs f into the scope and reports whether it was consumed. The
// first component wins so nested component loggers keep their origin.
func (s *lineScope) take(f field) bool {
	switch f.key {
	case FieldRunID:
		s.runID = attrString(f.value)
	case FieldComponent:
		if s.component == "" {
			s.component = attrString(f.value)
		}
	case FieldStage:
		s.stage = attrString(f.value)
	case FieldPage:
		s.page = attrString(f.value)
	default:
		return false
	}
	return true
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	scope := h.scope
	fields := make([]field, 0, record.NumAttrs()+len(h.attrs))
	fields = append(fields, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		for _, f := range flatten(nil, h.groups, attr) {
			if len(h.groups) > 0 || !scope.take(f) {
				fields = append(fields, f)
			}
		}
		return true
	})

	var buf bytes.Buffer
	buf.Grow(128 + len(fields)*24)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	label := levelLabel(record.Level)
	if h.color {
		buf.WriteString(levelColor(record.Level))
		buf.WriteString(label)
		buf.WriteString(ansiReset)
	} else {
		buf.WriteString(label)
	}
	buf.WriteString(strings.Repeat(" ", 6-len(label)))

	if scope.runID != "" {
		buf.WriteByte('[')
		buf.WriteString(truncateRunID(scope.runID))
		buf.WriteString("] ")
	}
	switch {
	case scope.component != "" && scope.stage != "":
		buf.WriteString(scope.component + "/" + scope.stage + ": ")
	case scope.component != "":
		buf.WriteString(scope.component + ": ")
	case scope.stage != "":
		buf.WriteString(scope.stage + ": ")
	}

	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}

	for _, f := range fields {
		if f.key == "" {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(f.key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(f.value))
	}
	if scope.page != "" {
		buf.WriteString(" " + FieldPage + "=")
		buf.WriteString(formatValue(slog.StringValue(scope.page)))
	}

	if h.addSource {
		if src := record.Source(); src != nil {
			buf.WriteString(" (")
			buf.WriteString(filepath.Base(src.File))
			buf.WriteByte(':')
			buf.WriteString(strconv.Itoa(src.Line))
			buf.WriteByte(')')
		}
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, attr := range attrs {
		for _, f := range flatten(nil, h.groups, attr) {
			if len(h.groups) > 0 || !clone.scope.take(f) {
				clone.attrs = append(clone.attrs, f)
			}
		}
	}
	return clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *consoleHandler) clone() *consoleHandler {
	clone := *h
	clone.attrs = append([]field(nil), h.attrs...)
	clone.groups = append([]string(nil), h.groups...)
	return &clone
}

func truncateRunID(id string) string {
	if len(id) <= shortRunID {
		return id
	}
	return id[:shortRunID]
}

type field struct {
	key   string
	value slog.Value
}

// flatten expands groups into dotted keys. Inline groups (empty key), such
// as the one Error builds, contribute their members without a prefix.
func flatten(dst []field, prefix []string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			dst = flatten(dst, next, member)
		}
		return dst
	}
	key := attr.Key
	if len(prefix) > 0 {
		path := append([]string(nil), prefix...)
		if key != "" {
			path = append(path, key)
		}
		key = strings.Join(path, ".")
	}
	return append(dst, field{key: key, value: attr.Value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiGray   = "\x1b[90m"
)

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}
