package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: jsonAttr,
	})
}

// jsonAttr writes UTC timestamps, lowercase levels, durations in seconds
// and source as file:line so the run log stays easy to grep and parse.
func jsonAttr(groups []string, attr slog.Attr) slog.Attr {
	v := attr.Value
	if len(groups) == 0 {
		switch attr.Key {
		case slog.TimeKey:
			if v.Kind() == slog.KindTime {
				return slog.String(slog.TimeKey, v.Time().UTC().Format(time.RFC3339Nano))
			}
			return attr
		case slog.LevelKey:
			return slog.String(slog.LevelKey, strings.ToLower(v.String()))
		case slog.SourceKey:
			if src, ok := v.Any().(*slog.Source); ok && src != nil {
				return slog.String(slog.SourceKey, filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
			}
			return attr
		}
	}
	if v.Kind() == slog.KindDuration {
		return slog.Float64(attr.Key, v.Duration().Seconds())
	}
	return attr
}
