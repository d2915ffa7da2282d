package docstore

import (
	"context"
	"log/slog"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

func (s *Store) log(level slog.Level, msg string, attrs ...slog.Attr) {
	s.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func (s *Store) trace(msg string, attrs ...slog.Attr) {
	if s.verbose {
		s.logger.LogAttrs(context.Background(), LevelTrace, msg, attrs...)
	}
}
