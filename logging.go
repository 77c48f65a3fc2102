package copilot

import (
	"context"
	"log/slog"
)

// nopLogger discards all output. Components that accept an optional
// *slog.Logger default to it.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// NopLogger returns the shared discard logger.
func NopLogger() *slog.Logger { return nopLogger }
