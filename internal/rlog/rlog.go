// Package rlog wires a logrus logger into dlib's dlog facade so every
// package under pkg/ can log through dlog without knowing or caring
// what backend is attached.
package rlog

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/datawire/dlib/dlog"
)

// WithLogger returns ctx with a logrus-backed dlog.Logger attached at
// the given level ("trace", "debug", "info", "warn", "error"). An
// unrecognized level falls back to "info".
func WithLogger(ctx context.Context, level string) context.Context {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	dl := dlog.WrapLogrus(logger)
	dlog.SetFallbackLogger(dl)
	return dlog.WithLogger(ctx, dl)
}
