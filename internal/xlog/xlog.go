// Package xlog is the minimal structured-logging seam used by the
// engines: a small interface, a no-op default, and a logrus adapter for
// callers that want real output.
package xlog

// Logger is the logging interface used by this module. It's a subset of
// logrus.FieldLogger, kept deliberately small since the engines only
// ever log a handful of round-boundary debug lines and collaborator
// failures.
type Logger interface {
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger
	Debug(args ...any)
	Error(args ...any)
}

// Discard implements a Logger that does nothing. It is the default for
// engines constructed without WithLogger.
type Discard struct{}

var _ Logger = Discard{}

func (Discard) WithField(string, any) Logger     { return Discard{} }
func (Discard) WithFields(map[string]any) Logger { return Discard{} }
func (Discard) WithError(error) Logger           { return Discard{} }
func (Discard) Debug(...any)                     {}
func (Discard) Error(...any)                     {}
