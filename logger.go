package auth

import "go.uber.org/zap"

// NewZapLogger adapts a zap logger to the package Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return zapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z zapLogger) Debug(format string, args ...any) { z.s.Debugf(format, args...) }
func (z zapLogger) Info(format string, args ...any)  { z.s.Infof(format, args...) }
func (z zapLogger) Warn(format string, args ...any)  { z.s.Warnf(format, args...) }
func (z zapLogger) Error(format string, args ...any) { z.s.Errorf(format, args...) }

// NopLogger discards everything.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
