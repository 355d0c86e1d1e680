package orchlog

import (
	"go.uber.org/zap"
)

// zapLogger adapts a zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZap wraps a *zap.Logger as the production Logger implementation.
func NewZap(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

// NewProduction builds a production Logger: JSON encoding, epoch-seconds
// timestamps, info level by default.
func NewProduction() (Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZap(l), nil
}

// NewDevelopment builds a human-readable console Logger, used by the CLI
// when --verbose is set.
func NewDevelopment() (Logger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return NewZap(l), nil
}

func (z *zapLogger) Debug(msg string, fields ...any) { z.s.Debugw(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...any)  { z.s.Infow(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...any)  { z.s.Warnw(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...any) { z.s.Errorw(msg, fields...) }

func (z *zapLogger) With(fields ...any) Logger {
	return &zapLogger{s: z.s.With(fields...)}
}
