// Package logging provides the production ports.Logger implementation,
// wrapping zap.SugaredLogger the way the source organization's services do.
package logging

import (
	"go.uber.org/zap"
)

type ZapLogger struct {
	s *zap.SugaredLogger
}

// New builds a production (JSON) logger unless format is "console", and
// applies level (debug|info|warn|error).
func New(level, format string) (*ZapLogger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{s: logger.Sugar()}, nil
}

func (l *ZapLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *ZapLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *ZapLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *ZapLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

func (l *ZapLogger) Sync() error { return l.s.Sync() }
