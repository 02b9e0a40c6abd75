// Package logger provides the structured logger injected into every core
// component.
package logger

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log wraps a logr.Logger so callers depend on this package, not zap
// directly.
type Log struct {
	logr.Logger
}

// New builds a logger named name. When logPath is non-empty, output is
// additionally written to <logPath>/<name>.log.
func New(name, logPath string, production bool) (*Log, error) {
	var zc zap.Config

	if production {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc.DisableCaller = true
	zc.DisableStacktrace = true

	if logPath != "" {
		if err := os.MkdirAll(logPath, fs.ModeDir); err != nil {
			return nil, err
		}
		zc.OutputPaths = append(zc.OutputPaths, filepath.Join(logPath, fmt.Sprintf("%s.log", name)))
	}

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}

	return &Log{Logger: zapr.NewLogger(z).WithName(name)}, nil
}

// New returns a named sub-logger of l.
func (l *Log) New(name string) *Log {
	return &Log{Logger: l.WithName(name)}
}

// Info logs at the default verbosity.
func (l *Log) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.V(0).Info(msg, keysAndValues...)
}

// Debug logs at verbosity 1.
func (l *Log) Debug(msg string, keysAndValues ...interface{}) {
	l.Logger.V(1).Info(msg, keysAndValues...)
}

// Error logs an error with context.
func (l *Log) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error(err, msg, keysAndValues...)
}
