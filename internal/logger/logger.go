// Package logger provides the leveled logger injected into services.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
)

// Logger is the logging surface used by services and workers.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Std writes leveled lines through a standard library logger.
type Std struct {
	l     *log.Logger
	debug bool
}

// New returns a Std logger writing to stderr.
func New(prefix string, debug bool) *Std {
	return &Std{l: log.New(os.Stderr, prefix, log.LstdFlags|log.Lmsgprefix), debug: debug}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Std {
	return &Std{l: log.New(io.Discard, "", 0)}
}

func (s *Std) Debug(format string, args ...any) {
	if s.debug {
		s.l.Printf("DEBUG "+format, args...)
	}
}

func (s *Std) Info(format string, args ...any)  { s.l.Printf("INFO "+format, args...) }
func (s *Std) Warn(format string, args ...any)  { s.l.Printf("WARN "+format, args...) }
func (s *Std) Error(format string, args ...any) { s.l.Printf("ERROR "+format, args...) }

// Rollbar forwards warnings and errors to Rollbar and mirrors every line to Std.
type Rollbar struct {
	std *Std
}

// NewRollbar configures the rollbar client. The caller should invoke Close on shutdown.
func NewRollbar(std *Std, token, env, version string) *Rollbar {
	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetCodeVersion(version)
	return &Rollbar{std: std}
}

func (r *Rollbar) Debug(format string, args ...any) { r.std.Debug(format, args...) }
func (r *Rollbar) Info(format string, args ...any)  { r.std.Info(format, args...) }

func (r *Rollbar) Warn(format string, args ...any) {
	rollbar.Warning(fmt.Sprintf(format, args...))
	r.std.Warn(format, args...)
}

func (r *Rollbar) Error(format string, args ...any) {
	rollbar.Error(fmt.Sprintf(format, args...))
	r.std.Error(format, args...)
}

// Close flushes queued rollbar items.
func (r *Rollbar) Close() {
	rollbar.Close()
}

// FromConfig picks the rollbar logger when a token is configured.
func FromConfig(prefix, token, env string, debug bool) Logger {
	std := New(prefix, debug)
	if token == "" {
		return std
	}
	return NewRollbar(std, token, env, "")
}
