package wad

import (
	"log"
	"os"
)

// Logger is the diagnostics sink every decoder and the scene engine
// receives by interface value. Implementations MUST NOT block and MUST
// NOT be retained past the call that received them (see §9 design notes).
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Success(msg string, args ...any)
}

// NopLogger discards everything. Functions that take a Logger substitute
// it when given nil, so they never have to nil-check before logging.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)    {}
func (NopLogger) Warn(string, ...any)    {}
func (NopLogger) Error(string, ...any)   {}
func (NopLogger) Success(string, ...any) {}

// StdLogger wraps *log.Logger, prefixing every line with its level.
type StdLogger struct {
	l *log.Logger
}

// NewStdLogger builds a StdLogger writing to stderr with the standard
// flags, matching the plain log.Printf call sites the teacher uses
// (nes/cartridge.go, nes/ppu.go).
func NewStdLogger() *StdLogger {
	return &StdLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (s *StdLogger) Info(msg string, args ...any)    { s.l.Printf("[info] "+msg, args...) }
func (s *StdLogger) Warn(msg string, args ...any)    { s.l.Printf("[warn] "+msg, args...) }
func (s *StdLogger) Error(msg string, args ...any)   { s.l.Printf("[error] "+msg, args...) }
func (s *StdLogger) Success(msg string, args ...any) { s.l.Printf("[success] "+msg, args...) }
