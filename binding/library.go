package binding

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/lacewing/engine"
)

// Library is the entry point to an engine. Each Library carries its own
// reporter and logger; nothing is shared between libraries.
type Library struct {
	eng      engine.Engine
	reporter ErrorReporter
	log      *zap.Logger
}

// Config holds configuration for a Library
type Config struct {
	// Reporter receives handler failures. Defaults to LogReporter(Logger).
	Reporter ErrorReporter

	// Logger is used for binding diagnostics. Defaults to the package logger.
	Logger *zap.Logger
}

// New creates a Library over eng with default configuration.
func New(eng engine.Engine) *Library {
	return NewWithConfig(eng, nil)
}

// NewWithConfig creates a Library over eng.
func NewWithConfig(eng engine.Engine, cfg *Config) *Library {
	l := &Library{eng: eng, log: Logger()}
	if cfg != nil {
		if cfg.Logger != nil {
			l.log = cfg.Logger
		}
		l.reporter = cfg.Reporter
	}
	if l.reporter == nil {
		l.reporter = LogReporter(l.log)
	}
	return l
}

// Engine returns the underlying engine.
func (l *Library) Engine() engine.Engine {
	return l.eng
}

// Reporter returns the reporter handler failures are delivered to.
func (l *Library) Reporter() ErrorReporter {
	return l.reporter
}

func (l *Library) Version() string {
	return l.eng.Version()
}

// LastModified returns the modification time of a file, or the zero time.
func (l *Library) LastModified(filename string) time.Time {
	return l.eng.FileLastModified(filename)
}

func (l *Library) FileExists(filename string) bool {
	return l.eng.FileExists(filename)
}

func (l *Library) FileSize(filename string) int64 {
	return l.eng.FileSize(filename)
}

func (l *Library) PathExists(path string) bool {
	return l.eng.PathExists(path)
}

func (l *Library) TempPath() string {
	return l.eng.TempPath()
}

// NewTempFile creates an empty temp file and returns its name.
func (l *Library) NewTempFile() string {
	return l.eng.NewTempFile()
}

func (l *Library) GuessMimeType(filename string) string {
	return l.eng.GuessMimeType(filename)
}

// MD5 returns the hex digest of s.
func (l *Library) MD5(s string) string {
	return l.eng.MD5(s)
}

// SHA1 returns the hex digest of s.
func (l *Library) SHA1(s string) string {
	return l.eng.SHA1(s)
}
