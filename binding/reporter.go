package binding

import "go.uber.org/zap"

// ErrorReporter receives handler failures caught during dispatch.
type ErrorReporter interface {
	Report(event string, err error)
}

// ReporterFunc adapts a function to ErrorReporter.
type ReporterFunc func(event string, err error)

func (f ReporterFunc) Report(event string, err error) { f(event, err) }

// LogReporter reports failures as zap error entries.
func LogReporter(l *zap.Logger) ErrorReporter {
	return logReporter{log: l}
}

type logReporter struct {
	log *zap.Logger
}

func (r logReporter) Report(event string, err error) {
	r.log.Error("handler failed", zap.String("event", event), zap.Error(err))
}
