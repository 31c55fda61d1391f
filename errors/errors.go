package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBind     Phase = "bind"     // handler registration
	PhaseDispatch Phase = "dispatch" // engine callback into handlers
	PhaseWrap     Phase = "wrap"     // handle to wrapper conversion
	PhaseHost     Phase = "host"     // hosting and certificates
	PhaseRequest  Phase = "request"  // request method forwarding
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseEngine   Phase = "engine"   // engine entry points
	PhaseScript   Phase = "script"   // script variant
	PhaseGuest    Phase = "guest"    // wasm guest variant
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidParameters Kind = "invalid_parameters"
	KindUnknownEvent      Kind = "unknown_event"
	KindInvalidHandle     Kind = "invalid_handle"
	KindAlreadyFinished   Kind = "already_finished"
	KindInvalidPort       Kind = "invalid_port"
	KindHandlerFailed     Kind = "handler_failed"
	KindHandlerPanic      Kind = "handler_panic"
	KindUnsupported       Kind = "unsupported"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindInstantiation     Kind = "instantiation"
	KindMissingExport     Kind = "missing_export"
	KindOutOfBounds       Kind = "out_of_bounds"
)

// Sentinels usable as errors.Is targets. Only Phase and Kind are compared.
var (
	ErrInvalidParameters = &Error{Phase: PhaseWrap, Kind: KindInvalidParameters}
	ErrUnknownEvent      = &Error{Phase: PhaseBind, Kind: KindUnknownEvent}
	ErrInvalidHandle     = &Error{Phase: PhaseWrap, Kind: KindInvalidHandle}
	ErrAlreadyFinished   = &Error{Phase: PhaseRequest, Kind: KindAlreadyFinished}
)

// Error is the structured error type used throughout the binding
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Resource != "" {
		b.WriteString(": ")
		b.WriteString(e.Resource)
	}

	if e.Detail != "" {
		if e.Resource != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Phase is ignored when the target's Phase is empty.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase || isSentinel(t)
}

// sentinels match on Kind alone; the Phase they carry is only a default for
// messages built from them.
func isSentinel(t *Error) bool {
	return t == ErrInvalidParameters || t == ErrUnknownEvent ||
		t == ErrInvalidHandle || t == ErrAlreadyFinished
}

// HasKind reports whether err (or anything it wraps) is an *Error of the given kind.
func HasKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the method or event path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Resource sets the resource kind name
func (b *Builder) Resource(name string) *Builder {
	b.err.Resource = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidParameters creates an error for constructor calls with an unsupported
// argument shape, including attempts to wrap a handle without the internal token.
func InvalidParameters(phase Phase, resource string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidParameters,
		Resource: resource,
		Detail:   "invalid parameters",
	}
}

// UnknownEvent creates an error for an event name outside the fixed event set
func UnknownEvent(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownEvent,
		Detail: fmt.Sprintf("unknown event %q", name),
		Value:  name,
	}
}

// InvalidHandle creates an error for a zero, stale or mistyped handle
func InvalidHandle(phase Phase, resource string, handle any) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidHandle,
		Resource: resource,
		Detail:   fmt.Sprintf("invalid handle %v", handle),
		Value:    handle,
	}
}

// AlreadyFinished creates an error for a mutating call on a finished request
func AlreadyFinished(method string, handle any) *Error {
	return &Error{
		Phase:    PhaseRequest,
		Kind:     KindAlreadyFinished,
		Path:     []string{"request", method},
		Resource: "request",
		Detail:   fmt.Sprintf("request %v already finished", handle),
		Value:    handle,
	}
}

// InvalidPort creates an error for a port outside 0-65535
func InvalidPort(phase Phase, port int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidPort,
		Detail: fmt.Sprintf("port %d out of range", port),
		Value:  port,
	}
}

// HandlerFailed wraps an error returned by a user handler
func HandlerFailed(event string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindHandlerFailed,
		Path:   []string{event},
		Detail: "handler returned an error",
		Cause:  cause,
	}
}

// HandlerPanic converts a recovered panic value into an error
func HandlerPanic(event string, recovered any) *Error {
	var msg string
	var cause error
	switch v := recovered.(type) {
	case error:
		msg = v.Error()
		cause = v
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindHandlerPanic,
		Path:   []string{event},
		Detail: "panic: " + msg,
		Value:  recovered,
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not found error
func NotFound(phase Phase, what, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Value:  name,
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds error for guest memory access
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) outside memory", offset, uint64(offset)+uint64(length)),
		Value:  offset,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
