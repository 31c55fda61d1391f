package binding

import (
	"github.com/wippyai/lacewing/engine"
)

// Error wraps an engine error. It is the first argument of error handlers.
type Error struct {
	lib *Library
	ref engine.Ref
}

var _ error = (*Error)(nil)

// NewError creates an empty engine error.
func (l *Library) NewError() *Error {
	return &Error{lib: l, ref: l.eng.NewError()}
}

func (e *Error) Ref() engine.Ref { return e.ref }
func (e *Error) wrapper()        {}

// Clone returns a copy that outlives the dispatch e arrived in.
func (e *Error) Clone() *Error {
	return &Error{lib: e.lib, ref: e.lib.eng.ErrorClone(e.ref)}
}

// Add prepends text to the message.
func (e *Error) Add(text string) *Error {
	e.lib.eng.ErrorAdd(e.ref, text)
	return e
}

func (e *Error) String() string {
	return e.lib.eng.ErrorString(e.ref)
}

func (e *Error) Error() string {
	return e.String()
}

func (e *Error) Close() {
	e.lib.eng.ErrorClose(e.ref)
}
