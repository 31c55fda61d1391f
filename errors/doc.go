// Package errors provides structured error types for the lacewing binding.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the event or method path, the resource kind involved,
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRequest, errors.KindAlreadyFinished).
//		Path("request", "write").
//		Resource("request").
//		Detail("request %d already finished", ref).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownEvent(errors.PhaseBind, "upload")
//	err := errors.InvalidHandle(errors.PhaseWrap, "request", ref)
//
// All errors implement the standard error interface and support errors.Is/As.
// Two *Error values match under errors.Is when Phase and Kind are equal, so the
// package-level sentinels can be used as targets:
//
//	if errors.Is(err, errors.ErrAlreadyFinished) { ... }
package errors
