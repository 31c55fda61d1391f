// Package binding exposes a Lacewing engine as Go wrapper objects and
// dispatches engine callbacks to registered handlers.
//
// # Wrappers
//
// Every wrapper holds exactly one engine reference:
//
//	lib := binding.New(eng)
//	pump, _ := lib.NewEventPump()
//	ws, _ := lib.NewWebserver(pump)
//
// EventPump, Webserver, Address, Filter and Error have public constructors.
// Request wrappers only come out of event dispatch. The exported Wrap
// functions require a Token that cannot be obtained outside this package, so
// external callers always get errors.KindInvalidParameters back.
//
// # Events
//
// A Webserver has a fixed event set: error, get, post, head, connect and
// disconnect. Handlers are appended with Bind or the On* helpers and run in
// registration order:
//
//	ws.OnGet(func(req *binding.Request, args ...any) (any, error) {
//		return nil, req.Write("Hello world")
//	})
//
// # Dispatch
//
// The engine calls the webserver back with an event token and raw arguments.
// The first argument is converted to a *Request (or *Error for the error
// event), every handler runs with it, and the last handler's return value goes
// back to the engine. A handler that returns an error or panics is reported
// once to the ErrorReporter; the remaining handlers still run.
//
// Request wrappers are identity-stable: the same engine request always yields
// the same *Request until it is finished or disconnected.
package binding
