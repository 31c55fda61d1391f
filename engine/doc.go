// Package engine defines the port between the binding and a Lacewing engine.
//
// The engine owns every networking resource. It hands the binding opaque
// references (Ref) and calls back into the binding through a single Callback
// per webserver. The binding never sees Go pointers to engine state.
//
// # Resources
//
//	Pump       - event pump; every callback runs on the goroutine ticking it
//	Webserver  - HTTP/HTTPS server bound to one pump
//	Request    - one in-flight request, valid until finished or disconnected
//	Address    - resolvable network address
//	Filter     - local/remote address filter used when hosting
//	Error      - engine error message accumulated with Add
//
// # Callback Protocol
//
// The engine invokes the webserver callback with an event token followed by
// the event arguments:
//
//	callback("get", requestRef)
//	callback("post", requestRef)
//	callback("head", requestRef)
//	callback("connect", requestRef)
//	callback("disconnect", requestRef)
//	callback("error", errorRef)
//
// The returned value is opaque to the engine. For "error" a truthy return
// means the error was handled and the engine skips its own log line.
//
// Callbacks are only ever invoked from Pump tick or event loop goroutines.
// Implementations: engine/netengine (net/http) and engine/enginetest (fake).
package engine
