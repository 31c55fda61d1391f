// Package lacewing binds the Lacewing webserver engine to scripting hosts.
//
// A script never sees engine handles. It sees wrappers (EventPump,
// Webserver, Request, Address, Filter, Error) whose lifetime the binding
// tracks, and handlers bound per event that the engine reaches through a
// single dispatch callback per webserver.
//
// # Architecture Overview
//
//	lacewing/
//	├── engine/          Engine port: the entry points a webserver engine offers
//	│   ├── netengine/   net/http implementation (pumps, TLS, sessions, filters)
//	│   └── enginetest/  Recording fake for tests
//	├── binding/         Handle registry, event binder, dispatch trampoline, wrappers
//	├── js/              goja host: the Lacewing global and require('liblacewing')
//	├── guest/           wazero host: WebAssembly modules exporting on_<event>
//	├── config/          YAML configuration for lwshell
//	├── resource/        Generational handle tables
//	├── errors/          Structured errors with phase and kind
//	└── cmd/lwshell/     Script runner and interactive console
//
// # Quick Start
//
// Serve requests from Go:
//
//	eng := netengine.New()
//	defer eng.Close()
//
//	lib := binding.New(eng)
//	pump, _ := lib.NewEventPump()
//	ws, _ := lib.NewWebserver(pump)
//
//	ws.OnGet(func(req *binding.Request, _ ...any) (any, error) {
//	    return nil, req.Write("Hello world from " + lib.Version())
//	})
//	ws.Host(binding.Port(8080))
//
//	pump.StartEventLoop(ctx)
//
// Or from JavaScript, with lwshell:
//
//	var webserver = new Lacewing.Webserver();
//	webserver.get(function (request) {
//	    request.write('Hello world from ' + Lacewing.version());
//	});
//	webserver.host(8080);
//
// # Requests
//
// A request accepts calls until it is finished. Without manual finish the
// webserver finishes it once the get, post or head handlers return. With
// EnableManualFinish the handler keeps the request and calls Finish later,
// which is how long-poll responses work. Calls on a finished request fail
// with an already_finished error rather than reaching the engine.
//
// # Errors
//
// Errors carry a phase and a kind:
//
//	[bind] unknown_event: unknown event "shutdown"
//	[request] already_finished at request.write: request - request 12 already finished
//
// Use errors.HasKind to branch on them. Handler failures and panics never
// reach the engine; they go to the ErrorReporter of the Library.
package lacewing
