// Package js exposes the binding to goja scripts.
//
// Install defines the global Lacewing object on a runtime; Register makes the
// same API available as require('liblacewing'). The script surface follows
// the classic liblacewing JavaScript API:
//
//	var Lacewing = require('liblacewing');
//	var webserver = new Lacewing.Webserver(new Lacewing.EventPump());
//
//	webserver.bind('get', function(request) {
//	    request.write('Hello world from ' + Lacewing.version());
//	});
//	webserver.host(8080);
//
// Handlers run with this bound to the webserver and receive a request (or an
// error for the error event) as their first argument. The runtime is not
// safe for concurrent use, so the event pump must be driven on the goroutine
// that owns the runtime.
package js
