// Package guest binds WebAssembly modules to a webserver as event handlers.
//
// A guest exports its linear memory as "memory" and any of on_get, on_post,
// on_head, on_connect, on_disconnect and on_error, each taking an i32 handle
// and returning an i32. Guests call back through the "lacewing" host module:
//
//	request_write(req, ptr, len) -> status
//	request_send_file(req, ptr, len) -> status
//	request_finish(req) -> status
//	request_disconnect(req) -> status
//	request_status(req, code, ptr, len) -> status
//	request_mime_type(req, ptr, len) -> status
//	request_header(req, name_ptr, name_len, value_ptr, value_len) -> status
//	request_url(req, ptr, cap) -> len
//	request_method(req, ptr, cap) -> len
//	request_get(req, name_ptr, name_len, ptr, cap) -> len
//	request_post(req, name_ptr, name_len, ptr, cap) -> len
//	error_string(err, ptr, cap) -> len
//	log(ptr, len) -> status
//
// Getters copy at most cap bytes and return the full length, so a guest can
// retry with a larger buffer. Negative results are Status codes.
//
// Handles seen by a guest come from a table private to its instance; they are
// never engine handles. Request handles stay valid until the request is
// finished or disconnected, error handles only for the error dispatch.
package guest
