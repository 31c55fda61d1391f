// Package netengine is a Lacewing engine built on net/http.
//
// Every connection is served on its own goroutine, but callbacks are only
// ever invoked from the pump: an incoming request is parked, posted to the
// pump as a get/post/head event, and the connection goroutine waits until the
// request is finished, disconnected by the handler, or abandoned by the
// client. Responses are buffered and written by the connection goroutine, so
// handlers never touch a ResponseWriter.
//
// Plain hosting speaks HTTP/1.1 and cleartext HTTP/2 (h2c); secure hosting
// negotiates HTTP/2 over TLS. Sessions are kept in a SessionStore, in memory
// by default or in SQLite via OpenSQLStore.
package netengine
