package engine

import (
	"context"
	"time"

	"github.com/wippyai/lacewing/resource"
)

// Ref is an opaque engine handle. The zero Ref is always invalid.
type Ref = resource.Handle

// Callback receives every event raised on a webserver.
type Callback func(event string, args ...any) any

// Event tokens passed as the first Callback argument.
const (
	EventError      = "error"
	EventGet        = "get"
	EventPost       = "post"
	EventHead       = "head"
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Engine is the full set of engine entry points used by the binding.
type Engine interface {
	Pumps
	Webservers
	Requests
	Addresses
	Filters
	Errors
	Globals

	// Valid reports whether ref names a live engine resource.
	Valid(ref Ref) bool
}

// Pumps drives callbacks.
type Pumps interface {
	NewPump() (Ref, error)
	// PumpTick runs the events queued when it is called and returns.
	PumpTick(pump Ref) error
	// PumpStartEventLoop blocks running events until PumpPostEventLoopExit
	// or ctx is done.
	PumpStartEventLoop(ctx context.Context, pump Ref) error
	PumpPostEventLoopExit(pump Ref) error
	PumpClose(pump Ref) error
}

// Webservers manages HTTP servers.
type Webservers interface {
	NewWebserver(pump Ref, cb Callback) (Ref, error)
	WebserverHost(ws Ref, port int)
	WebserverHostFilter(ws, filter Ref)
	WebserverHostSecure(ws Ref, port int)
	WebserverHostSecureFilter(ws, filter Ref)
	WebserverUnhost(ws Ref)
	WebserverUnhostSecure(ws Ref)
	WebserverHosting(ws Ref) bool
	WebserverHostingSecure(ws Ref) bool
	WebserverPort(ws Ref) int
	WebserverPortSecure(ws Ref) int
	WebserverLoadCertificateFile(ws Ref, file, passphrase string) bool
	WebserverLoadSystemCertificate(ws Ref, store, commonName, location string) bool
	WebserverCertificateLoaded(ws Ref) bool
	WebserverBytesSent(ws Ref) int64
	WebserverBytesReceived(ws Ref) int64
	WebserverCloseSession(ws Ref, id string)
	WebserverEnableManualFinish(ws Ref)
	WebserverClose(ws Ref) error
}

// Requests forwards request operations. Calls on an invalid ref are ignored
// and getters return zero values.
type Requests interface {
	RequestWrite(req Ref, text string)
	RequestSendFile(req Ref, filename string)
	RequestReset(req Ref)
	RequestFinish(req Ref)
	RequestDisconnect(req Ref)
	RequestSetRedirect(req Ref, url string)
	RequestSetStatus(req Ref, code int, message string)
	RequestSetMimeType(req Ref, mimeType, charset string)
	RequestGuessMimeType(req Ref, filename string)
	RequestSetUnmodified(req Ref)
	RequestDisableCache(req Ref)
	RequestAddress(req Ref) Ref
	RequestSecure(req Ref) bool
	RequestURL(req Ref) string
	RequestHostname(req Ref) string
	RequestMethod(req Ref) string
	RequestBody(req Ref) string
	RequestLastModified(req Ref) time.Time
	RequestSetLastModified(req Ref, t time.Time)
	RequestHeader(req Ref, name string) string
	RequestSetHeader(req Ref, name, value string)
	RequestCookie(req Ref, name string) string
	RequestSetCookie(req Ref, name, value string)
	RequestSessionID(req Ref) string
	RequestSessionRead(req Ref, key string) string
	RequestSessionWrite(req Ref, key, value string)
	RequestSessionClose(req Ref)
	RequestGET(req Ref, name string) string
	RequestPOST(req Ref, name string) string
}

// Addresses manages network addresses.
type Addresses interface {
	NewAddress() Ref
	// NewAddressName resolves name ("host[:port]"). Without blocking the
	// resolution runs in the background and AddressReady reports completion.
	NewAddressName(name string, blocking bool) Ref
	AddressCopy(addr Ref) Ref
	AddressPort(addr Ref) int
	AddressSetPort(addr Ref, port int)
	AddressReady(addr Ref) bool
	AddressString(addr Ref) string
	AddressClose(addr Ref)
}

// Filters manages hosting filters.
type Filters interface {
	NewFilter() Ref
	FilterLocal(filter Ref) string
	FilterSetLocal(filter Ref, name string)
	FilterLocalPort(filter Ref) int
	FilterSetLocalPort(filter Ref, port int)
	// FilterRemote returns a new address ref, or 0 if none is set.
	FilterRemote(filter Ref) Ref
	FilterSetRemote(filter Ref, name string)
	FilterSetRemoteAddress(filter, addr Ref)
	FilterReuse(filter Ref) bool
	FilterSetReuse(filter Ref, enabled bool)
	FilterClose(filter Ref)
}

// Errors manages engine error values.
type Errors interface {
	NewError() Ref
	ErrorClone(e Ref) Ref
	ErrorAdd(e Ref, text string)
	ErrorString(e Ref) string
	ErrorClose(e Ref)
}

// Globals are engine utility functions not tied to a resource.
type Globals interface {
	Version() string
	FileLastModified(name string) time.Time
	FileExists(name string) bool
	FileSize(name string) int64
	PathExists(name string) bool
	TempPath() string
	NewTempFile() string
	GuessMimeType(name string) string
	MD5(s string) string
	SHA1(s string) string
}
