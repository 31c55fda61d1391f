package binding

import (
	"sync"
	"time"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

type requestState uint8

const (
	stateActive requestState = iota
	stateFinishing
	stateFinished
	stateDisconnected
)

func (s requestState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateFinishing:
		return "finishing"
	case stateFinished:
		return "finished"
	case stateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Request wraps one in-flight engine request.
//
// Mutators fail with errors.KindAlreadyFinished once the request is finished
// and with errors.KindInvalidHandle once it is disconnected; the engine is not
// called in either case. Getters return zero values once the request is gone.
type Request struct {
	ws    *Webserver
	ref   engine.Ref
	mu    sync.Mutex
	state requestState
	// dropping is set by Disconnect; the wrapper stays registered until the
	// disconnect event was dispatched.
	dropping bool
}

func (r *Request) Ref() engine.Ref { return r.ref }
func (r *Request) wrapper()        {}

// Webserver returns the webserver the request arrived on.
func (r *Request) Webserver() *Webserver { return r.ws }

func (r *Request) eng() engine.Engine { return r.ws.lib.eng }

func (r *Request) setState(s requestState) {
	r.mu.Lock()
	if r.state < s {
		r.state = s
	}
	r.mu.Unlock()
}

// Finished reports whether the request was finished or disconnected.
func (r *Request) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state >= stateFinished
}

// Disconnecting reports whether Disconnect was called and the disconnect
// event is still pending.
func (r *Request) Disconnecting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropping && r.state != stateDisconnected
}

// Disconnected reports whether the request's disconnect event was delivered.
func (r *Request) Disconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateDisconnected
}

// mutate runs fn against the engine if the request still accepts calls and
// then advances the state to next.
func (r *Request) mutate(method string, next requestState, fn func(eng engine.Engine)) error {
	r.mu.Lock()
	switch r.state {
	case stateFinished:
		r.mu.Unlock()
		return errors.AlreadyFinished(method, r.ref)
	case stateDisconnected:
		r.mu.Unlock()
		return errors.InvalidHandle(errors.PhaseRequest, "request", r.ref)
	}
	if !r.eng().Valid(r.ref) {
		r.state = stateDisconnected
		r.mu.Unlock()
		r.ws.requests.forget(r.ref)
		return errors.InvalidHandle(errors.PhaseRequest, "request", r.ref)
	}
	if r.state < next {
		r.state = next
	}
	r.mu.Unlock()

	fn(r.eng())
	return nil
}

// Write appends text to the response body.
func (r *Request) Write(text string) error {
	return r.mutate("write", stateFinishing, func(eng engine.Engine) {
		eng.RequestWrite(r.ref, text)
	})
}

// SendFile appends the contents of filename to the response body.
func (r *Request) SendFile(filename string) error {
	return r.mutate("sendFile", stateFinishing, func(eng engine.Engine) {
		eng.RequestSendFile(r.ref, filename)
	})
}

// Reset discards the response built so far.
func (r *Request) Reset() error {
	return r.mutate("reset", stateActive, func(eng engine.Engine) {
		eng.RequestReset(r.ref)
	})
}

// Finish completes the response. With manual finish enabled this is the only
// way a request completes short of a disconnect.
func (r *Request) Finish() error {
	err := r.mutate("finish", stateFinished, func(eng engine.Engine) {
		eng.RequestFinish(r.ref)
	})
	if err == nil {
		r.ws.requests.forget(r.ref)
	}
	return err
}

// Disconnect drops the client connection. The disconnect event follows.
func (r *Request) Disconnect() error {
	return r.mutate("disconnect", stateFinished, func(eng engine.Engine) {
		r.mu.Lock()
		r.dropping = true
		r.mu.Unlock()
		eng.RequestDisconnect(r.ref)
	})
}

// Redirect responds with 303 See Other to url.
func (r *Request) Redirect(url string) error {
	return r.mutate("redirect", stateActive, func(eng engine.Engine) {
		eng.RequestSetRedirect(r.ref, url)
	})
}

// SetStatus sets the response status line.
func (r *Request) SetStatus(code int, message string) error {
	return r.mutate("responseType", stateActive, func(eng engine.Engine) {
		eng.RequestSetStatus(r.ref, code, message)
	})
}

// SetMimeType sets Content-Type. An empty charset leaves it out.
func (r *Request) SetMimeType(mimeType, charset string) error {
	return r.mutate("mimeType", stateActive, func(eng engine.Engine) {
		eng.RequestSetMimeType(r.ref, mimeType, charset)
	})
}

// GuessMimeType sets Content-Type from the extension of filename.
func (r *Request) GuessMimeType(filename string) error {
	return r.mutate("guessMimeType", stateActive, func(eng engine.Engine) {
		eng.RequestGuessMimeType(r.ref, filename)
	})
}

// SetUnmodified responds with 304 Not Modified.
func (r *Request) SetUnmodified() error {
	return r.mutate("setUnmodified", stateActive, func(eng engine.Engine) {
		eng.RequestSetUnmodified(r.ref)
	})
}

func (r *Request) DisableCache() error {
	return r.mutate("disableCache", stateActive, func(eng engine.Engine) {
		eng.RequestDisableCache(r.ref)
	})
}

func (r *Request) SetLastModified(t time.Time) error {
	return r.mutate("lastModified", stateActive, func(eng engine.Engine) {
		eng.RequestSetLastModified(r.ref, t)
	})
}

func (r *Request) SetHeader(name, value string) error {
	return r.mutate("header", stateActive, func(eng engine.Engine) {
		eng.RequestSetHeader(r.ref, name, value)
	})
}

func (r *Request) SetCookie(name, value string) error {
	return r.mutate("cookie", stateActive, func(eng engine.Engine) {
		eng.RequestSetCookie(r.ref, name, value)
	})
}

// SetSession stores value under key in the client's session.
func (r *Request) SetSession(key, value string) error {
	return r.mutate("session", stateActive, func(eng engine.Engine) {
		eng.RequestSessionWrite(r.ref, key, value)
	})
}

// CloseSession discards the client's session.
func (r *Request) CloseSession() error {
	return r.mutate("closeSession", stateActive, func(eng engine.Engine) {
		eng.RequestSessionClose(r.ref)
	})
}

// Address returns the client address.
func (r *Request) Address() (*Address, error) {
	return WrapAddress(internal, r.ws.lib, r.eng().RequestAddress(r.ref))
}

func (r *Request) Secure() bool {
	return r.eng().RequestSecure(r.ref)
}

func (r *Request) URL() string {
	return r.eng().RequestURL(r.ref)
}

func (r *Request) Hostname() string {
	return r.eng().RequestHostname(r.ref)
}

func (r *Request) Method() string {
	return r.eng().RequestMethod(r.ref)
}

func (r *Request) Body() string {
	return r.eng().RequestBody(r.ref)
}

// LastModified returns the request's If-Modified-Since time.
func (r *Request) LastModified() time.Time {
	return r.eng().RequestLastModified(r.ref)
}

func (r *Request) Header(name string) string {
	return r.eng().RequestHeader(r.ref, name)
}

func (r *Request) Cookie(name string) string {
	return r.eng().RequestCookie(r.ref, name)
}

// SessionID returns the client's session id, or "" when it has none.
func (r *Request) SessionID() string {
	return r.eng().RequestSessionID(r.ref)
}

func (r *Request) Session(key string) string {
	return r.eng().RequestSessionRead(r.ref, key)
}

// GET returns a query string parameter.
func (r *Request) GET(name string) string {
	return r.eng().RequestGET(r.ref, name)
}

// POST returns a form body parameter.
func (r *Request) POST(name string) string {
	return r.eng().RequestPOST(r.ref, name)
}
