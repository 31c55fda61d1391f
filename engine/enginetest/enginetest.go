// Package enginetest provides an in-memory engine that records every call.
//
// The fake keeps just enough state for getters to return what setters stored.
// Tests raise events with Fire and inspect forwarded calls with Calls.
package enginetest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/resource"
)

// Version reported by the fake engine.
const Version = "lacewing-enginetest 0.1"

// Call is one recorded engine entry point invocation.
type Call struct {
	Method string
	Ref    engine.Ref
	Args   []any
}

type pump struct {
	queue []func()
	exit  chan struct{}
}

type webserver struct {
	pump          engine.Ref
	cb            engine.Callback
	port          int
	securePort    int
	hosting       bool
	hostingSecure bool
	certLoaded    bool
	manual        bool
}

// Request is the fake's request state, exposed for assertions.
type Request struct {
	Webserver    engine.Ref
	Method       string
	URL          string
	Hostname     string
	Body         string
	Secure       bool
	Status       int
	StatusText   string
	MimeType     string
	Output       strings.Builder
	Headers      map[string]string
	Cookies      map[string]string
	Session      map[string]string
	Query        map[string]string
	Form         map[string]string
	LastModified time.Time
	Finished     bool
	Disconnected bool
}

type address struct {
	host  string
	port  int
	ready bool
}

type filter struct {
	local     string
	localPort int
	remote    string
	reuse     bool
}

type engineError struct {
	text string
}

// Engine is a recording fake implementing engine.Engine.
type Engine struct {
	engine.OSGlobals

	table *resource.UnifiedTable
	mu    sync.Mutex
	calls []Call
}

var _ engine.Engine = (*Engine)(nil)

// New creates an empty fake engine.
func New() *Engine {
	return &Engine{
		OSGlobals: engine.OSGlobals{VersionString: Version},
		table:     resource.NewTable(),
	}
}

func (e *Engine) record(method string, ref engine.Ref, args ...any) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Method: method, Ref: ref, Args: args})
	e.mu.Unlock()
}

// Calls returns a copy of every recorded call, optionally filtered by method.
func (e *Engine) Calls(methods ...string) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Call
	for _, c := range e.calls {
		if len(methods) == 0 || contains(methods, c.Method) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.calls = nil
	e.mu.Unlock()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Table exposes the handle table backing the fake.
func (e *Engine) Table() *resource.UnifiedTable {
	return e.table
}

func (e *Engine) Valid(ref engine.Ref) bool {
	return e.table.Valid(ref)
}

func (e *Engine) webserver(ref engine.Ref) *webserver {
	v, _ := e.table.GetTyped(ref, resource.KindWebserver)
	ws, _ := v.(*webserver)
	return ws
}

// Request returns the fake state behind a request ref.
func (e *Engine) Request(ref engine.Ref) *Request {
	v, _ := e.table.GetTyped(ref, resource.KindRequest)
	r, _ := v.(*Request)
	return r
}

func (e *Engine) address(ref engine.Ref) *address {
	v, _ := e.table.GetTyped(ref, resource.KindAddress)
	a, _ := v.(*address)
	return a
}

func (e *Engine) filter(ref engine.Ref) *filter {
	v, _ := e.table.GetTyped(ref, resource.KindFilter)
	f, _ := v.(*filter)
	return f
}

func (e *Engine) engineError(ref engine.Ref) *engineError {
	v, _ := e.table.GetTyped(ref, resource.KindError)
	ee, _ := v.(*engineError)
	return ee
}

// NewRequest creates a live request on ws.
func (e *Engine) NewRequest(ws engine.Ref, method, url string) engine.Ref {
	return e.table.Insert(resource.KindRequest, &Request{
		Webserver: ws,
		Method:    method,
		URL:       url,
		Status:    200,
		Headers:   map[string]string{},
		Cookies:   map[string]string{},
		Session:   map[string]string{},
		Query:     map[string]string{},
		Form:      map[string]string{},
	})
}

// DropRequest invalidates a request ref as the engine does after the
// disconnect notification or after auto-finish.
func (e *Engine) DropRequest(req engine.Ref) {
	e.table.Remove(req)
}

// NewEngineError creates an error ref carrying text.
func (e *Engine) NewEngineError(text string) engine.Ref {
	return e.table.Insert(resource.KindError, &engineError{text: text})
}

// Fire invokes the callback of ws as the engine would.
func (e *Engine) Fire(ws engine.Ref, event string, args ...any) any {
	s := e.webserver(ws)
	if s == nil || s.cb == nil {
		panic(fmt.Sprintf("enginetest: no webserver %d", ws))
	}
	return s.cb(event, args...)
}

// Manual reports whether manual finish was enabled on ws.
func (e *Engine) Manual(ws engine.Ref) bool {
	s := e.webserver(ws)
	return s != nil && s.manual
}

// Post queues fn on pump. It runs on the next tick.
func (e *Engine) Post(p engine.Ref, fn func()) {
	v, ok := e.table.GetTyped(p, resource.KindPump)
	if !ok {
		return
	}
	pp := v.(*pump)
	e.mu.Lock()
	pp.queue = append(pp.queue, fn)
	e.mu.Unlock()
}

// Pumps

func (e *Engine) NewPump() (engine.Ref, error) {
	ref := e.table.Insert(resource.KindPump, &pump{exit: make(chan struct{}, 1)})
	e.record("NewPump", ref)
	return ref, nil
}

func (e *Engine) PumpTick(p engine.Ref) error {
	e.record("PumpTick", p)
	v, ok := e.table.GetTyped(p, resource.KindPump)
	if !ok {
		return fmt.Errorf("enginetest: invalid pump %d", p)
	}
	pp := v.(*pump)
	e.mu.Lock()
	queue := pp.queue
	pp.queue = nil
	e.mu.Unlock()
	for _, fn := range queue {
		fn()
	}
	return nil
}

func (e *Engine) PumpStartEventLoop(ctx context.Context, p engine.Ref) error {
	e.record("PumpStartEventLoop", p)
	v, ok := e.table.GetTyped(p, resource.KindPump)
	if !ok {
		return fmt.Errorf("enginetest: invalid pump %d", p)
	}
	pp := v.(*pump)
	for {
		if err := e.PumpTick(p); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pp.exit:
			return nil
		case <-time.After(time.Millisecond):
		}
	}
}

func (e *Engine) PumpPostEventLoopExit(p engine.Ref) error {
	e.record("PumpPostEventLoopExit", p)
	v, ok := e.table.GetTyped(p, resource.KindPump)
	if !ok {
		return fmt.Errorf("enginetest: invalid pump %d", p)
	}
	select {
	case v.(*pump).exit <- struct{}{}:
	default:
	}
	return nil
}

func (e *Engine) PumpClose(p engine.Ref) error {
	e.record("PumpClose", p)
	e.table.Remove(p)
	return nil
}

// Webservers

func (e *Engine) NewWebserver(p engine.Ref, cb engine.Callback) (engine.Ref, error) {
	if !e.Valid(p) {
		return 0, fmt.Errorf("enginetest: invalid pump %d", p)
	}
	ref := e.table.Insert(resource.KindWebserver, &webserver{pump: p, cb: cb})
	e.record("NewWebserver", ref, p)
	return ref, nil
}

func (e *Engine) WebserverHost(ws engine.Ref, port int) {
	e.record("WebserverHost", ws, port)
	if s := e.webserver(ws); s != nil {
		s.port, s.hosting = port, true
	}
}

func (e *Engine) WebserverHostFilter(ws, f engine.Ref) {
	e.record("WebserverHostFilter", ws, f)
	if s := e.webserver(ws); s != nil {
		if ff := e.filter(f); ff != nil {
			s.port = ff.localPort
		}
		s.hosting = true
	}
}

func (e *Engine) WebserverHostSecure(ws engine.Ref, port int) {
	e.record("WebserverHostSecure", ws, port)
	if s := e.webserver(ws); s != nil && s.certLoaded {
		s.securePort, s.hostingSecure = port, true
	}
}

func (e *Engine) WebserverHostSecureFilter(ws, f engine.Ref) {
	e.record("WebserverHostSecureFilter", ws, f)
	if s := e.webserver(ws); s != nil && s.certLoaded {
		if ff := e.filter(f); ff != nil {
			s.securePort = ff.localPort
		}
		s.hostingSecure = true
	}
}

func (e *Engine) WebserverUnhost(ws engine.Ref) {
	e.record("WebserverUnhost", ws)
	if s := e.webserver(ws); s != nil {
		s.hosting, s.port = false, 0
	}
}

func (e *Engine) WebserverUnhostSecure(ws engine.Ref) {
	e.record("WebserverUnhostSecure", ws)
	if s := e.webserver(ws); s != nil {
		s.hostingSecure, s.securePort = false, 0
	}
}

func (e *Engine) WebserverHosting(ws engine.Ref) bool {
	s := e.webserver(ws)
	return s != nil && s.hosting
}

func (e *Engine) WebserverHostingSecure(ws engine.Ref) bool {
	s := e.webserver(ws)
	return s != nil && s.hostingSecure
}

func (e *Engine) WebserverPort(ws engine.Ref) int {
	if s := e.webserver(ws); s != nil {
		return s.port
	}
	return 0
}

func (e *Engine) WebserverPortSecure(ws engine.Ref) int {
	if s := e.webserver(ws); s != nil {
		return s.securePort
	}
	return 0
}

func (e *Engine) WebserverLoadCertificateFile(ws engine.Ref, file, passphrase string) bool {
	e.record("WebserverLoadCertificateFile", ws, file, passphrase)
	s := e.webserver(ws)
	if s == nil || file == "" {
		return false
	}
	s.certLoaded = true
	return true
}

func (e *Engine) WebserverLoadSystemCertificate(ws engine.Ref, store, commonName, location string) bool {
	e.record("WebserverLoadSystemCertificate", ws, store, commonName, location)
	return false
}

func (e *Engine) WebserverCertificateLoaded(ws engine.Ref) bool {
	s := e.webserver(ws)
	return s != nil && s.certLoaded
}

func (e *Engine) WebserverBytesSent(ws engine.Ref) int64 {
	var n int64
	e.table.Each(func(_ resource.Handle, k resource.Kind, v any) bool {
		if r, ok := v.(*Request); ok && k == resource.KindRequest && r.Webserver == ws {
			n += int64(r.Output.Len())
		}
		return true
	})
	return n
}

func (e *Engine) WebserverBytesReceived(ws engine.Ref) int64 {
	var n int64
	e.table.Each(func(_ resource.Handle, k resource.Kind, v any) bool {
		if r, ok := v.(*Request); ok && k == resource.KindRequest && r.Webserver == ws {
			n += int64(len(r.Body))
		}
		return true
	})
	return n
}

func (e *Engine) WebserverCloseSession(ws engine.Ref, id string) {
	e.record("WebserverCloseSession", ws, id)
}

func (e *Engine) WebserverEnableManualFinish(ws engine.Ref) {
	e.record("WebserverEnableManualFinish", ws)
	if s := e.webserver(ws); s != nil {
		s.manual = true
	}
}

func (e *Engine) WebserverClose(ws engine.Ref) error {
	e.record("WebserverClose", ws)
	e.table.Remove(ws)
	return nil
}

// Requests

func (e *Engine) RequestWrite(req engine.Ref, text string) {
	e.record("RequestWrite", req, text)
	if r := e.Request(req); r != nil {
		r.Output.WriteString(text)
	}
}

func (e *Engine) RequestSendFile(req engine.Ref, filename string) {
	e.record("RequestSendFile", req, filename)
}

func (e *Engine) RequestReset(req engine.Ref) {
	e.record("RequestReset", req)
	if r := e.Request(req); r != nil {
		r.Output.Reset()
		r.Status, r.StatusText = 200, ""
	}
}

func (e *Engine) RequestFinish(req engine.Ref) {
	e.record("RequestFinish", req)
	if r := e.Request(req); r != nil {
		r.Finished = true
	}
}

func (e *Engine) RequestDisconnect(req engine.Ref) {
	e.record("RequestDisconnect", req)
	if r := e.Request(req); r != nil {
		r.Disconnected = true
	}
}

func (e *Engine) RequestSetRedirect(req engine.Ref, url string) {
	e.record("RequestSetRedirect", req, url)
	if r := e.Request(req); r != nil {
		r.Status = 303
		r.Headers["Location"] = url
	}
}

func (e *Engine) RequestSetStatus(req engine.Ref, code int, message string) {
	e.record("RequestSetStatus", req, code, message)
	if r := e.Request(req); r != nil {
		r.Status, r.StatusText = code, message
	}
}

func (e *Engine) RequestSetMimeType(req engine.Ref, mimeType, charset string) {
	e.record("RequestSetMimeType", req, mimeType, charset)
	if r := e.Request(req); r != nil {
		r.MimeType = mimeType
		if charset != "" {
			r.MimeType += "; charset=" + charset
		}
	}
}

func (e *Engine) RequestGuessMimeType(req engine.Ref, filename string) {
	e.record("RequestGuessMimeType", req, filename)
	if r := e.Request(req); r != nil {
		r.MimeType = e.GuessMimeType(filename)
	}
}

func (e *Engine) RequestSetUnmodified(req engine.Ref) {
	e.record("RequestSetUnmodified", req)
	if r := e.Request(req); r != nil {
		r.Status = 304
	}
}

func (e *Engine) RequestDisableCache(req engine.Ref) {
	e.record("RequestDisableCache", req)
	if r := e.Request(req); r != nil {
		r.Headers["Cache-Control"] = "no-cache"
	}
}

func (e *Engine) RequestAddress(req engine.Ref) engine.Ref {
	if e.Request(req) == nil {
		return 0
	}
	return e.table.Insert(resource.KindAddress, &address{host: "127.0.0.1", ready: true})
}

func (e *Engine) RequestSecure(req engine.Ref) bool {
	r := e.Request(req)
	return r != nil && r.Secure
}

func (e *Engine) RequestURL(req engine.Ref) string {
	if r := e.Request(req); r != nil {
		return r.URL
	}
	return ""
}

func (e *Engine) RequestHostname(req engine.Ref) string {
	if r := e.Request(req); r != nil {
		return r.Hostname
	}
	return ""
}

func (e *Engine) RequestMethod(req engine.Ref) string {
	if r := e.Request(req); r != nil {
		return r.Method
	}
	return ""
}

func (e *Engine) RequestBody(req engine.Ref) string {
	if r := e.Request(req); r != nil {
		return r.Body
	}
	return ""
}

func (e *Engine) RequestLastModified(req engine.Ref) time.Time {
	if r := e.Request(req); r != nil {
		return r.LastModified
	}
	return time.Time{}
}

func (e *Engine) RequestSetLastModified(req engine.Ref, t time.Time) {
	e.record("RequestSetLastModified", req, t)
	if r := e.Request(req); r != nil {
		r.LastModified = t
	}
}

func (e *Engine) RequestHeader(req engine.Ref, name string) string {
	if r := e.Request(req); r != nil {
		return r.Headers[name]
	}
	return ""
}

func (e *Engine) RequestSetHeader(req engine.Ref, name, value string) {
	e.record("RequestSetHeader", req, name, value)
	if r := e.Request(req); r != nil {
		r.Headers[name] = value
	}
}

func (e *Engine) RequestCookie(req engine.Ref, name string) string {
	if r := e.Request(req); r != nil {
		return r.Cookies[name]
	}
	return ""
}

func (e *Engine) RequestSetCookie(req engine.Ref, name, value string) {
	e.record("RequestSetCookie", req, name, value)
	if r := e.Request(req); r != nil {
		r.Cookies[name] = value
	}
}

func (e *Engine) RequestSessionID(req engine.Ref) string {
	if r := e.Request(req); r != nil && len(r.Session) > 0 {
		return fmt.Sprintf("%032x", uint32(req))
	}
	return ""
}

func (e *Engine) RequestSessionRead(req engine.Ref, key string) string {
	if r := e.Request(req); r != nil {
		return r.Session[key]
	}
	return ""
}

func (e *Engine) RequestSessionWrite(req engine.Ref, key, value string) {
	e.record("RequestSessionWrite", req, key, value)
	if r := e.Request(req); r != nil {
		r.Session[key] = value
	}
}

func (e *Engine) RequestSessionClose(req engine.Ref) {
	e.record("RequestSessionClose", req)
	if r := e.Request(req); r != nil {
		r.Session = map[string]string{}
	}
}

func (e *Engine) RequestGET(req engine.Ref, name string) string {
	if r := e.Request(req); r != nil {
		return r.Query[name]
	}
	return ""
}

func (e *Engine) RequestPOST(req engine.Ref, name string) string {
	if r := e.Request(req); r != nil {
		return r.Form[name]
	}
	return ""
}

// Addresses

func (e *Engine) NewAddress() engine.Ref {
	ref := e.table.Insert(resource.KindAddress, &address{ready: true})
	e.record("NewAddress", ref)
	return ref
}

func (e *Engine) NewAddressName(name string, blocking bool) engine.Ref {
	a := &address{host: name, ready: true}
	if host, port, err := net.SplitHostPort(name); err == nil {
		a.host = host
		a.port, _ = strconv.Atoi(port)
	}
	ref := e.table.Insert(resource.KindAddress, a)
	e.record("NewAddressName", ref, name, blocking)
	return ref
}

func (e *Engine) AddressCopy(addr engine.Ref) engine.Ref {
	a := e.address(addr)
	if a == nil {
		return 0
	}
	cp := *a
	ref := e.table.Insert(resource.KindAddress, &cp)
	e.record("AddressCopy", ref, addr)
	return ref
}

func (e *Engine) AddressPort(addr engine.Ref) int {
	if a := e.address(addr); a != nil {
		return a.port
	}
	return 0
}

func (e *Engine) AddressSetPort(addr engine.Ref, port int) {
	e.record("AddressSetPort", addr, port)
	if a := e.address(addr); a != nil {
		a.port = port
	}
}

func (e *Engine) AddressReady(addr engine.Ref) bool {
	a := e.address(addr)
	return a != nil && a.ready
}

func (e *Engine) AddressString(addr engine.Ref) string {
	a := e.address(addr)
	if a == nil {
		return ""
	}
	if a.port == 0 {
		return a.host
	}
	return net.JoinHostPort(a.host, strconv.Itoa(a.port))
}

func (e *Engine) AddressClose(addr engine.Ref) {
	e.record("AddressClose", addr)
	e.table.Remove(addr)
}

// Filters

func (e *Engine) NewFilter() engine.Ref {
	ref := e.table.Insert(resource.KindFilter, &filter{})
	e.record("NewFilter", ref)
	return ref
}

func (e *Engine) FilterLocal(f engine.Ref) string {
	if ff := e.filter(f); ff != nil {
		return ff.local
	}
	return ""
}

func (e *Engine) FilterSetLocal(f engine.Ref, name string) {
	e.record("FilterSetLocal", f, name)
	if ff := e.filter(f); ff != nil {
		ff.local = name
	}
}

func (e *Engine) FilterLocalPort(f engine.Ref) int {
	if ff := e.filter(f); ff != nil {
		return ff.localPort
	}
	return 0
}

func (e *Engine) FilterSetLocalPort(f engine.Ref, port int) {
	e.record("FilterSetLocalPort", f, port)
	if ff := e.filter(f); ff != nil {
		ff.localPort = port
	}
}

func (e *Engine) FilterRemote(f engine.Ref) engine.Ref {
	ff := e.filter(f)
	if ff == nil || ff.remote == "" {
		return 0
	}
	return e.table.Insert(resource.KindAddress, &address{host: ff.remote, ready: true})
}

func (e *Engine) FilterSetRemote(f engine.Ref, name string) {
	e.record("FilterSetRemote", f, name)
	if ff := e.filter(f); ff != nil {
		ff.remote = name
	}
}

func (e *Engine) FilterSetRemoteAddress(f, addr engine.Ref) {
	e.record("FilterSetRemoteAddress", f, addr)
	if ff := e.filter(f); ff != nil {
		ff.remote = e.AddressString(addr)
	}
}

func (e *Engine) FilterReuse(f engine.Ref) bool {
	ff := e.filter(f)
	return ff != nil && ff.reuse
}

func (e *Engine) FilterSetReuse(f engine.Ref, enabled bool) {
	e.record("FilterSetReuse", f, enabled)
	if ff := e.filter(f); ff != nil {
		ff.reuse = enabled
	}
}

func (e *Engine) FilterClose(f engine.Ref) {
	e.record("FilterClose", f)
	e.table.Remove(f)
}

// Errors

func (e *Engine) NewError() engine.Ref {
	ref := e.table.Insert(resource.KindError, &engineError{})
	e.record("NewError", ref)
	return ref
}

func (e *Engine) ErrorClone(ref engine.Ref) engine.Ref {
	ee := e.engineError(ref)
	if ee == nil {
		return 0
	}
	clone := e.table.Insert(resource.KindError, &engineError{text: ee.text})
	e.record("ErrorClone", clone, ref)
	return clone
}

// ErrorAdd prepends text, separating it from earlier text with " - ".
func (e *Engine) ErrorAdd(ref engine.Ref, text string) {
	e.record("ErrorAdd", ref, text)
	if ee := e.engineError(ref); ee != nil {
		if ee.text == "" {
			ee.text = text
		} else {
			ee.text = text + " - " + ee.text
		}
	}
}

func (e *Engine) ErrorString(ref engine.Ref) string {
	if ee := e.engineError(ref); ee != nil {
		return ee.text
	}
	return ""
}

func (e *Engine) ErrorClose(ref engine.Ref) {
	e.record("ErrorClose", ref)
	e.table.Remove(ref)
}
