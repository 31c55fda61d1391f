package netengine

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

type request struct {
	ws        *webserver
	r         *http.Request
	header    http.Header
	form      url.Values
	done      chan struct{}
	url       string
	sessionID string
	status    int
	cookies   []*http.Cookie
	body      []byte
	out       bytes.Buffer
	ref       engine.Ref
	addr      engine.Ref
	mu        sync.Mutex
	secure    bool
	delivered bool
	finished  bool
	dropped   bool
	gone      bool
	released  bool
}

// cleanURL strips the leading slash and rejects directory traversal.
func cleanURL(p string) (string, bool) {
	p = strings.ReplaceAll(strings.TrimPrefix(p, "/"), "\\", "/")
	if strings.Contains(p, "..") {
		return "", false
	}
	return p, true
}

func newRequest(ws *webserver, w http.ResponseWriter, r *http.Request, secure bool) (*request, error) {
	u, ok := cleanURL(r.URL.Path)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseEngine, "url escapes root: "+r.URL.Path)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		return nil, err
	}
	req := &request{
		ws:     ws,
		r:      r,
		url:    u,
		body:   body,
		secure: secure,
		done:   make(chan struct{}),
	}
	req.resetLocked()
	return req, nil
}

// resetLocked restores the default response.
func (req *request) resetLocked() {
	req.status = http.StatusOK
	req.out.Reset()
	req.cookies = nil
	req.header = http.Header{}
	req.header.Set("Server", req.ws.e.Version())
	req.header.Set("Content-Type", "text/html; charset=UTF-8")
	if req.secure {
		req.header.Set("Cache-Control", "public")
	}
}

// update runs fn while the request still accepts changes.
func (req *request) update(fn func()) {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.finished || req.dropped || req.gone {
		return
	}
	fn()
}

func (req *request) finish() {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.finished || req.dropped || req.gone {
		return
	}
	req.finished = true
	close(req.done)
}

func (req *request) drop() {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.finished || req.dropped || req.gone {
		return
	}
	req.dropped = true
	close(req.done)
}

// abandon records that the client went away. It reports false if the
// request had already completed.
func (req *request) abandon() bool {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.finished || req.dropped || req.gone {
		return false
	}
	req.gone = true
	return true
}

func (req *request) flush(w http.ResponseWriter) {
	req.mu.Lock()
	defer req.mu.Unlock()

	h := w.Header()
	for k, v := range req.header {
		h[k] = v
	}
	for _, c := range req.cookies {
		http.SetCookie(w, c)
	}
	if req.status == http.StatusNotModified {
		w.WriteHeader(req.status)
		return
	}
	h.Set("Content-Length", strconv.Itoa(req.out.Len()))
	w.WriteHeader(req.status)
	if req.r.Method != http.MethodHead {
		_, _ = w.Write(req.out.Bytes())
	}
}

func (req *request) setCookieLocked(c *http.Cookie) {
	c.HttpOnly = true
	c.Secure = req.secure
	if c.Path == "" {
		c.Path = "/"
	}
	for i, existing := range req.cookies {
		if existing.Name == c.Name {
			req.cookies[i] = c
			return
		}
	}
	req.cookies = append(req.cookies, c)
}

// session returns the current session id, creating one if create is set.
func (req *request) session(create bool) string {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.sessionID != "" {
		return req.sessionID
	}
	if c, err := req.r.Cookie(SessionCookie); err == nil && req.ws.e.sessions.Exists(c.Value) {
		req.sessionID = c.Value
		return req.sessionID
	}
	if !create || req.finished || req.dropped || req.gone {
		return ""
	}
	req.sessionID = newSessionID()
	req.setCookieLocked(&http.Cookie{Name: SessionCookie, Value: req.sessionID})
	return req.sessionID
}

func (ws *webserver) handler(secure bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event string
		switch r.Method {
		case http.MethodGet:
			event = engine.EventGet
		case http.MethodPost:
			event = engine.EventPost
		case http.MethodHead:
			event = engine.EventHead
		default:
			w.Header().Set("Server", ws.e.Version())
			http.Error(w, "Not Implemented", http.StatusNotImplemented)
			return
		}

		req, err := newRequest(ws, w, r, secure)
		if err != nil {
			ws.log.Debug("rejected request", zap.String("url", r.URL.Path), zap.Error(err))
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		req.ref = ws.e.requests.Insert(req)
		if req.ref == 0 {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		defer ws.e.requests.Remove(req.ref)

		first := true
		if ci, ok := r.Context().Value(connKey{}).(*connInfo); ok {
			first = ci.seen.CompareAndSwap(false, true)
		}

		if !ws.pump.post(func() { ws.deliver(req, event, first) }) {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}

		select {
		case <-req.done:
		case <-r.Context().Done():
			if req.abandon() {
				ws.awaitDisconnect(req)
				return
			}
			<-req.done
		case <-ws.pump.done:
			if req.abandon() {
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
			<-req.done
		}

		if req.dropped {
			ws.awaitDisconnect(req)
			panic(http.ErrAbortHandler)
		}
		req.flush(w)
	})
}

// awaitDisconnect raises disconnect on the pump and waits for it so the
// request handle stays valid during dispatch. It gives up once the pump is
// closed.
func (ws *webserver) awaitDisconnect(req *request) {
	dispatched := make(chan struct{})
	if !ws.pump.post(func() {
		defer close(dispatched)
		req.mu.Lock()
		delivered := req.delivered
		req.mu.Unlock()
		if delivered {
			ws.cb(engine.EventDisconnect, req.ref)
		}
	}) {
		return
	}
	select {
	case <-dispatched:
	case <-ws.pump.done:
	}
}

// deliver runs on the pump.
func (ws *webserver) deliver(req *request, event string, first bool) {
	req.mu.Lock()
	if req.gone {
		req.mu.Unlock()
		return
	}
	req.delivered = true
	req.mu.Unlock()

	if first {
		ws.cb(engine.EventConnect, req.ref)
	}
	ws.cb(event, req.ref)
	if !ws.manual.Load() {
		req.finish()
	}
}

func (e *Engine) request(ref engine.Ref) *request {
	req, _ := e.requests.Get(ref)
	return req
}

func (e *Engine) RequestWrite(ref engine.Ref, text string) {
	if req := e.request(ref); req != nil {
		req.update(func() { req.out.WriteString(text) })
	}
}

func (e *Engine) RequestSendFile(ref engine.Ref, filename string) {
	req := e.request(ref)
	if req == nil {
		return
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		e.log.Debug("send file failed", zap.String("file", filename), zap.Error(err))
		return
	}
	req.update(func() { req.out.Write(data) })
}

func (e *Engine) RequestReset(ref engine.Ref) {
	if req := e.request(ref); req != nil {
		req.update(req.resetLocked)
	}
}

func (e *Engine) RequestFinish(ref engine.Ref) {
	if req := e.request(ref); req != nil {
		req.finish()
	}
}

func (e *Engine) RequestDisconnect(ref engine.Ref) {
	if req := e.request(ref); req != nil {
		req.drop()
	}
}

func (e *Engine) RequestSetRedirect(ref engine.Ref, url string) {
	if req := e.request(ref); req != nil {
		req.update(func() {
			req.status = http.StatusSeeOther
			req.header.Set("Location", url)
		})
	}
}

// RequestSetStatus sets the status code. net/http always sends the standard
// reason phrase, so message is not transmitted.
func (e *Engine) RequestSetStatus(ref engine.Ref, code int, message string) {
	if req := e.request(ref); req != nil {
		req.update(func() { req.status = code })
	}
}

func (e *Engine) RequestSetMimeType(ref engine.Ref, mimeType, charset string) {
	if req := e.request(ref); req != nil {
		if charset != "" {
			mimeType += "; charset=" + charset
		}
		req.update(func() { req.header.Set("Content-Type", mimeType) })
	}
}

func (e *Engine) RequestGuessMimeType(ref engine.Ref, filename string) {
	e.RequestSetMimeType(ref, e.GuessMimeType(filename), "")
}

func (e *Engine) RequestSetUnmodified(ref engine.Ref) {
	if req := e.request(ref); req != nil {
		req.update(func() { req.status = http.StatusNotModified })
	}
}

func (e *Engine) RequestDisableCache(ref engine.Ref) {
	if req := e.request(ref); req != nil {
		req.update(func() { req.header.Set("Cache-Control", "no-cache") })
	}
}

// RequestAddress returns the client address. The request owns it: repeated
// calls return the same handle, which is removed with the request.
func (e *Engine) RequestAddress(ref engine.Ref) engine.Ref {
	req := e.request(ref)
	if req == nil {
		return 0
	}
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.released {
		return 0
	}
	if _, ok := e.addresses.Get(req.addr); ok {
		return req.addr
	}
	host, port := parseAddress(req.r.RemoteAddr)
	req.addr = e.addresses.Insert(newAddress(host, port))
	return req.addr
}

// releaseAddress detaches the owned address once the request is removed.
func (req *request) releaseAddress() engine.Ref {
	req.mu.Lock()
	defer req.mu.Unlock()
	req.released = true
	addr := req.addr
	req.addr = 0
	return addr
}

func (e *Engine) RequestSecure(ref engine.Ref) bool {
	req := e.request(ref)
	return req != nil && req.secure
}

func (e *Engine) RequestURL(ref engine.Ref) string {
	if req := e.request(ref); req != nil {
		return req.url
	}
	return ""
}

func (e *Engine) RequestHostname(ref engine.Ref) string {
	req := e.request(ref)
	if req == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(req.r.Host); err == nil {
		return host
	}
	return req.r.Host
}

func (e *Engine) RequestMethod(ref engine.Ref) string {
	if req := e.request(ref); req != nil {
		return req.r.Method
	}
	return ""
}

func (e *Engine) RequestBody(ref engine.Ref) string {
	if req := e.request(ref); req != nil {
		return string(req.body)
	}
	return ""
}

// RequestLastModified parses If-Modified-Since.
func (e *Engine) RequestLastModified(ref engine.Ref) time.Time {
	req := e.request(ref)
	if req == nil {
		return time.Time{}
	}
	t, err := http.ParseTime(req.r.Header.Get("If-Modified-Since"))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (e *Engine) RequestSetLastModified(ref engine.Ref, t time.Time) {
	if req := e.request(ref); req != nil {
		req.update(func() { req.header.Set("Last-Modified", t.UTC().Format(http.TimeFormat)) })
	}
}

func (e *Engine) RequestHeader(ref engine.Ref, name string) string {
	if req := e.request(ref); req != nil {
		if strings.EqualFold(name, "host") {
			return req.r.Host
		}
		return req.r.Header.Get(name)
	}
	return ""
}

func (e *Engine) RequestSetHeader(ref engine.Ref, name, value string) {
	if req := e.request(ref); req != nil {
		req.update(func() { req.header.Set(name, value) })
	}
}

func (e *Engine) RequestCookie(ref engine.Ref, name string) string {
	req := e.request(ref)
	if req == nil {
		return ""
	}
	c, err := req.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (e *Engine) RequestSetCookie(ref engine.Ref, name, value string) {
	if req := e.request(ref); req != nil {
		req.update(func() { req.setCookieLocked(&http.Cookie{Name: name, Value: value}) })
	}
}

func (e *Engine) RequestSessionID(ref engine.Ref) string {
	if req := e.request(ref); req != nil {
		return req.session(false)
	}
	return ""
}

func (e *Engine) RequestSessionRead(ref engine.Ref, key string) string {
	req := e.request(ref)
	if req == nil {
		return ""
	}
	id := req.session(false)
	if id == "" {
		return ""
	}
	v, _ := e.sessions.Get(id, key)
	return v
}

func (e *Engine) RequestSessionWrite(ref engine.Ref, key, value string) {
	req := e.request(ref)
	if req == nil {
		return
	}
	id := req.session(true)
	if id == "" {
		return
	}
	if err := e.sessions.Set(id, key, value); err != nil {
		e.log.Warn("session write failed", zap.String("session", id), zap.Error(err))
	}
}

func (e *Engine) RequestSessionClose(ref engine.Ref) {
	req := e.request(ref)
	if req == nil {
		return
	}
	id := req.session(false)
	if id == "" {
		return
	}
	if err := e.sessions.Delete(id); err != nil {
		e.log.Warn("session close failed", zap.String("session", id), zap.Error(err))
	}
	req.update(func() {
		req.sessionID = ""
		req.setCookieLocked(&http.Cookie{Name: SessionCookie, Value: "", MaxAge: -1})
	})
}

func (e *Engine) RequestGET(ref engine.Ref, name string) string {
	if req := e.request(ref); req != nil {
		return req.r.URL.Query().Get(name)
	}
	return ""
}

// RequestPOST reads url-encoded form fields from the body.
func (e *Engine) RequestPOST(ref engine.Ref, name string) string {
	req := e.request(ref)
	if req == nil {
		return ""
	}
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.form == nil {
		req.form, _ = url.ParseQuery(string(req.body))
		if req.form == nil {
			req.form = url.Values{}
		}
	}
	return req.form.Get(name)
}
