package netengine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

type server struct {
	srv  *http.Server
	ln   net.Listener
	port int
}

type webserver struct {
	e         *Engine
	pump      *pump
	cb        engine.Callback
	plain     *server
	secure    *server
	tlsConfig *tls.Config
	log       *zap.Logger
	ref       engine.Ref
	sent      atomic.Int64
	received  atomic.Int64
	mu        sync.Mutex
	manual    atomic.Bool
}

type connKey struct{}

// connInfo tracks whether a connection already raised connect.
type connInfo struct {
	seen atomic.Bool
}

func (e *Engine) webserver(ref engine.Ref) *webserver {
	ws, _ := e.webservers.Get(ref)
	return ws
}

func (e *Engine) NewWebserver(pumpRef engine.Ref, cb engine.Callback) (engine.Ref, error) {
	p, err := e.pump(pumpRef)
	if err != nil {
		return 0, err
	}
	if cb == nil {
		return 0, errors.InvalidParameters(errors.PhaseEngine, "webserver")
	}
	ws := &webserver{e: e, pump: p, cb: cb, log: e.log}
	ws.ref = e.webservers.Insert(ws)
	if ws.ref == 0 {
		return 0, errors.Unsupported(errors.PhaseEngine, "engine closed")
	}
	return ws.ref, nil
}

// raise delivers an error event on the pump. When no handler returns a
// truthy value the error is logged instead.
func (ws *webserver) raise(cause error, msg string) {
	ev := &errorValue{}
	if cause != nil {
		ev.add(cause.Error())
	}
	ev.add(msg)
	ref := ws.e.errs.Insert(ev)
	text := ev.String()

	posted := ws.pump.post(func() {
		defer ws.e.errs.Remove(ref)
		if !truthy(ws.cb(engine.EventError, ref)) {
			ws.log.Error("webserver error", zap.String("error", text))
		}
	})
	if !posted {
		ws.e.errs.Remove(ref)
		ws.log.Error("webserver error", zap.String("error", text))
	}
}

func (ws *webserver) host(secure bool, addr string, f *filter) {
	ws.unhost(secure)

	ws.mu.Lock()
	tlsConfig := ws.tlsConfig
	ws.mu.Unlock()
	if secure && tlsConfig == nil {
		ws.raise(nil, "Error hosting securely: no certificate loaded")
		return
	}

	lc := net.ListenConfig{}
	if f != nil && f.reuse {
		lc.Control = reuseControl
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		ws.raise(err, "Error hosting webserver")
		return
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln = &countingListener{Listener: ln, sent: &ws.sent, received: &ws.received, filter: f}

	srv := &http.Server{
		ErrorLog:          zap.NewStdLog(ws.log),
		ReadHeaderTimeout: 30 * time.Second,
		ConnContext: func(ctx context.Context, _ net.Conn) context.Context {
			return context.WithValue(ctx, connKey{}, &connInfo{})
		},
	}
	if secure {
		srv.Handler = ws.handler(true)
		srv.TLSConfig = tlsConfig.Clone()
		if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
			ws.log.Warn("http2 unavailable", zap.Error(err))
		}
		ln = tls.NewListener(ln, srv.TLSConfig)
	} else {
		srv.Handler = h2c.NewHandler(ws.handler(false), &http2.Server{})
	}

	s := &server{srv: srv, ln: ln, port: port}
	ws.mu.Lock()
	if secure {
		ws.secure = s
	} else {
		ws.plain = s
	}
	ws.mu.Unlock()

	ws.log.Info("webserver hosting", zap.Int("port", port), zap.Bool("secure", secure))
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			ws.raise(err, "Error serving")
		}
	}()
}

func (ws *webserver) unhost(secure bool) {
	ws.mu.Lock()
	var s *server
	if secure {
		s, ws.secure = ws.secure, nil
	} else {
		s, ws.plain = ws.plain, nil
	}
	ws.mu.Unlock()

	if s != nil {
		_ = s.srv.Close()
		ws.log.Info("webserver unhosted", zap.Int("port", s.port), zap.Bool("secure", secure))
	}
}

func (ws *webserver) server(secure bool) *server {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if secure {
		return ws.secure
	}
	return ws.plain
}

// Drop unhosts when the webserver handle is removed.
func (ws *webserver) Drop() {
	ws.unhost(false)
	ws.unhost(true)
}

func (e *Engine) WebserverHost(ref engine.Ref, port int) {
	if ws := e.webserver(ref); ws != nil {
		ws.host(false, fmt.Sprintf(":%d", port), nil)
	}
}

func (e *Engine) WebserverHostFilter(ref, filterRef engine.Ref) {
	ws := e.webserver(ref)
	f, ok := e.filters.Get(filterRef)
	if ws == nil || !ok {
		return
	}
	ws.host(false, f.listenAddr(), f)
}

func (e *Engine) WebserverHostSecure(ref engine.Ref, port int) {
	if ws := e.webserver(ref); ws != nil {
		ws.host(true, fmt.Sprintf(":%d", port), nil)
	}
}

func (e *Engine) WebserverHostSecureFilter(ref, filterRef engine.Ref) {
	ws := e.webserver(ref)
	f, ok := e.filters.Get(filterRef)
	if ws == nil || !ok {
		return
	}
	ws.host(true, f.listenAddr(), f)
}

func (e *Engine) WebserverUnhost(ref engine.Ref) {
	if ws := e.webserver(ref); ws != nil {
		ws.unhost(false)
	}
}

func (e *Engine) WebserverUnhostSecure(ref engine.Ref) {
	if ws := e.webserver(ref); ws != nil {
		ws.unhost(true)
	}
}

func (e *Engine) WebserverHosting(ref engine.Ref) bool {
	ws := e.webserver(ref)
	return ws != nil && ws.server(false) != nil
}

func (e *Engine) WebserverHostingSecure(ref engine.Ref) bool {
	ws := e.webserver(ref)
	return ws != nil && ws.server(true) != nil
}

func (e *Engine) WebserverPort(ref engine.Ref) int {
	if ws := e.webserver(ref); ws != nil {
		if s := ws.server(false); s != nil {
			return s.port
		}
	}
	return 0
}

func (e *Engine) WebserverPortSecure(ref engine.Ref) int {
	if ws := e.webserver(ref); ws != nil {
		if s := ws.server(true); s != nil {
			return s.port
		}
	}
	return 0
}

func (e *Engine) WebserverLoadCertificateFile(ref engine.Ref, file, passphrase string) bool {
	ws := e.webserver(ref)
	if ws == nil {
		return false
	}
	cfg, err := loadCertificate(file, passphrase)
	if err != nil {
		ws.raise(err, "Error loading certificate")
		return false
	}
	ws.mu.Lock()
	ws.tlsConfig = cfg
	ws.mu.Unlock()
	ws.log.Debug("certificate loaded", zap.String("file", file))
	return true
}

// WebserverLoadSystemCertificate always fails: there is no portable system
// certificate store.
func (e *Engine) WebserverLoadSystemCertificate(ref engine.Ref, store, commonName, location string) bool {
	if ws := e.webserver(ref); ws != nil {
		ws.raise(errors.Unsupported(errors.PhaseHost, "system certificate stores"),
			fmt.Sprintf("Error loading certificate %q from %s/%s", commonName, location, store))
	}
	return false
}

func (e *Engine) WebserverCertificateLoaded(ref engine.Ref) bool {
	ws := e.webserver(ref)
	if ws == nil {
		return false
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.tlsConfig != nil
}

func (e *Engine) WebserverBytesSent(ref engine.Ref) int64 {
	if ws := e.webserver(ref); ws != nil {
		return ws.sent.Load()
	}
	return 0
}

func (e *Engine) WebserverBytesReceived(ref engine.Ref) int64 {
	if ws := e.webserver(ref); ws != nil {
		return ws.received.Load()
	}
	return 0
}

func (e *Engine) WebserverCloseSession(ref engine.Ref, id string) {
	if err := e.sessions.Delete(id); err != nil {
		e.log.Warn("close session failed", zap.String("session", id), zap.Error(err))
	}
}

func (e *Engine) WebserverEnableManualFinish(ref engine.Ref) {
	if ws := e.webserver(ref); ws != nil {
		ws.manual.Store(true)
	}
}

func (e *Engine) WebserverClose(ref engine.Ref) error {
	if _, ok := e.webservers.Remove(ref); !ok {
		return errors.InvalidHandle(errors.PhaseEngine, "webserver", ref)
	}
	return nil
}
