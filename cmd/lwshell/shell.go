package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/config"
	"github.com/wippyai/lacewing/engine/netengine"
	"github.com/wippyai/lacewing/errors"
	"github.com/wippyai/lacewing/guest"
	"github.com/wippyai/lacewing/js"
)

// shell owns the goja runtime. Everything touching vm runs on the pump
// goroutine once the event loop started.
type shell struct {
	ctx context.Context
	cfg *config.Config
	eng *netengine.Engine
	log *zap.Logger
	vm  *goja.Runtime
	mod *js.Module

	guests  *guest.Runtime
	guestWS *binding.Webserver

	mu  sync.Mutex
	out io.Writer
}

func newShell(ctx context.Context, eng *netengine.Engine, cfg *config.Config, log *zap.Logger, out io.Writer) (*shell, error) {
	s := &shell{ctx: ctx, cfg: cfg, eng: eng, log: log, vm: goja.New(), out: out}

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{s}))
	registry.Enable(s.vm)
	console.Enable(s.vm)

	mod, err := js.InstallWithConfig(s.vm, eng, &js.Config{
		GlobalPump: true,
		Reporter:   binding.ReporterFunc(s.report),
		Logger:     log.Named("js"),
		Context:    ctx,
	})
	if err != nil {
		return nil, err
	}
	mod.Register(registry)
	s.mod = mod

	if err := s.vm.Set("print", s.print); err != nil {
		return nil, err
	}
	if err := s.vm.Set("load", s.load); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *shell) writer() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

func (s *shell) setWriter(w io.Writer) {
	s.mu.Lock()
	s.out = w
	s.mu.Unlock()
}

func (s *shell) println(line string) {
	fmt.Fprintln(s.writer(), line)
}

// printer routes console.log and friends to the shell output.
type printer struct{ s *shell }

func (p printer) Log(msg string)   { p.s.println(msg) }
func (p printer) Warn(msg string)  { p.s.println(msg) }
func (p printer) Error(msg string) { p.s.println(msg) }

func (s *shell) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = arg.String()
	}
	s.println(strings.Join(parts, " "))
	return goja.Undefined()
}

func (s *shell) load(path string) goja.Value {
	v, err := s.runScript(path)
	if err != nil {
		var ex *goja.Exception
		if stderrors.As(err, &ex) {
			panic(ex.Value())
		}
		panic(s.vm.NewGoError(err))
	}
	return v
}

func (s *shell) report(event string, err error) {
	s.log.Warn("handler failed", zap.String("event", event), zap.Error(err))
	s.println(fmt.Sprintf("%s handler: %v", event, err))
}

func (s *shell) runScript(path string) (goja.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NotFound(errors.PhaseScript, "script", path, err)
	}
	return s.vm.RunScript(path, string(src))
}

func (s *shell) runFile(path string) error {
	if _, err := s.runScript(path); err != nil {
		if errors.HasKind(err, errors.KindNotFound) {
			return err
		}
		return errors.Wrap(errors.PhaseScript, errors.KindInvalidInput, err, path)
	}
	return nil
}

func (s *shell) eval(src string) (string, error) {
	v, err := s.vm.RunString(src)
	if err != nil {
		return "", err
	}
	return format(v), nil
}

func format(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	return v.String()
}

type evalResult struct {
	out string
	err error
}

// evalOnPump runs src on the pump goroutine and waits for the result.
func (s *shell) evalOnPump(ctx context.Context, src string) (string, error) {
	ch := make(chan evalResult, 1)
	posted := s.eng.Post(s.mod.Pump().Ref(), func() {
		out, err := s.eval(src)
		ch <- evalResult{out, err}
	})
	if !posted {
		return "", errors.Unsupported(errors.PhaseScript, "evaluation on a closed event pump")
	}
	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// loop runs the event loop until ctx is done or a script exits it.
func (s *shell) loop(ctx context.Context) error {
	err := s.mod.Pump().StartEventLoop(ctx)
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// repl evaluates one line of r at a time while the event loop runs.
func (s *shell) repl(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.loop(ctx) }()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out, err := s.evalOnPump(ctx, line)
		if err != nil {
			s.println("error: " + err.Error())
			continue
		}
		s.println(out)
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}
	return scanner.Err()
}

// loadGuest binds the handlers of a WebAssembly guest to a new webserver and
// hosts it on the configured ports.
func (s *shell) loadGuest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NotFound(errors.PhaseGuest, "guest module", path, err)
	}
	rt, err := guest.NewWithConfig(s.ctx, &guest.Config{WASI: true, Logger: s.log.Named("guest")})
	if err != nil {
		return err
	}
	s.guests = rt

	ws, err := s.mod.Library().NewWebserver(s.mod.Pump())
	if err != nil {
		return err
	}
	s.guestWS = ws
	if s.cfg.ManualFinish {
		ws.EnableManualFinish()
	}
	h, err := rt.Load(s.ctx, data, ws)
	if err != nil {
		return err
	}
	s.log.Info("guest bound", zap.String("file", path), zap.Any("events", h.Events()))
	return s.hostGuest(ws)
}

func (s *shell) hostGuest(ws *binding.Webserver) error {
	if s.cfg.Port != 0 {
		if _, err := ws.Host(s.target(s.cfg.Port)); err != nil {
			return err
		}
	}
	if s.cfg.SecurePort != 0 {
		cert := s.cfg.Certificate
		if !ws.LoadCertificateFile(cert.File, cert.Passphrase) {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path("certificate", "file").
				Detail("cannot load certificate %s", cert.File).
				Build()
		}
		if _, err := ws.HostSecure(s.target(s.cfg.SecurePort)); err != nil {
			return err
		}
	}
	return nil
}

// target returns port, or a filter listening on port when one is configured.
func (s *shell) target(port int) binding.HostTarget {
	fc := s.cfg.Filter
	if fc.IsZero() {
		return binding.Port(port)
	}
	if fc.LocalPort != 0 && port == s.cfg.Port {
		port = fc.LocalPort
	}
	f := s.mod.Library().NewFilter().SetLocalPort(port).SetReuse(fc.Reuse)
	if fc.Local != "" {
		f.SetLocal(fc.Local)
	}
	if fc.Remote != "" {
		f.SetRemote(fc.Remote)
	}
	return binding.OnFilter(f)
}

type status struct {
	guest         bool
	hosting       bool
	hostingSecure bool
	port          int
	securePort    int
	sent          int64
	received      int64
}

func (s *shell) status() status {
	ws := s.guestWS
	if ws == nil {
		return status{}
	}
	return status{
		guest:         true,
		hosting:       ws.Hosting(),
		hostingSecure: ws.HostingSecure(),
		port:          ws.Port(),
		securePort:    ws.PortSecure(),
		sent:          ws.BytesSent(),
		received:      ws.BytesReceived(),
	}
}

func (s *shell) Close() {
	if s.guests != nil {
		_ = s.guests.Close(context.Background())
	}
	if s.guestWS != nil {
		_ = s.guestWS.Close()
	}
}
