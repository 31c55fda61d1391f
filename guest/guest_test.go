package guest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/engine/enginetest"
	"github.com/wippyai/lacewing/errors"
)

// Type i of stdTypes takes i+1 parameters. Handlers use type 0.
var stdTypes = []funcType{{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1}}

func hostParams(name string) int {
	for _, f := range hostFuncs {
		if f.name == name {
			return f.params
		}
	}
	panic("unknown host function " + name)
}

// guestModule builds a guest importing the named host functions in order,
// so call(i) invokes imports[i].
func guestModule(imports []string, data []wasmData, funcs ...wasmFunc) wasmModule {
	m := wasmModule{types: stdTypes, funcs: funcs, memory: true, data: data}
	for _, name := range imports {
		m.imports = append(m.imports, wasmImport{name: name, typ: hostParams(name) - 1})
	}
	return m
}

func on(ev binding.Event, ops ...[]byte) wasmFunc {
	return wasmFunc{export: exportName(ev), body: code(ops...)}
}

type report struct {
	event string
	err   error
}

type fixture struct {
	ctx     context.Context
	eng     *enginetest.Engine
	lib     *binding.Library
	ws      *binding.Webserver
	rt      *Runtime
	reports []report
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), eng: enginetest.New()}
	f.lib = binding.NewWithConfig(f.eng, &binding.Config{
		Reporter: binding.ReporterFunc(func(event string, err error) {
			f.reports = append(f.reports, report{event, err})
		}),
	})
	pump, err := f.lib.NewEventPump()
	require.NoError(t, err)
	f.ws, err = f.lib.NewWebserver(pump)
	require.NoError(t, err)
	f.rt, err = NewWithConfig(f.ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.rt.Close(f.ctx) })
	return f
}

func (f *fixture) load(t *testing.T, m wasmModule) *Handlers {
	t.Helper()
	h, err := f.rt.Load(f.ctx, m.encode(), f.ws)
	require.NoError(t, err)
	return h
}

func (f *fixture) fire(event, method, url string) (engine.Ref, any) {
	req := f.eng.NewRequest(f.ws.Ref(), method, url)
	return req, f.eng.Fire(f.ws.Ref(), event, req)
}

func TestLoad_HelloWorld(t *testing.T) {
	f := newFixture(t, nil)
	h := f.load(t, guestModule(
		[]string{"request_write"},
		[]wasmData{{offset: 16, bytes: "hello guest"}},
		on(binding.EventGet,
			localGet(0), i32Const(16), i32Const(11), call(0), drop(),
			i32Const(0)),
	))

	assert.Equal(t, []binding.Event{binding.EventGet}, h.Events())
	assert.Equal(t, 1, f.ws.HandlerCount(binding.EventGet))
	assert.Equal(t, "guest-1", h.Name())

	req, result := f.fire("get", "GET", "")
	assert.Equal(t, int32(0), result)
	assert.Equal(t, "hello guest", f.eng.Request(req).Output.String())
	assert.Equal(t, 0, h.LiveHandles())
	assert.Empty(t, f.reports)
}

func TestLoad_Getters(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, guestModule(
		[]string{"request_url", "request_write", "request_get"},
		[]wasmData{{offset: 0, bytes: "name"}},
		// write(req, 64, url(req, 64, 64))
		on(binding.EventGet,
			localGet(0), i32Const(64),
			localGet(0), i32Const(64), i32Const(64), call(0),
			call(1), drop(),
			i32Const(0)),
		// write(req, 128, get(req, "name", 128, 32))
		on(binding.EventPost,
			localGet(0), i32Const(128),
			localGet(0), i32Const(0), i32Const(4), i32Const(128), i32Const(32), call(2),
			call(1), drop(),
			i32Const(0)),
	))

	req, _ := f.fire("get", "GET", "echo/me")
	assert.Equal(t, "echo/me", f.eng.Request(req).Output.String())

	req = f.eng.NewRequest(f.ws.Ref(), "POST", "form")
	f.eng.Request(req).Query["name"] = "lacewing"
	f.eng.Fire(f.ws.Ref(), "post", req)
	assert.Equal(t, "lacewing", f.eng.Request(req).Output.String())
}

func TestLoad_ResponseSetters(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, guestModule(
		[]string{"request_status", "request_header", "request_mime_type"},
		[]wasmData{
			{offset: 0, bytes: "Not Found"},
			{offset: 16, bytes: "X-Guest"},
			{offset: 32, bytes: "yes"},
			{offset: 48, bytes: "text/plain"},
		},
		on(binding.EventGet,
			localGet(0), i32Const(404), i32Const(0), i32Const(9), call(0), drop(),
			localGet(0), i32Const(16), i32Const(7), i32Const(32), i32Const(3), call(1), drop(),
			localGet(0), i32Const(48), i32Const(10), call(2), drop(),
			i32Const(0)),
	))

	req, _ := f.fire("get", "GET", "missing")
	state := f.eng.Request(req)
	assert.Equal(t, 404, state.Status)
	assert.Equal(t, "Not Found", state.StatusText)
	assert.Equal(t, "yes", state.Headers["X-Guest"])
	assert.Equal(t, "text/plain", state.MimeType)
}

func TestLoad_ErrorEvent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newFixture(t, &Config{Logger: zap.New(core)})
	h := f.load(t, guestModule(
		[]string{"error_string", "log"},
		nil,
		// log(128, error_string(err, 128, 64)); return 1
		on(binding.EventError,
			i32Const(128),
			localGet(0), i32Const(128), i32Const(64), call(0),
			call(1), drop(),
			i32Const(1)),
	))

	result := f.eng.Fire(f.ws.Ref(), "error", f.eng.NewEngineError("Error hosting webserver"))
	assert.Equal(t, true, result)
	assert.Equal(t, 1, logs.FilterMessage("Error hosting webserver").Len())
	assert.Equal(t, 0, h.LiveHandles())
}

func TestLoad_StatusCodes(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, guestModule(
		[]string{"request_write"},
		nil,
		on(binding.EventGet, localGet(0), i32Const(0x7fff0000), i32Const(10), call(0)),
		on(binding.EventPost, i32Const(0), i32Const(0), i32Const(0), call(0)),
	))

	_, result := f.fire("get", "GET", "")
	assert.Equal(t, int32(StatusOutOfBounds), result)

	_, result = f.fire("post", "POST", "")
	assert.Equal(t, int32(StatusInvalidHandle), result)
}

func TestLoad_ManualFinish(t *testing.T) {
	f := newFixture(t, nil)
	f.ws.EnableManualFinish()
	h := f.load(t, guestModule(
		[]string{"request_finish"},
		nil,
		on(binding.EventGet, localGet(0), call(0), drop(), localGet(0), call(0)),
		on(binding.EventPost, i32Const(0)),
	))

	req, result := f.fire("get", "GET", "")
	assert.Equal(t, int32(StatusAlreadyFinished), result)
	assert.True(t, f.eng.Request(req).Finished)
	assert.Equal(t, 0, h.LiveHandles())

	_, _ = f.fire("post", "POST", "")
	assert.Equal(t, 1, h.LiveHandles(), "unfinished request keeps its handle")
}

func TestLoad_DisconnectKeepsHandle(t *testing.T) {
	f := newFixture(t, nil)
	f.ws.EnableManualFinish()
	h := f.load(t, guestModule(
		[]string{"request_disconnect"},
		nil,
		on(binding.EventGet, localGet(0), call(0)),
		on(binding.EventDisconnect, i32Const(0)),
	))

	req, result := f.fire("get", "GET", "")
	assert.Equal(t, int32(StatusOK), result)
	assert.True(t, f.eng.Request(req).Disconnected)
	assert.Equal(t, 1, h.LiveHandles())

	f.eng.Fire(f.ws.Ref(), "disconnect", req)
	assert.Equal(t, 0, h.LiveHandles())
}

func TestLoad_DisconnectKeepsHandleInAutoFinishMode(t *testing.T) {
	f := newFixture(t, nil)
	h := f.load(t, guestModule(
		[]string{"request_disconnect"},
		nil,
		on(binding.EventGet, localGet(0), call(0)),
		on(binding.EventDisconnect, i32Const(0)),
	))

	req, result := f.fire("get", "GET", "")
	assert.Equal(t, int32(StatusOK), result)
	assert.Equal(t, 1, h.LiveHandles())

	f.eng.Fire(f.ws.Ref(), "disconnect", req)
	assert.Equal(t, 0, h.LiveHandles())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"ok", nil, StatusOK},
		{"invalid handle", errors.InvalidHandle(errors.PhaseRequest, "request", 3), StatusInvalidHandle},
		{"finished", errors.AlreadyFinished("write", 3), StatusAlreadyFinished},
		{"out of bounds", errors.OutOfBounds(errors.PhaseGuest, 65530, 10), StatusOutOfBounds},
		{"other", errors.Unsupported(errors.PhaseGuest, "x"), StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, int32(tt.want), statusOf(tt.err))
		})
	}
}

func TestLoad_TrapReported(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, guestModule(nil, nil, on(binding.EventGet, []byte{opUnreachable})))

	_, result := f.fire("get", "GET", "")
	assert.Nil(t, result)
	require.Len(t, f.reports, 1)
	assert.Equal(t, "get", f.reports[0].event)
	assert.True(t, errors.HasKind(f.reports[0].err, errors.KindHandlerFailed))
}

func TestLoad_Rejects(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.rt.Load(f.ctx, []byte("not wasm"), f.ws)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))

	_, err = f.rt.Load(f.ctx, guestModule(nil, nil).encode(), nil)
	assert.True(t, errors.HasKind(err, errors.KindInvalidParameters))

	noMemory := guestModule(nil, nil, on(binding.EventGet, i32Const(0)))
	noMemory.memory = false
	_, err = f.rt.Load(f.ctx, noMemory.encode(), f.ws)
	assert.True(t, errors.HasKind(err, errors.KindMissingExport))

	_, err = f.rt.Load(f.ctx, guestModule(nil, nil).encode(), f.ws)
	assert.True(t, errors.HasKind(err, errors.KindMissingExport))

	badSignature := guestModule(nil, nil, wasmFunc{export: exportName(binding.EventGet), typ: 1, body: i32Const(0)})
	_, err = f.rt.Load(f.ctx, badSignature.encode(), f.ws)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))

	assert.Zero(t, f.ws.HandlerCount(binding.EventGet))
}

func TestHandlers_Close(t *testing.T) {
	f := newFixture(t, nil)
	h := f.load(t, guestModule(nil, nil, on(binding.EventGet, i32Const(0))))

	require.NoError(t, h.Close(f.ctx))

	_, result := f.fire("get", "GET", "")
	assert.Nil(t, result)
	require.Len(t, f.reports, 1)
	assert.True(t, errors.HasKind(f.reports[0].err, errors.KindUnsupported))
}

func TestRuntime_WASI(t *testing.T) {
	f := newFixture(t, &Config{WASI: true, MemoryLimitPages: 16})
	h := f.load(t, guestModule(nil, nil, on(binding.EventConnect, i32Const(0))))
	assert.Equal(t, []binding.Event{binding.EventConnect}, h.Events())
}
