package js

import (
	"testing"
	"time"

	"github.com/dop251/goja"
	noderequire "github.com/dop251/goja_nodejs/require"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/engine/enginetest"
	"github.com/wippyai/lacewing/errors"
)

type report struct {
	event string
	err   error
}

type fixture struct {
	eng     *enginetest.Engine
	vm      *goja.Runtime
	mod     *Module
	reports []report
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{eng: enginetest.New(), vm: goja.New()}
	var err error
	f.mod, err = InstallWithConfig(f.vm, f.eng, &Config{
		GlobalPump: true,
		Reporter: binding.ReporterFunc(func(event string, err error) {
			f.reports = append(f.reports, report{event, err})
		}),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) run(t *testing.T, src string) goja.Value {
	t.Helper()
	v, err := f.vm.RunString(src)
	require.NoError(t, err)
	return v
}

// webserver runs src, which must evaluate to a Webserver object.
func (f *fixture) webserver(t *testing.T, src string) *binding.Webserver {
	t.Helper()
	ws, ok := unwrap[*binding.Webserver](f.mod, f.run(t, src))
	require.True(t, ok, "script did not return a Webserver")
	return ws
}

func (f *fixture) request(ws *binding.Webserver, method, url string) engine.Ref {
	return f.eng.NewRequest(ws.Ref(), method, url)
}

func TestInstall_Globals(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, enginetest.Version, f.run(t, `Lacewing.version()`).String())
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", f.run(t, `Lacewing.md5('hello')`).String())
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", f.run(t, `Lacewing.sha1('hello')`).String())
	assert.Equal(t, "text/html", f.run(t, `Lacewing.guessMimeType('index.html')`).String())
	assert.False(t, f.run(t, `Lacewing.fileExists('/definitely/not/here')`).ToBoolean())
	assert.Equal(t, int64(0), f.run(t, `Lacewing.lastModified('/definitely/not/here')`).ToInteger())
	assert.NotEmpty(t, f.run(t, `Lacewing.tempPath()`).String())
}

func TestHelloWorld(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var webserver = new Lacewing.Webserver();
		webserver.bind('get', function(request) {
			request.write('Hello world from ' + Lacewing.version());
		});
		webserver.host(8080);
		webserver;
	`)

	assert.True(t, ws.Hosting())
	assert.Equal(t, 8080, ws.Port())

	req := f.request(ws, "GET", "")
	f.eng.Fire(ws.Ref(), "get", req)

	assert.Empty(t, f.reports)
	assert.Equal(t, "Hello world from "+enginetest.Version, f.eng.Request(req).Output.String())
}

func TestWebserver_ExplicitPump(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var pump = new Lacewing.EventPump();
		var webserver = new Lacewing.Webserver(pump);
		pump.tick();
		webserver;
	`)
	assert.NotEqual(t, f.mod.Pump().Ref(), ws.Pump().Ref())
}

func TestWebserver_PumpRequired(t *testing.T) {
	vm := goja.New()
	_, err := Install(vm, enginetest.New())
	require.NoError(t, err)

	_, err = vm.RunString(`new Lacewing.Webserver()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EventPump invalid or not specified")

	_, err = vm.RunString(`new Lacewing.Webserver({})`)
	require.Error(t, err)
}

func TestBind_SugarAndChaining(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var order = [];
		var webserver = new Lacewing.Webserver();
		webserver
			.get(function(req) { order.push('a'); return 'first'; })
			.get(function(req) { order.push('b'); return 'second'; })
			.connect(function(req) { order.push('connect'); });
		webserver;
	`)

	assert.Equal(t, 2, ws.HandlerCount(binding.EventGet))
	result := f.eng.Fire(ws.Ref(), "get", f.request(ws, "GET", ""))
	assert.Equal(t, "second", result)
	assert.Equal(t, []any{"a", "b"}, f.run(t, `order`).Export())
}

func TestBind_ThisIsWebserver(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var self;
		var webserver = new Lacewing.Webserver();
		webserver.bind('head', function(req) { self = this; });
		webserver;
	`)
	f.eng.Fire(ws.Ref(), "head", f.request(ws, "HEAD", ""))
	assert.True(t, f.run(t, `self === webserver`).ToBoolean())
}

func TestBind_Errors(t *testing.T) {
	f := newFixture(t)
	f.run(t, `var webserver = new Lacewing.Webserver();`)

	_, err := f.vm.RunString(`webserver.bind('upload', function() {})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError")

	_, err = f.vm.RunString(`webserver.bind('get', 42)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a function")
}

func TestDispatch_ExceptionReported(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var ran = false;
		var webserver = new Lacewing.Webserver();
		webserver.post(function(req) { throw new Error('boom'); });
		webserver.post(function(req) { ran = true; return 'ok'; });
		webserver;
	`)

	result := f.eng.Fire(ws.Ref(), "post", f.request(ws, "POST", ""))

	assert.Equal(t, "ok", result)
	assert.True(t, f.run(t, `ran`).ToBoolean())
	require.Len(t, f.reports, 1)
	assert.Equal(t, "post", f.reports[0].event)
	assert.True(t, errors.HasKind(f.reports[0].err, errors.KindHandlerFailed))
	assert.Contains(t, f.reports[0].err.Error(), "boom")
}

func TestErrorEvent(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var message, isError;
		var webserver = new Lacewing.Webserver();
		webserver.error(function(err) {
			isError = err instanceof Lacewing.Error;
			message = err.toString();
			return true;
		});
		webserver;
	`)

	result := f.eng.Fire(ws.Ref(), "error", f.eng.NewEngineError("Error hosting webserver"))

	assert.Equal(t, true, result)
	assert.True(t, f.run(t, `isError`).ToBoolean())
	assert.Equal(t, "Error hosting webserver", f.run(t, `message`).String())
}

func TestHost_Targets(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		var webserver = new Lacewing.Webserver();
		var filter = new Lacewing.Filter().localPort(9000);
		webserver.host();
		webserver.hostSecure();
		webserver.host(filter);
	`)

	hosts := f.eng.Calls("WebserverHost")
	require.Len(t, hosts, 1)
	assert.Equal(t, binding.DefaultPort, hosts[0].Args[0])
	secure := f.eng.Calls("WebserverHostSecure")
	require.Len(t, secure, 1)
	assert.Equal(t, binding.DefaultSecurePort, secure[0].Args[0])
	assert.Len(t, f.eng.Calls("WebserverHostFilter"), 1)
	assert.Equal(t, int64(9000), f.run(t, `webserver.port()`).ToInteger())

	_, err := f.vm.RunString(`webserver.host('eighty')`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError")

	_, err = f.vm.RunString(`webserver.host(70000)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError")
	f.run(t, `webserver.host('8081')`)
	hosts = f.eng.Calls("WebserverHost")
	require.Len(t, hosts, 2)
	assert.Equal(t, 8081, hosts[1].Args[0])
}

func TestRequest_CannotConstruct(t *testing.T) {
	f := newFixture(t)
	_, err := f.vm.RunString(`new Lacewing.Webserver.Request()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can't create Webserver.Request objects")
}

func TestRequest_Accessors(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var seen = {};
		var webserver = new Lacewing.Webserver();
		webserver.get(function(req) {
			seen.url = req.URL;
			seen.hostname = req.hostname;
			seen.secure = req.secure;
			seen.method = req.method;
			seen.address = req.address.toString();
			seen.isRequest = req instanceof Lacewing.Webserver.Request;
			seen.q = req.GET('q');
			seen.header = req.header('X-Test');
			req.lastModified = 1700000000;
			req.header('X-Reply', 'yes').cookie('c', 'v').mimeType('text/plain', 'UTF-8');
			req.session('user', 'ada');
			seen.session = req.session('user');
		});
		webserver;
	`)

	ref := f.request(ws, "GET", "search")
	r := f.eng.Request(ref)
	r.Hostname = "example.com"
	r.Query["q"] = "lacewing"
	r.Headers["X-Test"] = "t"
	f.eng.Fire(ws.Ref(), "get", ref)

	require.Empty(t, f.reports)
	seen := f.run(t, `seen`).Export().(map[string]any)
	assert.Equal(t, "search", seen["url"])
	assert.Equal(t, "example.com", seen["hostname"])
	assert.Equal(t, false, seen["secure"])
	assert.Equal(t, "GET", seen["method"])
	assert.Equal(t, "127.0.0.1", seen["address"])
	assert.Equal(t, true, seen["isRequest"])
	assert.Equal(t, "lacewing", seen["q"])
	assert.Equal(t, "t", seen["header"])
	assert.Equal(t, "ada", seen["session"])

	assert.True(t, time.Unix(1700000000, 0).Equal(r.LastModified))
	assert.Equal(t, "yes", r.Headers["X-Reply"])
	assert.Equal(t, "v", r.Cookies["c"])
}

func TestRequest_WriteAfterFinishThrows(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var caught;
		var webserver = new Lacewing.Webserver();
		webserver.get(function(req) {
			req.write('done').finish();
			try { req.write('late'); } catch (e) { caught = String(e); }
		});
		webserver;
	`)

	ref := f.request(ws, "GET", "")
	f.eng.Fire(ws.Ref(), "get", ref)

	assert.Equal(t, "done", f.eng.Request(ref).Output.String())
	assert.Contains(t, f.run(t, `caught`).String(), "already finished")
}

func TestAjaxLongPoll(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var waitingRequests = [];
		var webserver = new Lacewing.Webserver();
		webserver.enableManualRequestFinish();

		webserver.bind('disconnect', function(req) {
			var index = waitingRequests.indexOf(req);
			if (index != -1)
				waitingRequests.splice(index, 1);
		});

		webserver.bind('post', function(req) {
			if (req.URL == 'poll') {
				waitingRequests.push(req);
				return;
			}
			if (req.URL == 'message') {
				var message = req.POST('message');
				for (var i = 0; i < waitingRequests.length; ++i)
					waitingRequests[i].write(message).finish();
				waitingRequests.length = 0;
				req.finish();
			}
		});
		webserver;
	`)
	assert.True(t, ws.ManualFinish())

	a := f.request(ws, "POST", "poll")
	b := f.request(ws, "POST", "poll")
	f.eng.Fire(ws.Ref(), "post", a)
	f.eng.Fire(ws.Ref(), "post", b)
	assert.Equal(t, int64(2), f.run(t, `waitingRequests.length`).ToInteger())

	f.eng.Fire(ws.Ref(), "disconnect", b)
	assert.Equal(t, int64(1), f.run(t, `waitingRequests.length`).ToInteger())

	msg := f.request(ws, "POST", "message")
	f.eng.Request(msg).Form["message"] = "hi"
	f.eng.Fire(ws.Ref(), "post", msg)

	assert.Empty(t, f.reports)
	assert.Equal(t, int64(0), f.run(t, `waitingRequests.length`).ToInteger())
	assert.Equal(t, "hi", f.eng.Request(a).Output.String())
	assert.True(t, f.eng.Request(a).Finished)
	assert.True(t, f.eng.Request(msg).Finished)
	assert.Empty(t, f.eng.Request(b).Output.String())
}

func TestRequestObjects_Pruned(t *testing.T) {
	f := newFixture(t)
	ws := f.webserver(t, `
		var webserver = new Lacewing.Webserver();
		webserver.get(function(req) { req.write('x'); });
		webserver;
	`)

	for i := 0; i < 5; i++ {
		f.eng.Fire(ws.Ref(), "get", f.request(ws, "GET", ""))
	}
	assert.LessOrEqual(t, len(f.mod.requests), 1)
}

func TestAddressFilterError(t *testing.T) {
	f := newFixture(t)
	v := f.run(t, `
		var out = {};
		var a = new Lacewing.Address('127.0.0.1:81', true);
		out.port = a.port();
		out.ready = a.ready();
		var b = new Lacewing.Address(a).port(82);
		out.copy = b.toString();
		out.original = a.port();

		var f = new Lacewing.Filter();
		f.local('127.0.0.1').localPort(8081).reuse(true).remote('10.0.0.1');
		out.local = f.local();
		out.localPort = f.localPort();
		out.reuse = f.reuse();
		out.remoteIsAddress = f.remote() instanceof Lacewing.Address;

		var e = new Lacewing.Error();
		e.add('inner').add('outer');
		var c = new Lacewing.Error(e);
		out.error = c.toString();
		out;
	`)
	out := v.Export().(map[string]any)
	assert.Equal(t, int64(81), out["port"])
	assert.Equal(t, true, out["ready"])
	assert.Equal(t, int64(81), out["original"])
	assert.Equal(t, "127.0.0.1", out["local"])
	assert.Equal(t, int64(8081), out["localPort"])
	assert.Equal(t, true, out["reuse"])
	assert.Equal(t, true, out["remoteIsAddress"])
	assert.NotEmpty(t, out["copy"])
	assert.NotEmpty(t, out["error"])

	_, err := f.vm.RunString(`new Lacewing.Address(42)`)
	require.Error(t, err)
	_, err = f.vm.RunString(`Lacewing.Error.prototype.toString.call({})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible receiver")
}

func TestRegister_Require(t *testing.T) {
	eng := enginetest.New()
	registry := noderequire.NewRegistry()
	RegisterWithConfig(registry, eng, &Config{GlobalPump: true})

	vm := goja.New()
	registry.Enable(vm)

	v, err := vm.RunString(`
		var Lacewing = require('liblacewing');
		var webserver = new Lacewing.Webserver();
		webserver.get(function(req) { req.write('required'); });
		Lacewing.version();
	`)
	require.NoError(t, err)
	assert.Equal(t, enginetest.Version, v.String())
	assert.Len(t, eng.Calls("NewWebserver"), 1)
}

func TestModuleRegister_SameRuntime(t *testing.T) {
	f := newFixture(t)
	registry := noderequire.NewRegistry()
	f.mod.Register(registry)
	registry.Enable(f.vm)

	assert.True(t, f.run(t, `require('liblacewing') === Lacewing`).ToBoolean())
}

func TestEventLoop(t *testing.T) {
	f := newFixture(t)
	f.run(t, `var pump = new Lacewing.EventPump();`)
	pump, ok := unwrap[*binding.EventPump](f.mod, f.vm.Get("pump"))
	require.True(t, ok)

	f.eng.Post(pump.Ref(), func() {
		_ = pump.PostEventLoopExit()
	})
	f.run(t, `pump.startEventLoop()`)
	assert.NotEmpty(t, f.eng.Calls("PumpStartEventLoop"))
}
