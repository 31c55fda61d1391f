package js

import (
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/errors"
)

func (m *Module) defineWebserver() {
	proto := m.class(m.exports, "Webserver", func(call goja.ConstructorCall) *goja.Object {
		pump := m.pump
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			p, ok := unwrap[*binding.EventPump](m, arg)
			if !ok {
				panic(m.vm.NewTypeError("EventPump invalid or not specified"))
			}
			pump = p
		}
		ws, err := m.lib.NewWebserver(pump)
		m.throw(err)
		return m.attach(call.This, ws)
	})
	ws := func(call goja.FunctionCall) *binding.Webserver {
		return receiver[*binding.Webserver](m, call, "Webserver")
	}

	m.method(proto, "bind", func(call goja.FunctionCall) goja.Value {
		m.bind(call.This.(*goja.Object), ws(call), call.Argument(0).String(), call.Argument(1))
		return nil
	})
	for _, ev := range binding.Events {
		name := string(ev)
		m.method(proto, name, func(call goja.FunctionCall) goja.Value {
			m.bind(call.This.(*goja.Object), ws(call), name, call.Argument(0))
			return nil
		})
	}

	m.method(proto, "host", func(call goja.FunctionCall) goja.Value {
		target, err := m.hostTarget(call.Argument(0))
		m.throw(err)
		_, err = ws(call).Host(target...)
		m.throw(err)
		return nil
	})
	m.method(proto, "hostSecure", func(call goja.FunctionCall) goja.Value {
		target, err := m.hostTarget(call.Argument(0))
		m.throw(err)
		_, err = ws(call).HostSecure(target...)
		m.throw(err)
		return nil
	})
	m.method(proto, "unhost", func(call goja.FunctionCall) goja.Value {
		ws(call).Unhost()
		return nil
	})
	m.method(proto, "unhostSecure", func(call goja.FunctionCall) goja.Value {
		ws(call).UnhostSecure()
		return nil
	})
	m.method(proto, "hosting", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).Hosting())
	})
	m.method(proto, "hostingSecure", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).HostingSecure())
	})
	m.method(proto, "port", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).Port())
	})
	m.method(proto, "portSecure", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).PortSecure())
	})
	m.method(proto, "loadCertificateFile", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).LoadCertificateFile(optString(call.Argument(0)), optString(call.Argument(1))))
	})
	m.method(proto, "loadSystemCertificate", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).LoadSystemCertificate(
			optString(call.Argument(0)), optString(call.Argument(1)), optString(call.Argument(2))))
	})
	m.method(proto, "certificateLoaded", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).CertificateLoaded())
	})
	m.method(proto, "bytesSent", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).BytesSent())
	})
	m.method(proto, "bytesReceived", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(ws(call).BytesReceived())
	})
	m.method(proto, "closeSession", func(call goja.FunctionCall) goja.Value {
		ws(call).CloseSession(call.Argument(0).String())
		return nil
	})
	m.method(proto, "enableManualRequestFinish", func(call goja.FunctionCall) goja.Value {
		ws(call).EnableManualFinish()
		return nil
	})
	m.method(proto, "close", func(call goja.FunctionCall) goja.Value {
		m.throw(ws(call).Close())
		return nil
	})

	m.defineRequest(m.exports.Get("Webserver").(*goja.Object))
}

// hostTarget converts the optional argument of host and hostSecure.
func (m *Module) hostTarget(v goja.Value) ([]binding.HostTarget, error) {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	if f, ok := unwrap[*binding.Filter](m, v); ok {
		return []binding.HostTarget{binding.OnFilter(f)}, nil
	}
	switch n := v.Export().(type) {
	case int64:
		return []binding.HostTarget{binding.Port(n)}, nil
	case float64:
		return []binding.HostTarget{binding.Port(n)}, nil
	case string:
		if port, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return []binding.HostTarget{binding.Port(port)}, nil
		}
	}
	return nil, errors.New(errors.PhaseHost, errors.KindInvalidPort).
		Value(v.String()).
		Detail("Invalid port").
		Build()
}

// bind registers fn for event. Handlers run with this set to the webserver
// object; their return value becomes the dispatch result.
func (m *Module) bind(self *goja.Object, ws *binding.Webserver, event string, fn goja.Value) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		panic(m.vm.NewTypeError("handler for '" + event + "' is not a function"))
	}
	_, err := ws.Bind(event, func(arg binding.Wrapper, args ...any) (any, error) {
		params := make([]goja.Value, 0, len(args)+1)
		params = append(params, m.wrap(arg))
		for _, a := range args {
			params = append(params, m.vm.ToValue(a))
		}
		v, err := callable(self, params...)
		if err != nil {
			return nil, err
		}
		return v.Export(), nil
	})
	m.throw(err)
}

// wrap returns the script object for a dispatch argument.
func (m *Module) wrap(w binding.Wrapper) goja.Value {
	switch x := w.(type) {
	case *binding.Request:
		return m.requestObject(x)
	case *binding.Error:
		return m.instance("Error", x)
	case *binding.Address:
		return m.instance("Address", x)
	case *binding.Filter:
		return m.instance("Filter", x)
	}
	return goja.Undefined()
}

func optString(v goja.Value) string {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
