package js

import (
	"github.com/dop251/goja"

	"github.com/wippyai/lacewing/binding"
)

// requestObject returns the script object for req. The same object is
// returned for as long as the request is live, so scripts can keep requests
// in arrays and find them again on disconnect.
func (m *Module) requestObject(req *binding.Request) *goja.Object {
	for r := range m.requests {
		if r == req {
			continue
		}
		if r.Disconnected() || (r.Finished() && !r.Disconnecting()) {
			delete(m.requests, r)
		}
	}
	if obj, ok := m.requests[req]; ok {
		return obj
	}
	obj := m.instance("Request", req)
	m.requests[req] = obj
	return obj
}

func (m *Module) defineRequest(webserver *goja.Object) {
	proto := m.class(webserver, "Request", func(goja.ConstructorCall) *goja.Object {
		panic(m.vm.NewTypeError("Can't create Webserver.Request objects"))
	})
	req := func(call goja.FunctionCall) *binding.Request {
		return receiver[*binding.Request](m, call, "Webserver.Request")
	}
	str := func(call goja.FunctionCall, i int) string { return call.Argument(i).String() }

	write := func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).Write(str(call, 0)))
		return nil
	}
	sendFile := func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).SendFile(str(call, 0)))
		return nil
	}
	m.method(proto, "write", write)
	m.method(proto, "send", write)
	m.method(proto, "sendFile", sendFile)
	m.method(proto, "writeFile", sendFile)

	m.method(proto, "reset", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).Reset())
		return nil
	})
	m.method(proto, "finish", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).Finish())
		return nil
	})
	m.method(proto, "disconnect", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).Disconnect())
		return nil
	})
	m.method(proto, "redirect", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).Redirect(str(call, 0)))
		return nil
	})
	m.method(proto, "responseType", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).SetStatus(int(call.Argument(0).ToInteger()), optString(call.Argument(1))))
		return nil
	})
	m.method(proto, "mimeType", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).SetMimeType(str(call, 0), optString(call.Argument(1))))
		return nil
	})
	m.method(proto, "guessMimeType", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).GuessMimeType(str(call, 0)))
		return nil
	})
	m.method(proto, "setUnmodified", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).SetUnmodified())
		return nil
	})
	m.method(proto, "disableCache", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).DisableCache())
		return nil
	})

	m.method(proto, "header", func(call goja.FunctionCall) goja.Value {
		r := req(call)
		if goja.IsUndefined(call.Argument(1)) {
			return m.vm.ToValue(r.Header(str(call, 0)))
		}
		m.throw(r.SetHeader(str(call, 0), str(call, 1)))
		return nil
	})
	m.method(proto, "cookie", func(call goja.FunctionCall) goja.Value {
		r := req(call)
		if goja.IsUndefined(call.Argument(1)) {
			return m.vm.ToValue(r.Cookie(str(call, 0)))
		}
		m.throw(r.SetCookie(str(call, 0), str(call, 1)))
		return nil
	})
	m.method(proto, "session", func(call goja.FunctionCall) goja.Value {
		r := req(call)
		switch {
		case goja.IsUndefined(call.Argument(0)):
			return m.vm.ToValue(r.SessionID())
		case goja.IsUndefined(call.Argument(1)):
			return m.vm.ToValue(r.Session(str(call, 0)))
		}
		m.throw(r.SetSession(str(call, 0), str(call, 1)))
		return nil
	})
	m.method(proto, "closeSession", func(call goja.FunctionCall) goja.Value {
		m.throw(req(call).CloseSession())
		return nil
	})
	m.method(proto, "GET", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(req(call).GET(str(call, 0)))
	})
	m.method(proto, "POST", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(req(call).POST(str(call, 0)))
	})

	get := func(this goja.Value) *binding.Request {
		r, ok := unwrap[*binding.Request](m, this)
		if !ok {
			panic(m.vm.NewTypeError("Method called on incompatible receiver; expected Webserver.Request"))
		}
		return r
	}
	m.accessor(proto, "address", func(this goja.Value) goja.Value {
		a, err := get(this).Address()
		m.throw(err)
		return m.instance("Address", a)
	}, nil)
	m.accessor(proto, "secure", func(this goja.Value) goja.Value {
		return m.vm.ToValue(get(this).Secure())
	}, nil)
	m.accessor(proto, "URL", func(this goja.Value) goja.Value {
		return m.vm.ToValue(get(this).URL())
	}, nil)
	m.accessor(proto, "hostname", func(this goja.Value) goja.Value {
		return m.vm.ToValue(get(this).Hostname())
	}, nil)
	m.accessor(proto, "method", func(this goja.Value) goja.Value {
		return m.vm.ToValue(get(this).Method())
	}, nil)
	m.accessor(proto, "body", func(this goja.Value) goja.Value {
		return m.vm.ToValue(get(this).Body())
	}, nil)
	m.accessor(proto, "lastModified", func(this goja.Value) goja.Value {
		return m.vm.ToValue(unixTime(get(this).LastModified()))
	}, func(this, v goja.Value) {
		t, ok := toTime(v)
		if !ok {
			panic(m.vm.NewTypeError("lastModified must be a Date or a number of seconds"))
		}
		m.throw(get(this).SetLastModified(t))
	})
}
