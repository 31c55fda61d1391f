package js

import (
	"github.com/dop251/goja"

	"github.com/wippyai/lacewing/binding"
)

func (m *Module) defineError() {
	proto := m.class(m.exports, "Error", func(call goja.ConstructorCall) *goja.Object {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) {
			return m.attach(call.This, m.lib.NewError())
		}
		if e, ok := unwrap[*binding.Error](m, arg); ok {
			return m.attach(call.This, e.Clone())
		}
		panic(m.vm.NewTypeError("Invalid parameters"))
	})
	e := func(call goja.FunctionCall) *binding.Error {
		return receiver[*binding.Error](m, call, "Error")
	}

	m.method(proto, "add", func(call goja.FunctionCall) goja.Value {
		e(call).Add(call.Argument(0).String())
		return nil
	})
	m.method(proto, "toString", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(e(call).String())
	})
	m.method(proto, "close", func(call goja.FunctionCall) goja.Value {
		e(call).Close()
		return nil
	})
}

func (m *Module) defineAddress() {
	proto := m.class(m.exports, "Address", func(call goja.ConstructorCall) *goja.Object {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) {
			return m.attach(call.This, m.lib.NewAddress())
		}
		if a, ok := unwrap[*binding.Address](m, arg); ok {
			return m.attach(call.This, a.Copy())
		}
		if s, ok := arg.Export().(string); ok {
			a, err := m.lib.ResolveAddress(s, call.Argument(1).ToBoolean())
			m.throw(err)
			return m.attach(call.This, a)
		}
		panic(m.vm.NewTypeError("Invalid parameters"))
	})
	a := func(call goja.FunctionCall) *binding.Address {
		return receiver[*binding.Address](m, call, "Address")
	}

	m.method(proto, "port", func(call goja.FunctionCall) goja.Value {
		if goja.IsUndefined(call.Argument(0)) {
			return m.vm.ToValue(a(call).Port())
		}
		a(call).SetPort(int(call.Argument(0).ToInteger()))
		return nil
	})
	m.method(proto, "ready", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(a(call).Ready())
	})
	m.method(proto, "toString", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(a(call).String())
	})
	m.method(proto, "close", func(call goja.FunctionCall) goja.Value {
		a(call).Close()
		return nil
	})
}

func (m *Module) defineFilter() {
	proto := m.class(m.exports, "Filter", func(call goja.ConstructorCall) *goja.Object {
		if !goja.IsUndefined(call.Argument(0)) {
			panic(m.vm.NewTypeError("Invalid parameters"))
		}
		return m.attach(call.This, m.lib.NewFilter())
	})
	f := func(call goja.FunctionCall) *binding.Filter {
		return receiver[*binding.Filter](m, call, "Filter")
	}

	m.method(proto, "local", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) {
			return m.vm.ToValue(f(call).Local())
		}
		s, ok := arg.Export().(string)
		if !ok {
			panic(m.vm.NewTypeError("Invalid arguments"))
		}
		f(call).SetLocal(s)
		return nil
	})
	m.method(proto, "localPort", func(call goja.FunctionCall) goja.Value {
		if goja.IsUndefined(call.Argument(0)) {
			return m.vm.ToValue(f(call).LocalPort())
		}
		f(call).SetLocalPort(int(call.Argument(0).ToInteger()))
		return nil
	})
	m.method(proto, "remote", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) {
			remote := f(call).Remote()
			if remote == nil {
				return goja.Null()
			}
			return m.instance("Address", remote)
		}
		if addr, ok := unwrap[*binding.Address](m, arg); ok {
			f(call).SetRemoteAddress(addr)
			return nil
		}
		if s, ok := arg.Export().(string); ok {
			f(call).SetRemote(s)
			return nil
		}
		panic(m.vm.NewTypeError("Invalid arguments"))
	})
	m.method(proto, "reuse", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) {
			return m.vm.ToValue(f(call).Reuse())
		}
		if b, ok := arg.Export().(bool); ok {
			f(call).SetReuse(b)
		}
		return nil
	})
	m.method(proto, "close", func(call goja.FunctionCall) goja.Value {
		f(call).Close()
		return nil
	})
}
