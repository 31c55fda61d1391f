package js

import (
	"context"
	stderrors "errors"

	"github.com/dop251/goja"

	"github.com/wippyai/lacewing/binding"
)

func (m *Module) defineEventPump() {
	proto := m.class(m.exports, "EventPump", func(call goja.ConstructorCall) *goja.Object {
		p, err := m.lib.NewEventPump()
		m.throw(err)
		return m.attach(call.This, p)
	})
	pump := func(call goja.FunctionCall) *binding.EventPump {
		return receiver[*binding.EventPump](m, call, "EventPump")
	}

	m.method(proto, "tick", func(call goja.FunctionCall) goja.Value {
		m.throw(pump(call).Tick())
		return nil
	})
	m.method(proto, "startEventLoop", func(call goja.FunctionCall) goja.Value {
		err := pump(call).StartEventLoop(m.ctx)
		if err != nil && !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded) {
			m.throw(err)
		}
		return nil
	})
	m.method(proto, "postEventLoopExit", func(call goja.FunctionCall) goja.Value {
		m.throw(pump(call).PostEventLoopExit())
		return nil
	})
	m.method(proto, "close", func(call goja.FunctionCall) goja.Value {
		m.throw(pump(call).Close())
		return nil
	})
}
