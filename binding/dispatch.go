package binding

import (
	"go.uber.org/zap"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// dispatch is the engine callback of a webserver.
func (ws *Webserver) dispatch(name string, args ...any) any {
	ev, ok := ParseEvent(name)
	if !ok {
		ws.lib.reporter.Report(name, errors.UnknownEvent(errors.PhaseDispatch, name))
		return nil
	}

	var ref engine.Ref
	if len(args) > 0 {
		ref, _ = args[0].(engine.Ref)
	}

	switch ev {
	case EventDisconnect:
		defer ws.requests.disconnected(ref)
	case EventGet, EventPost, EventHead:
		if !ws.manual.Load() {
			defer ws.requests.autoFinished(ref)
		}
	}

	handlers := ws.handlersFor(ev)
	if len(handlers) == 0 {
		return nil
	}

	arg, err := ws.wrapArg(ev, args)
	if err != nil {
		ws.lib.reporter.Report(name, err)
		return nil
	}

	rest := args[1:]
	var result any
	for _, h := range handlers {
		result = ws.invoke(ev, h, arg, rest)
	}
	return result
}

func (ws *Webserver) wrapArg(ev Event, args []any) (Wrapper, error) {
	if len(args) == 0 {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidParameters).
			Path(string(ev)).
			Detail("missing handle argument").
			Build()
	}
	ref, ok := args[0].(engine.Ref)
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidParameters).
			Path(string(ev)).
			Detail("handle argument has type %T", args[0]).
			Build()
	}
	if ev == EventError {
		return WrapError(internal, ws.lib, ref)
	}
	return WrapRequest(internal, ws, ref)
}

func (ws *Webserver) invoke(ev Event, h Handler, arg Wrapper, args []any) (result any) {
	defer func() {
		if r := recover(); r != nil {
			ws.lib.log.Debug("handler panic recovered", zap.String("event", string(ev)), zap.Any("panic", r))
			ws.lib.reporter.Report(string(ev), errors.HandlerPanic(string(ev), r))
			result = nil
		}
	}()

	v, err := h(arg, args...)
	if err != nil {
		ws.lib.reporter.Report(string(ev), errors.HandlerFailed(string(ev), err))
		return nil
	}
	return v
}
