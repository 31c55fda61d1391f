package binding

import (
	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// Event names a webserver notification.
type Event string

const (
	EventError      Event = engine.EventError
	EventGet        Event = engine.EventGet
	EventPost       Event = engine.EventPost
	EventHead       Event = engine.EventHead
	EventConnect    Event = engine.EventConnect
	EventDisconnect Event = engine.EventDisconnect
)

// Events is the fixed event set of a Webserver.
var Events = []Event{EventError, EventGet, EventPost, EventHead, EventConnect, EventDisconnect}

// ParseEvent maps an event name onto the fixed event set.
func ParseEvent(name string) (Event, bool) {
	for _, ev := range Events {
		if string(ev) == name {
			return ev, true
		}
	}
	return "", false
}

// Handler receives the wrapped first event argument (*Request, or *Error for
// EventError) followed by the remaining raw engine arguments.
type Handler func(arg Wrapper, args ...any) (any, error)

// RequestHandler handles get, post, head, connect and disconnect.
type RequestHandler func(req *Request, args ...any) (any, error)

// ErrorHandler handles the error event.
type ErrorHandler func(err *Error, args ...any) (any, error)

func (h RequestHandler) handler() Handler {
	return func(arg Wrapper, args ...any) (any, error) {
		req, ok := arg.(*Request)
		if !ok {
			return nil, errors.InvalidParameters(errors.PhaseDispatch, "request")
		}
		return h(req, args...)
	}
}

func (h ErrorHandler) handler() Handler {
	return func(arg Wrapper, args ...any) (any, error) {
		e, ok := arg.(*Error)
		if !ok {
			return nil, errors.InvalidParameters(errors.PhaseDispatch, "error")
		}
		return h(e, args...)
	}
}

// Bind appends h to the handler list of event and returns the webserver.
func (ws *Webserver) Bind(event string, h Handler) (*Webserver, error) {
	ev, ok := ParseEvent(event)
	if !ok {
		return ws, errors.UnknownEvent(errors.PhaseBind, event)
	}
	if h == nil {
		return ws, errors.New(errors.PhaseBind, errors.KindInvalidParameters).
			Path(event).
			Detail("nil handler").
			Build()
	}

	ws.mu.Lock()
	ws.handlers[ev] = append(ws.handlers[ev], h)
	ws.mu.Unlock()
	return ws, nil
}

func (ws *Webserver) bindRequest(ev Event, h RequestHandler) *Webserver {
	if h != nil {
		ws.Bind(string(ev), h.handler())
	}
	return ws
}

func (ws *Webserver) OnGet(h RequestHandler) *Webserver {
	return ws.bindRequest(EventGet, h)
}

func (ws *Webserver) OnPost(h RequestHandler) *Webserver {
	return ws.bindRequest(EventPost, h)
}

func (ws *Webserver) OnHead(h RequestHandler) *Webserver {
	return ws.bindRequest(EventHead, h)
}

func (ws *Webserver) OnConnect(h RequestHandler) *Webserver {
	return ws.bindRequest(EventConnect, h)
}

func (ws *Webserver) OnDisconnect(h RequestHandler) *Webserver {
	return ws.bindRequest(EventDisconnect, h)
}

func (ws *Webserver) OnError(h ErrorHandler) *Webserver {
	if h != nil {
		ws.Bind(string(EventError), h.handler())
	}
	return ws
}

// HandlerCount returns how many handlers are bound to event.
func (ws *Webserver) HandlerCount(event Event) int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.handlers[event])
}

func (ws *Webserver) handlersFor(ev Event) []Handler {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	list := ws.handlers[ev]
	if len(list) == 0 {
		return nil
	}
	out := make([]Handler, len(list))
	copy(out, list)
	return out
}
