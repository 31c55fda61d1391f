package guest

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/errors"
	"github.com/wippyai/lacewing/resource"
)

// Handlers is a guest instance bound to a webserver.
type Handlers struct {
	ctx      context.Context
	r        *Runtime
	ws       *binding.Webserver
	mod      api.Module
	log      *zap.Logger
	table    *resource.UnifiedTable
	requests *resource.Typed[*binding.Request]
	errs     *resource.Typed[*binding.Error]
	live     map[*binding.Request]resource.Handle
	exports  map[binding.Event]api.Function
	name     string
	mu       sync.Mutex
	closed   bool
}

func newHandlers(ctx context.Context, r *Runtime, name string, ws *binding.Webserver) *Handlers {
	table := resource.NewTable()
	return &Handlers{
		ctx:      ctx,
		r:        r,
		ws:       ws,
		log:      r.log.With(zap.String("module", name)),
		table:    table,
		requests: resource.NewTyped[*binding.Request](table, resource.KindRequest),
		errs:     resource.NewTyped[*binding.Error](table, resource.KindError),
		live:     make(map[*binding.Request]resource.Handle),
		exports:  make(map[binding.Event]api.Function),
		name:     name,
	}
}

// exportName returns the guest export handling ev.
func exportName(ev binding.Event) string {
	return "on_" + string(ev)
}

func (h *Handlers) bind() error {
	for _, ev := range binding.Events {
		fn := h.mod.ExportedFunction(exportName(ev))
		if fn == nil {
			continue
		}
		def := fn.Definition()
		if len(def.ParamTypes()) != 1 || def.ParamTypes()[0] != api.ValueTypeI32 ||
			len(def.ResultTypes()) != 1 || def.ResultTypes()[0] != api.ValueTypeI32 {
			return errors.New(errors.PhaseGuest, errors.KindInvalidInput).
				Resource(exportName(ev)).
				Detail("handler must have signature (i32) -> i32").
				Build()
		}
		h.exports[ev] = fn
	}
	if len(h.exports) == 0 {
		return errors.New(errors.PhaseGuest, errors.KindMissingExport).
			Resource(h.name).
			Detail("guest exports no event handlers").
			Build()
	}
	for ev, fn := range h.exports {
		if _, err := h.ws.Bind(string(ev), h.handler(ev, fn)); err != nil {
			return err
		}
	}
	return nil
}

// Events returns the events the guest handles.
func (h *Handlers) Events() []binding.Event {
	var events []binding.Event
	for _, ev := range binding.Events {
		if _, ok := h.exports[ev]; ok {
			events = append(events, ev)
		}
	}
	return events
}

// Name returns the wazero module name of the guest.
func (h *Handlers) Name() string { return h.name }

// LiveHandles returns the number of handles the guest can currently use.
func (h *Handlers) LiveHandles() int {
	return h.table.Len()
}

func (h *Handlers) handler(ev binding.Event, fn api.Function) binding.Handler {
	return func(arg binding.Wrapper, _ ...any) (any, error) {
		h.mu.Lock()
		closed := h.closed
		h.mu.Unlock()
		if closed {
			return nil, errors.Unsupported(errors.PhaseGuest, "closed guest "+h.name)
		}

		var handle resource.Handle
		switch w := arg.(type) {
		case *binding.Request:
			handle = h.requestHandle(w)
			defer h.sweep(w, ev)
		case *binding.Error:
			handle = h.errs.Insert(w)
			defer h.errs.Remove(handle)
		default:
			return nil, errors.InvalidParameters(errors.PhaseGuest, string(ev))
		}

		results, err := fn.Call(h.ctx, api.EncodeU32(uint32(handle)))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseGuest, errors.KindHandlerFailed, err, exportName(ev))
		}
		result := api.DecodeI32(results[0])
		if ev == binding.EventError {
			return result != 0, nil
		}
		return result, nil
	}
}

// requestHandle returns the guest handle for req, reusing it across events.
func (h *Handlers) requestHandle(req *binding.Request) resource.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if handle, ok := h.live[req]; ok {
		return handle
	}
	handle := h.requests.Insert(req)
	h.live[req] = handle
	return handle
}

// sweep releases the guest handles of requests that can no longer be used.
// req is released once its disconnect event was dispatched, or right away when
// the webserver finishes it after ev. A request the guest disconnected keeps
// its handle until its disconnect event.
func (h *Handlers) sweep(req *binding.Request, ev binding.Event) {
	autoFinish := !h.ws.ManualFinish() &&
		(ev == binding.EventGet || ev == binding.EventPost || ev == binding.EventHead)
	var stale []resource.Handle
	h.mu.Lock()
	for r, handle := range h.live {
		dropping := r.Disconnecting()
		done := r == req && (ev == binding.EventDisconnect || (autoFinish && !dropping))
		if done || r.Disconnected() || (r.Finished() && !dropping) {
			delete(h.live, r)
			stale = append(stale, handle)
		}
	}
	h.mu.Unlock()
	for _, handle := range stale {
		h.requests.Remove(handle)
	}
}

func (h *Handlers) request(handle uint32) (*binding.Request, bool) {
	return h.requests.Get(resource.Handle(handle))
}

// Close releases the guest instance. Its handlers stay bound to the
// webserver and fail from then on.
func (h *Handlers) Close(ctx context.Context) error {
	h.r.forget(h.name)
	h.release()
	return h.mod.Close(ctx)
}

func (h *Handlers) release() {
	h.mu.Lock()
	h.closed = true
	h.live = make(map[*binding.Request]resource.Handle)
	h.mu.Unlock()
	_ = h.table.Close()
}
