package binding

import (
	"sync"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// registry maps live request handles of one webserver to their wrappers.
type registry struct {
	live map[engine.Ref]*Request
	mu   sync.Mutex
}

func newRegistry() *registry {
	return &registry{live: make(map[engine.Ref]*Request)}
}

func (r *registry) wrap(ws *Webserver, ref engine.Ref) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req, ok := r.live[ref]; ok {
		return req, nil
	}
	if ref == 0 || !ws.lib.eng.Valid(ref) {
		return nil, errors.InvalidHandle(errors.PhaseWrap, "request", ref)
	}
	req := &Request{ws: ws, ref: ref}
	r.live[ref] = req
	return req, nil
}

func (r *registry) forget(ref engine.Ref) {
	r.mu.Lock()
	delete(r.live, ref)
	r.mu.Unlock()
}

func (r *registry) take(ref engine.Ref) *Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := r.live[ref]
	delete(r.live, ref)
	return req
}

// autoFinished marks a request finished by the engine after dispatch. A
// request that was disconnected stays registered for its disconnect event.
func (r *registry) autoFinished(ref engine.Ref) {
	r.mu.Lock()
	req := r.live[ref]
	if req != nil && !req.Disconnecting() {
		delete(r.live, ref)
	}
	r.mu.Unlock()
	if req != nil {
		req.setState(stateFinished)
	}
}

// disconnected marks a request gone once its disconnect dispatch completed.
func (r *registry) disconnected(ref engine.Ref) {
	if req := r.take(ref); req != nil {
		req.setState(stateDisconnected)
	}
}

func (r *registry) clear() {
	r.mu.Lock()
	live := r.live
	r.live = make(map[engine.Ref]*Request)
	r.mu.Unlock()
	for _, req := range live {
		req.setState(stateDisconnected)
	}
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
