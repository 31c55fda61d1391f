package binding

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// Default ports used when Host and HostSecure are called without a target.
const (
	DefaultPort       = 80
	DefaultSecurePort = 443
)

// Webserver wraps an engine webserver together with its event bindings and
// live request registry.
type Webserver struct {
	lib      *Library
	pump     *EventPump
	ref      engine.Ref
	handlers map[Event][]Handler
	requests *registry
	mu       sync.RWMutex
	manual   atomic.Bool
}

// NewWebserver creates a webserver dispatching on pump.
func (l *Library) NewWebserver(pump *EventPump) (*Webserver, error) {
	if pump == nil || pump.lib != l {
		return nil, errors.New(errors.PhaseEngine, errors.KindInvalidParameters).
			Resource("webserver").
			Detail("EventPump invalid or not specified").
			Build()
	}

	ws := &Webserver{
		lib:      l,
		pump:     pump,
		handlers: make(map[Event][]Handler, len(Events)),
		requests: newRegistry(),
	}

	ref, err := l.eng.NewWebserver(pump.ref, ws.dispatch)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "create webserver")
	}
	ws.ref = ref
	return ws, nil
}

func (ws *Webserver) Ref() engine.Ref { return ws.ref }
func (ws *Webserver) wrapper()        {}

// Library returns the library the webserver was created from.
func (ws *Webserver) Library() *Library { return ws.lib }

// Pump returns the event pump the webserver dispatches on.
func (ws *Webserver) Pump() *EventPump { return ws.pump }

// HostTarget selects what Host and HostSecure listen on: a Port or a Filter
// passed through OnFilter.
type HostTarget interface {
	hostTarget()
}

// Port hosts on a TCP port. Port 0 picks a free port.
type Port int

func (Port) hostTarget() {}

type filterTarget struct {
	filter *Filter
}

func (filterTarget) hostTarget() {}

// OnFilter hosts using the local address, port and reuse settings of f.
func OnFilter(f *Filter) HostTarget {
	return filterTarget{filter: f}
}

func (ws *Webserver) resolveTarget(targets []HostTarget, def Port) (HostTarget, error) {
	switch len(targets) {
	case 0:
		return def, nil
	case 1:
	default:
		return nil, errors.InvalidParameters(errors.PhaseHost, "webserver")
	}

	switch t := targets[0].(type) {
	case Port:
		if t < 0 || t > 65535 {
			return nil, errors.InvalidPort(errors.PhaseHost, int(t))
		}
		return t, nil
	case filterTarget:
		if t.filter == nil {
			return nil, errors.InvalidParameters(errors.PhaseHost, "filter")
		}
		if !ws.lib.eng.Valid(t.filter.ref) {
			return nil, errors.InvalidHandle(errors.PhaseHost, "filter", t.filter.ref)
		}
		return t, nil
	default:
		return nil, errors.InvalidParameters(errors.PhaseHost, "webserver")
	}
}

// Host starts plain HTTP hosting on port 80, the given Port, or a filter.
// Hosting failures are raised through the error event.
func (ws *Webserver) Host(target ...HostTarget) (*Webserver, error) {
	t, err := ws.resolveTarget(target, DefaultPort)
	if err != nil {
		return ws, err
	}
	switch t := t.(type) {
	case Port:
		ws.lib.eng.WebserverHost(ws.ref, int(t))
	case filterTarget:
		ws.lib.eng.WebserverHostFilter(ws.ref, t.filter.ref)
	}
	return ws, nil
}

// HostSecure starts HTTPS hosting on port 443, the given Port, or a filter.
func (ws *Webserver) HostSecure(target ...HostTarget) (*Webserver, error) {
	t, err := ws.resolveTarget(target, DefaultSecurePort)
	if err != nil {
		return ws, err
	}
	switch t := t.(type) {
	case Port:
		ws.lib.eng.WebserverHostSecure(ws.ref, int(t))
	case filterTarget:
		ws.lib.eng.WebserverHostSecureFilter(ws.ref, t.filter.ref)
	}
	return ws, nil
}

func (ws *Webserver) Unhost() *Webserver {
	ws.lib.eng.WebserverUnhost(ws.ref)
	return ws
}

func (ws *Webserver) UnhostSecure() *Webserver {
	ws.lib.eng.WebserverUnhostSecure(ws.ref)
	return ws
}

func (ws *Webserver) Hosting() bool {
	return ws.lib.eng.WebserverHosting(ws.ref)
}

func (ws *Webserver) HostingSecure() bool {
	return ws.lib.eng.WebserverHostingSecure(ws.ref)
}

// Port returns the plain HTTP port, or 0 when not hosting.
func (ws *Webserver) Port() int {
	return ws.lib.eng.WebserverPort(ws.ref)
}

// PortSecure returns the HTTPS port, or 0 when not hosting.
func (ws *Webserver) PortSecure() int {
	return ws.lib.eng.WebserverPortSecure(ws.ref)
}

// LoadCertificateFile loads a PEM certificate and key for HostSecure.
func (ws *Webserver) LoadCertificateFile(filename, passphrase string) bool {
	return ws.lib.eng.WebserverLoadCertificateFile(ws.ref, filename, passphrase)
}

// LoadSystemCertificate loads a certificate from the OS store.
func (ws *Webserver) LoadSystemCertificate(store, commonName, location string) bool {
	return ws.lib.eng.WebserverLoadSystemCertificate(ws.ref, store, commonName, location)
}

func (ws *Webserver) CertificateLoaded() bool {
	return ws.lib.eng.WebserverCertificateLoaded(ws.ref)
}

func (ws *Webserver) BytesSent() int64 {
	return ws.lib.eng.WebserverBytesSent(ws.ref)
}

func (ws *Webserver) BytesReceived() int64 {
	return ws.lib.eng.WebserverBytesReceived(ws.ref)
}

// CloseSession discards the server-side session with the given id.
func (ws *Webserver) CloseSession(id string) *Webserver {
	ws.lib.eng.WebserverCloseSession(ws.ref, id)
	return ws
}

// EnableManualFinish keeps requests open after dispatch until Finish is
// called or the client disconnects.
func (ws *Webserver) EnableManualFinish() *Webserver {
	ws.manual.Store(true)
	ws.lib.eng.WebserverEnableManualFinish(ws.ref)
	return ws
}

// ManualFinish reports whether manual finish is enabled.
func (ws *Webserver) ManualFinish() bool {
	return ws.manual.Load()
}

// LiveRequests returns the number of request wrappers still registered.
func (ws *Webserver) LiveRequests() int {
	return ws.requests.Len()
}

// Close stops hosting and releases the engine webserver.
func (ws *Webserver) Close() error {
	ws.requests.clear()
	return ws.lib.eng.WebserverClose(ws.ref)
}
