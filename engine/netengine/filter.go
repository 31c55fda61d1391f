package netengine

import (
	"net"
	"strconv"
	"sync"

	"github.com/wippyai/lacewing/engine"
)

type filter struct {
	remote    *address
	local     string
	localPort int
	// remoteRef is the handle FilterRemote handed out for remote.
	remoteRef engine.Ref
	mu        sync.Mutex
	reuse     bool
	released  bool
}

// setRemote replaces the remote address and returns the handle that was
// handed out for the previous one.
func (f *filter) setRemote(a *address) engine.Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = a
	old := f.remoteRef
	f.remoteRef = 0
	return old
}

// releaseRemote detaches the handed-out remote once the filter is removed.
func (f *filter) releaseRemote() engine.Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	old := f.remoteRef
	f.remoteRef = 0
	return old
}

// listenAddr returns the address to listen on.
func (f *filter) listenAddr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return net.JoinHostPort(f.local, strconv.Itoa(f.localPort))
}

// allows reports whether a client at remoteAddr may connect.
func (f *filter) allows(remoteAddr net.Addr) bool {
	f.mu.Lock()
	remote := f.remote
	f.mu.Unlock()
	if remote == nil {
		return true
	}
	want := remote.IP()
	if want == nil {
		return false
	}
	tcp, ok := remoteAddr.(*net.TCPAddr)
	return ok && tcp.IP.Equal(want)
}

func (e *Engine) NewFilter() engine.Ref {
	return e.filters.Insert(&filter{})
}

func (e *Engine) FilterLocal(ref engine.Ref) string {
	f, ok := e.filters.Get(ref)
	if !ok {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local
}

// FilterSetLocal accepts "ip" or "ip:port"; a port also sets the local port.
func (e *Engine) FilterSetLocal(ref engine.Ref, name string) {
	f, ok := e.filters.Get(ref)
	if !ok {
		return
	}
	host, port := parseAddress(name)
	f.mu.Lock()
	f.local = host
	if port != 0 {
		f.localPort = port
	}
	f.mu.Unlock()
}

func (e *Engine) FilterLocalPort(ref engine.Ref) int {
	f, ok := e.filters.Get(ref)
	if !ok {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localPort
}

func (e *Engine) FilterSetLocalPort(ref engine.Ref, port int) {
	if f, ok := e.filters.Get(ref); ok {
		f.mu.Lock()
		f.localPort = port
		f.mu.Unlock()
	}
}

// FilterRemote returns a copy of the remote address. The filter owns the
// copy until the remote changes or the filter is closed.
func (e *Engine) FilterRemote(ref engine.Ref) engine.Ref {
	f, ok := e.filters.Get(ref)
	if !ok {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil || f.released {
		return 0
	}
	if _, ok := e.addresses.Get(f.remoteRef); ok {
		return f.remoteRef
	}
	f.remoteRef = e.addresses.Insert(f.remote.copy())
	return f.remoteRef
}

// FilterSetRemote resolves name before returning.
func (e *Engine) FilterSetRemote(ref engine.Ref, name string) {
	f, ok := e.filters.Get(ref)
	if !ok {
		return
	}
	host, port := parseAddress(name)
	a := newAddress(host, port)
	a.resolve(e.log)
	e.addresses.Remove(f.setRemote(a))
}

func (e *Engine) FilterSetRemoteAddress(ref, addr engine.Ref) {
	f, ok := e.filters.Get(ref)
	if !ok {
		return
	}
	a, ok := e.addresses.Get(addr)
	if !ok {
		return
	}
	e.addresses.Remove(f.setRemote(a.copy()))
}

func (e *Engine) FilterReuse(ref engine.Ref) bool {
	f, ok := e.filters.Get(ref)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reuse
}

func (e *Engine) FilterSetReuse(ref engine.Ref, enabled bool) {
	if f, ok := e.filters.Get(ref); ok {
		f.mu.Lock()
		f.reuse = enabled
		f.mu.Unlock()
	}
}

func (e *Engine) FilterClose(ref engine.Ref) {
	e.filters.Remove(ref)
}
