package netengine

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/lacewing/engine"
)

// resolveTimeout bounds background name resolution.
const resolveTimeout = 30 * time.Second

type address struct {
	host  string
	ip    net.IP
	ready chan struct{}
	port  int
	mu    sync.Mutex
}

func newAddress(host string, port int) *address {
	a := &address{host: host, port: port, ready: make(chan struct{})}
	if ip := net.ParseIP(host); ip != nil || host == "" {
		a.ip = ip
		close(a.ready)
	}
	return a
}

// parseAddress splits "host[:port]". A bare host keeps port 0.
func parseAddress(name string) (string, int) {
	host, portStr, err := net.SplitHostPort(name)
	if err != nil {
		return name, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

func (a *address) resolve(log *zap.Logger) {
	select {
	case <-a.ready:
		return
	default:
	}
	defer close(a.ready)

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, a.host)
	if err != nil || len(ips) == 0 {
		log.Debug("address resolution failed", zap.String("host", a.host), zap.Error(err))
		return
	}
	a.mu.Lock()
	a.ip = ips[0].IP
	a.mu.Unlock()
}

func (a *address) isReady() bool {
	select {
	case <-a.ready:
		return true
	default:
		return false
	}
}

func (a *address) copy() *address {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := &address{host: a.host, ip: a.ip, port: a.port, ready: make(chan struct{})}
	if a.isReady() {
		close(cp.ready)
	}
	return cp
}

// IP returns the resolved address, or nil.
func (a *address) IP() net.IP {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ip
}

func (a *address) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	host := a.host
	if a.ip != nil {
		host = a.ip.String()
	}
	if a.port == 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(a.port))
}

func (e *Engine) NewAddress() engine.Ref {
	return e.addresses.Insert(newAddress("", 0))
}

func (e *Engine) NewAddressName(name string, blocking bool) engine.Ref {
	host, port := parseAddress(name)
	a := newAddress(host, port)
	if blocking {
		a.resolve(e.log)
	} else {
		go a.resolve(e.log)
	}
	return e.addresses.Insert(a)
}

func (e *Engine) AddressCopy(ref engine.Ref) engine.Ref {
	a, ok := e.addresses.Get(ref)
	if !ok {
		return 0
	}
	return e.addresses.Insert(a.copy())
}

func (e *Engine) AddressPort(ref engine.Ref) int {
	a, ok := e.addresses.Get(ref)
	if !ok {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port
}

func (e *Engine) AddressSetPort(ref engine.Ref, port int) {
	if a, ok := e.addresses.Get(ref); ok {
		a.mu.Lock()
		a.port = port
		a.mu.Unlock()
	}
}

func (e *Engine) AddressReady(ref engine.Ref) bool {
	a, ok := e.addresses.Get(ref)
	return ok && a.isReady()
}

func (e *Engine) AddressString(ref engine.Ref) string {
	if a, ok := e.addresses.Get(ref); ok {
		return a.String()
	}
	return ""
}

func (e *Engine) AddressClose(ref engine.Ref) {
	e.addresses.Remove(ref)
}
