package binding

import (
	"github.com/wippyai/lacewing/engine"
)

// Filter restricts hosting to a local address and port and, optionally,
// to one remote address.
type Filter struct {
	lib *Library
	ref engine.Ref
}

// NewFilter creates an empty filter.
func (l *Library) NewFilter() *Filter {
	return &Filter{lib: l, ref: l.eng.NewFilter()}
}

func (f *Filter) Ref() engine.Ref { return f.ref }
func (f *Filter) wrapper()        {}

// Local returns the local IP the filter binds to.
func (f *Filter) Local() string {
	return f.lib.eng.FilterLocal(f.ref)
}

// SetLocal sets the local address by name, optionally with a port.
func (f *Filter) SetLocal(name string) *Filter {
	f.lib.eng.FilterSetLocal(f.ref, name)
	return f
}

func (f *Filter) LocalPort() int {
	return f.lib.eng.FilterLocalPort(f.ref)
}

func (f *Filter) SetLocalPort(port int) *Filter {
	f.lib.eng.FilterSetLocalPort(f.ref, port)
	return f
}

// Remote returns the remote address, or nil when none is set.
func (f *Filter) Remote() *Address {
	a, err := WrapAddress(internal, f.lib, f.lib.eng.FilterRemote(f.ref))
	if err != nil {
		return nil
	}
	return a
}

// SetRemote restricts clients to the address name resolves to.
func (f *Filter) SetRemote(name string) *Filter {
	f.lib.eng.FilterSetRemote(f.ref, name)
	return f
}

// SetRemoteAddress restricts clients to a.
func (f *Filter) SetRemoteAddress(a *Address) *Filter {
	if a != nil {
		f.lib.eng.FilterSetRemoteAddress(f.ref, a.ref)
	}
	return f
}

// Reuse reports whether the listening socket sets SO_REUSEADDR.
func (f *Filter) Reuse() bool {
	return f.lib.eng.FilterReuse(f.ref)
}

func (f *Filter) SetReuse(enabled bool) *Filter {
	f.lib.eng.FilterSetReuse(f.ref, enabled)
	return f
}

func (f *Filter) Close() {
	f.lib.eng.FilterClose(f.ref)
}
