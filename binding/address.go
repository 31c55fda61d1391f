package binding

import (
	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// Address wraps an engine network address.
type Address struct {
	lib *Library
	ref engine.Ref
}

// NewAddress creates an empty address.
func (l *Library) NewAddress() *Address {
	return &Address{lib: l, ref: l.eng.NewAddress()}
}

// ResolveAddress creates an address from "host[:port]". Unless blocking is
// set, resolution continues in the background; see Ready.
func (l *Library) ResolveAddress(name string, blocking bool) (*Address, error) {
	ref := l.eng.NewAddressName(name, blocking)
	if ref == 0 {
		return nil, errors.InvalidInput(errors.PhaseEngine, "invalid address "+name)
	}
	return &Address{lib: l, ref: ref}, nil
}

func (a *Address) Ref() engine.Ref { return a.ref }
func (a *Address) wrapper()        {}

// Copy returns an independent copy of the address.
func (a *Address) Copy() *Address {
	return &Address{lib: a.lib, ref: a.lib.eng.AddressCopy(a.ref)}
}

func (a *Address) Port() int {
	return a.lib.eng.AddressPort(a.ref)
}

func (a *Address) SetPort(port int) *Address {
	a.lib.eng.AddressSetPort(a.ref, port)
	return a
}

// Ready reports whether name resolution has completed.
func (a *Address) Ready() bool {
	return a.lib.eng.AddressReady(a.ref)
}

func (a *Address) String() string {
	return a.lib.eng.AddressString(a.ref)
}

func (a *Address) Close() {
	a.lib.eng.AddressClose(a.ref)
}
