package binding

import (
	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// Token authorizes wrapping a handle the engine supplied during dispatch.
// Only the zero Token can be constructed outside this package, and the zero
// Token is never accepted.
type Token struct {
	key *tokenKey
}

type tokenKey struct{ _ byte }

var sealedKey = &tokenKey{}

var internal = Token{key: sealedKey}

func (t Token) sealed() bool {
	return t.key != nil && t.key == sealedKey
}

// Wrapper is implemented by every object wrapping an engine handle.
type Wrapper interface {
	Ref() engine.Ref
	wrapper()
}

// WrapRequest returns the request wrapper for ref on ws.
func WrapRequest(tok Token, ws *Webserver, ref engine.Ref) (*Request, error) {
	if !tok.sealed() || ws == nil {
		return nil, errors.InvalidParameters(errors.PhaseWrap, "request")
	}
	return ws.requests.wrap(ws, ref)
}

// WrapError returns an error wrapper for ref.
func WrapError(tok Token, lib *Library, ref engine.Ref) (*Error, error) {
	if !tok.sealed() || lib == nil {
		return nil, errors.InvalidParameters(errors.PhaseWrap, "error")
	}
	if ref == 0 || !lib.eng.Valid(ref) {
		return nil, errors.InvalidHandle(errors.PhaseWrap, "error", ref)
	}
	return &Error{lib: lib, ref: ref}, nil
}

// WrapAddress returns an address wrapper for ref.
func WrapAddress(tok Token, lib *Library, ref engine.Ref) (*Address, error) {
	if !tok.sealed() || lib == nil {
		return nil, errors.InvalidParameters(errors.PhaseWrap, "address")
	}
	if ref == 0 || !lib.eng.Valid(ref) {
		return nil, errors.InvalidHandle(errors.PhaseWrap, "address", ref)
	}
	return &Address{lib: lib, ref: ref}, nil
}

// WrapFilter returns a filter wrapper for ref.
func WrapFilter(tok Token, lib *Library, ref engine.Ref) (*Filter, error) {
	if !tok.sealed() || lib == nil {
		return nil, errors.InvalidParameters(errors.PhaseWrap, "filter")
	}
	if ref == 0 || !lib.eng.Valid(ref) {
		return nil, errors.InvalidHandle(errors.PhaseWrap, "filter", ref)
	}
	return &Filter{lib: lib, ref: ref}, nil
}
