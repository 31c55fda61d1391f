package netengine

import (
	"sync"

	"github.com/wippyai/lacewing/engine"
)

// errorValue is an engine error message built up with add.
type errorValue struct {
	text string
	mu   sync.Mutex
}

// add prepends text, separated from what was there by " - ".
func (v *errorValue) add(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.text == "" {
		v.text = text
		return
	}
	v.text = text + " - " + v.text
}

func (v *errorValue) String() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text
}

func (e *Engine) NewError() engine.Ref {
	return e.errs.Insert(&errorValue{})
}

func (e *Engine) ErrorClone(ref engine.Ref) engine.Ref {
	v, ok := e.errs.Get(ref)
	if !ok {
		return 0
	}
	return e.errs.Insert(&errorValue{text: v.String()})
}

func (e *Engine) ErrorAdd(ref engine.Ref, text string) {
	if v, ok := e.errs.Get(ref); ok {
		v.add(text)
	}
}

func (e *Engine) ErrorString(ref engine.Ref) string {
	if v, ok := e.errs.Get(ref); ok {
		return v.String()
	}
	return ""
}

func (e *Engine) ErrorClose(ref engine.Ref) {
	e.errs.Remove(ref)
}
