package binding

import (
	"context"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// EventPump drives dispatch. Handlers only run on the goroutine calling Tick
// or StartEventLoop.
type EventPump struct {
	lib *Library
	ref engine.Ref
}

// NewEventPump creates a new engine event pump.
func (l *Library) NewEventPump() (*EventPump, error) {
	ref, err := l.eng.NewPump()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "create event pump")
	}
	return &EventPump{lib: l, ref: ref}, nil
}

func (p *EventPump) Ref() engine.Ref { return p.ref }
func (p *EventPump) wrapper()        {}

// Tick processes pending events and returns.
func (p *EventPump) Tick() error {
	return p.lib.eng.PumpTick(p.ref)
}

// StartEventLoop processes events until PostEventLoopExit is called or ctx
// is done.
func (p *EventPump) StartEventLoop(ctx context.Context) error {
	return p.lib.eng.PumpStartEventLoop(ctx, p.ref)
}

// PostEventLoopExit asks a running event loop to return.
func (p *EventPump) PostEventLoopExit() error {
	return p.lib.eng.PumpPostEventLoopExit(p.ref)
}

func (p *EventPump) Close() error {
	return p.lib.eng.PumpClose(p.ref)
}
