package netengine

import (
	"context"
	"sync"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// pump is a FIFO of work items run on whichever goroutine ticks it.
type pump struct {
	queue []func()
	wake  chan struct{}
	exit  chan struct{}
	// done is closed once the pump is closed; posted work will never run.
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func newPump() *pump {
	return &pump{
		wake: make(chan struct{}, 1),
		exit: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// post queues fn. It reports false once the pump is closed.
func (p *pump) post(fn func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, fn)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// tick runs the work queued at entry. Work posted meanwhile waits for the
// next tick.
func (p *pump) tick() {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}

func (p *pump) loop(ctx context.Context) error {
	for {
		p.tick()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.exit:
			return nil
		case <-p.wake:
		}
	}
}

func (p *pump) postExit() {
	select {
	case p.exit <- struct{}{}:
	default:
	}
}

// Drop closes the pump when its handle is removed.
func (p *pump) Drop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.queue = nil
	p.mu.Unlock()
	p.postExit()
}

func (e *Engine) pump(ref engine.Ref) (*pump, error) {
	p, ok := e.pumps.Get(ref)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseEngine, "eventpump", ref)
	}
	return p, nil
}

func (e *Engine) NewPump() (engine.Ref, error) {
	ref := e.pumps.Insert(newPump())
	if ref == 0 {
		return 0, errors.Unsupported(errors.PhaseEngine, "engine closed")
	}
	return ref, nil
}

func (e *Engine) PumpTick(ref engine.Ref) error {
	p, err := e.pump(ref)
	if err != nil {
		return err
	}
	p.tick()
	return nil
}

func (e *Engine) PumpStartEventLoop(ctx context.Context, ref engine.Ref) error {
	p, err := e.pump(ref)
	if err != nil {
		return err
	}
	return p.loop(ctx)
}

func (e *Engine) PumpPostEventLoopExit(ref engine.Ref) error {
	p, err := e.pump(ref)
	if err != nil {
		return err
	}
	p.postExit()
	return nil
}

// Post queues fn on the pump behind ref. Shells use it to run script code
// on the dispatch goroutine.
func (e *Engine) Post(ref engine.Ref, fn func()) bool {
	p, err := e.pump(ref)
	if err != nil {
		return false
	}
	return p.post(fn)
}

func (e *Engine) PumpClose(ref engine.Ref) error {
	if _, ok := e.pumps.Remove(ref); !ok {
		return errors.InvalidHandle(errors.PhaseEngine, "eventpump", ref)
	}
	return nil
}
