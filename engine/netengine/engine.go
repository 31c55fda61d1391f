package netengine

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/resource"
)

// Version is reported by Engine.Version and sent as the Server header.
const Version = "liblacewing 0.5.4 (go)"

// Default session settings used when Config.Sessions is nil.
const (
	DefaultSessionCapacity = 1024
	DefaultSessionTTL      = 30 * time.Minute
)

// MaxBodySize caps the request body read before dispatch.
const MaxBodySize = 32 << 20

// Config holds configuration for engine creation
type Config struct {
	// Sessions stores request sessions. Defaults to an in-memory store.
	Sessions SessionStore

	// Logger receives engine diagnostics. Defaults to engine.Logger().
	Logger *zap.Logger
}

// Engine implements engine.Engine over net/http.
type Engine struct {
	engine.OSGlobals

	table      *resource.UnifiedTable
	pumps      *resource.Typed[*pump]
	webservers *resource.Typed[*webserver]
	requests   *resource.Typed[*request]
	addresses  *resource.Typed[*address]
	filters    *resource.Typed[*filter]
	errs       *resource.Typed[*errorValue]
	sessions   SessionStore
	log        *zap.Logger
	closed     atomic.Bool
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine with default configuration.
func New() *Engine {
	return NewWithConfig(nil)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(cfg *Config) *Engine {
	table := resource.NewTable()
	e := &Engine{
		OSGlobals:  engine.OSGlobals{VersionString: Version},
		table:      table,
		pumps:      resource.NewTyped[*pump](table, resource.KindPump),
		webservers: resource.NewTyped[*webserver](table, resource.KindWebserver),
		requests:   resource.NewTyped[*request](table, resource.KindRequest),
		addresses:  resource.NewTyped[*address](table, resource.KindAddress),
		filters:    resource.NewTyped[*filter](table, resource.KindFilter),
		errs:       resource.NewTyped[*errorValue](table, resource.KindError),
		log:        engine.Logger(),
	}
	if cfg != nil {
		e.sessions = cfg.Sessions
		if cfg.Logger != nil {
			e.log = cfg.Logger
		}
	}
	if e.sessions == nil {
		e.sessions = NewMemoryStore(DefaultSessionCapacity, DefaultSessionTTL)
	}
	table.Subscribe(resource.ObserverFunc(e.dropped))
	return e
}

// dropped removes the addresses a request or filter handed out.
func (e *Engine) dropped(ev resource.Event) {
	var owned engine.Ref
	switch v := ev.Value.(type) {
	case *request:
		owned = v.releaseAddress()
	case *filter:
		owned = v.releaseRemote()
	}
	if owned != 0 {
		e.addresses.Remove(owned)
	}
}

func (e *Engine) Valid(ref engine.Ref) bool {
	return e.table.Valid(ref)
}

// Sessions returns the session store.
func (e *Engine) Sessions() SessionStore {
	return e.sessions
}

// Close unhosts every webserver, stops every pump and closes the session
// store.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.table.Close(); err != nil {
		return err
	}
	return e.sessions.Close()
}

// truthy interprets a callback result the way script handlers expect.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}
