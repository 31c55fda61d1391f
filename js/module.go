package js

import (
	"context"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// ModuleName is the name scripts pass to require.
const ModuleName = "liblacewing"

// GlobalName is the global Install defines.
const GlobalName = "Lacewing"

// Config holds configuration for a Module
type Config struct {
	// GlobalPump creates one event pump that webservers constructed without
	// an EventPump argument dispatch on.
	GlobalPump bool

	// Reporter receives handler failures, including script exceptions.
	Reporter binding.ErrorReporter

	// Logger is used for diagnostics. Defaults to the package logger.
	Logger *zap.Logger

	// Context bounds EventPump.startEventLoop. Defaults to context.Background.
	Context context.Context
}

// Module is the Lacewing API bound to one goja runtime.
type Module struct {
	vm       *goja.Runtime
	lib      *binding.Library
	pump     *binding.EventPump
	log      *zap.Logger
	ctx      context.Context
	key      *goja.Symbol
	exports  *goja.Object
	protos   map[string]*goja.Object
	requests map[*binding.Request]*goja.Object
}

// Install defines the Lacewing global on vm.
func Install(vm *goja.Runtime, eng engine.Engine) (*Module, error) {
	return InstallWithConfig(vm, eng, nil)
}

// InstallWithConfig defines the Lacewing global on vm.
func InstallWithConfig(vm *goja.Runtime, eng engine.Engine, cfg *Config) (*Module, error) {
	m, err := newModule(vm, eng, cfg)
	if err != nil {
		return nil, err
	}
	if err := vm.Set(GlobalName, m.exports); err != nil {
		return nil, errors.Wrap(errors.PhaseScript, errors.KindInstantiation, err, "define "+GlobalName)
	}
	return m, nil
}

// Register makes require(ModuleName) build a Module for the requiring
// runtime.
func Register(r *require.Registry, eng engine.Engine) {
	RegisterWithConfig(r, eng, nil)
}

// RegisterWithConfig is Register with a custom configuration.
func RegisterWithConfig(r *require.Registry, eng engine.Engine, cfg *Config) {
	r.RegisterNativeModule(ModuleName, func(vm *goja.Runtime, module *goja.Object) {
		m, err := newModule(vm, eng, cfg)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		_ = module.Set("exports", m.exports)
	})
}

// Register makes require(ModuleName) return this module's exports.
func (m *Module) Register(r *require.Registry) {
	r.RegisterNativeModule(ModuleName, func(vm *goja.Runtime, module *goja.Object) {
		if vm != m.vm {
			panic(vm.NewTypeError("liblacewing is bound to another runtime"))
		}
		_ = module.Set("exports", m.exports)
	})
}

func newModule(vm *goja.Runtime, eng engine.Engine, cfg *Config) (*Module, error) {
	m := &Module{
		vm:       vm,
		log:      Logger(),
		ctx:      context.Background(),
		key:      goja.NewSymbol("lacewing.handle"),
		protos:   make(map[string]*goja.Object),
		requests: make(map[*binding.Request]*goja.Object),
	}
	bcfg := &binding.Config{}
	if cfg != nil {
		if cfg.Logger != nil {
			m.log = cfg.Logger
		}
		if cfg.Context != nil {
			m.ctx = cfg.Context
		}
		bcfg.Reporter = cfg.Reporter
	}
	bcfg.Logger = m.log
	m.lib = binding.NewWithConfig(eng, bcfg)

	if cfg != nil && cfg.GlobalPump {
		pump, err := m.lib.NewEventPump()
		if err != nil {
			return nil, err
		}
		m.pump = pump
	}

	m.exports = vm.NewObject()
	m.defineGlobals()
	m.defineEventPump()
	m.defineError()
	m.defineAddress()
	m.defineFilter()
	m.defineWebserver()
	return m, nil
}

// Runtime returns the runtime the module is bound to.
func (m *Module) Runtime() *goja.Runtime { return m.vm }

// Library returns the binding library scripts operate on.
func (m *Module) Library() *binding.Library { return m.lib }

// Pump returns the global event pump, or nil when Config.GlobalPump was not
// set.
func (m *Module) Pump() *binding.EventPump { return m.pump }

// Exports returns the object scripts see as Lacewing.
func (m *Module) Exports() *goja.Object { return m.exports }

func (m *Module) defineGlobals() {
	set := func(name string, fn func(call goja.FunctionCall) goja.Value) {
		_ = m.exports.Set(name, fn)
	}
	str := func(call goja.FunctionCall) string { return call.Argument(0).String() }

	set("version", func(goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.Version())
	})
	set("lastModified", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(unixTime(m.lib.LastModified(str(call))))
	})
	set("fileExists", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.FileExists(str(call)))
	})
	set("fileSize", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.FileSize(str(call)))
	})
	set("pathExists", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.PathExists(str(call)))
	})
	set("tempPath", func(goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.TempPath())
	})
	set("newTempFile", func(goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.NewTempFile())
	})
	set("guessMimeType", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.GuessMimeType(str(call)))
	})
	set("md5", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.MD5(str(call)))
	})
	set("sha1", func(call goja.FunctionCall) goja.Value {
		return m.vm.ToValue(m.lib.SHA1(str(call)))
	})
}

// class defines a constructor on parent and returns its prototype.
func (m *Module) class(parent *goja.Object, name string, ctor func(call goja.ConstructorCall) *goja.Object) *goja.Object {
	fn := m.vm.ToValue(ctor).(*goja.Object)
	_ = parent.Set(name, fn)
	proto, ok := fn.Get("prototype").(*goja.Object)
	if !ok {
		proto = m.vm.NewObject()
		_ = fn.Set("prototype", proto)
		_ = proto.DefineDataProperty("constructor", fn, goja.FLAG_TRUE, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	m.protos[name] = proto
	return proto
}

// method adds a prototype method. Returning nil yields this.
func (m *Module) method(proto *goja.Object, name string, fn func(call goja.FunctionCall) goja.Value) {
	_ = proto.Set(name, func(call goja.FunctionCall) goja.Value {
		if v := fn(call); v != nil {
			return v
		}
		return call.This
	})
}

func (m *Module) accessor(proto *goja.Object, name string, get func(this goja.Value) goja.Value, set func(this, v goja.Value)) {
	getter := m.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return get(call.This)
	})
	var setter goja.Value
	if set != nil {
		setter = m.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.This, call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = proto.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// box hides a Go value from script property enumeration.
type box struct {
	w any
}

// attach stores w on obj under the module's private symbol.
func (m *Module) attach(obj *goja.Object, w any) *goja.Object {
	_ = obj.DefineDataPropertySymbol(m.key, m.vm.ToValue(&box{w: w}), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	return obj
}

// instance creates an object of class name holding w.
func (m *Module) instance(name string, w any) *goja.Object {
	obj := m.vm.NewObject()
	_ = obj.SetPrototype(m.protos[name])
	return m.attach(obj, w)
}

// unwrap returns the Go value stored on v, if it has type T.
func unwrap[T any](m *Module, v goja.Value) (T, bool) {
	var zero T
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return zero, false
	}
	v = obj.GetSymbol(m.key)
	if v == nil {
		return zero, false
	}
	b, ok := v.Export().(*box)
	if !ok {
		return zero, false
	}
	t, ok := b.w.(T)
	return t, ok
}

// receiver returns the receiver of a method call or throws a TypeError.
func receiver[T any](m *Module, call goja.FunctionCall, class string) T {
	t, ok := unwrap[T](m, call.This)
	if !ok {
		panic(m.vm.NewTypeError("Method called on incompatible receiver; expected " + class))
	}
	return t
}

// throw raises err in the script. Usage errors become TypeErrors.
func (m *Module) throw(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.HasKind(err, errors.KindInvalidParameters),
		errors.HasKind(err, errors.KindInvalidPort),
		errors.HasKind(err, errors.KindUnknownEvent):
		panic(m.vm.NewTypeError(err.Error()))
	default:
		panic(m.vm.NewGoError(err))
	}
}

// toTime accepts a Date or a number of seconds since the epoch.
func toTime(v goja.Value) (time.Time, bool) {
	switch x := v.Export().(type) {
	case time.Time:
		return x, true
	case int64:
		return time.Unix(x, 0), true
	case float64:
		return time.Unix(int64(x), 0), true
	}
	return time.Time{}, false
}

// unixTime returns 0 for the zero time.
func unixTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
