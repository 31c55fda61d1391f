package resource

import "fmt"

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
//
// The low 20 bits hold the slot index plus one, the high 12 bits the slot
// generation.
type Handle uint32

const (
	indexBits = 20
	indexMask = 1<<indexBits - 1
	genMask   = 1<<(32-indexBits) - 1

	// MaxResources is the number of live handles a single table can hold.
	MaxResources = indexMask
)

func makeHandle(index int, gen uint32) Handle {
	return Handle((gen&genMask)<<indexBits | uint32(index+1)&indexMask)
}

func (h Handle) index() int {
	return int(uint32(h)&indexMask) - 1
}

func (h Handle) generation() uint32 {
	return uint32(h) >> indexBits
}

// Kind identifies the type of resource behind a handle.
type Kind uint32

const (
	KindInvalid Kind = iota
	KindPump
	KindWebserver
	KindRequest
	KindAddress
	KindFilter
	KindError
	KindGuest
)

var kindNames = [...]string{
	KindInvalid:   "invalid",
	KindPump:      "eventpump",
	KindWebserver: "webserver",
	KindRequest:   "request",
	KindAddress:   "address",
	KindFilter:    "filter",
	KindError:     "error",
	KindGuest:     "guest",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// Event describes a resource that was removed from a table.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
}

// Observer is notified after a resource is removed from a table.
type Observer interface {
	OnResourceDropped(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnResourceDropped calls f(e).
func (f ObserverFunc) OnResourceDropped(e Event) { f(e) }

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}
