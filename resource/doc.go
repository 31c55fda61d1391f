// Package resource provides handle management for engine-owned resources.
//
// Engine resources (event pumps, webservers, requests, addresses, filters and
// errors) never cross the binding boundary as Go pointers. The engine stores
// each one in a table and hands out an opaque Handle; wrappers hold only the
// handle.
//
// # Handle Table
//
// The UnifiedTable maps integer handles to Go values:
//
//	table := resource.NewTable()
//
//	// Insert a value, get a handle
//	handle := table.Insert(resource.KindRequest, req)
//
//	// Retrieve value by handle
//	value, ok := table.Get(handle)
//
//	// Remove and get value (finish, disconnect, close)
//	value, ok := table.Remove(handle)
//
// # Type Safety
//
// Handles are typed by Kind. A request handle cannot be used where a filter
// is expected:
//
//	value, ok := table.GetTyped(handle, resource.KindRequest) // ok
//	value, ok := table.GetTyped(handle, resource.KindFilter)  // !ok
//
// Typed[T] narrows a table to a single kind and value type.
//
// # Stale Handles
//
// Slots are reused after Remove, but every handle carries the generation of
// its slot. A handle kept past its Remove never resolves to the slot's next
// occupant; Get simply reports false.
//
// # Observers
//
// Observers are told about every Remove, which lets an owner release the
// resources it handed out:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) { ... }))
//
// Values implementing Dropper are notified when removed or when the table is
// closed. Close does not notify observers.
package resource
