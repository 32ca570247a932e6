// Package registry is the single source of truth for which garage controller is
// currently active and how to reach it.
//
// The registry keeps an ordered list of devices and a zero-based "current"
// index in a kvstore.Store under two keys ("devices" and "currIndex"), both
// JSON encoded. The format matches what earlier mobile builds wrote, so a
// store exported from the app can be read as is.
//
// # Failure Semantics
//
// Registry methods never return storage errors. A failed read yields an empty
// or zero result; a failed write yields false. Every failure is logged and
// reported to the Notifier so the user sees a non-blocking alert.
//
// # Usage Example
//
//	store, _ := kvstore.Open("file", path)
//	reg := registry.New(store, registry.WithNotifier(printer))
//
//	reg.AddDevice(registry.Device{ConnectionInput: "192.168.1.50"})
//	url := reg.URL() // "http://192.168.1.50"
//
// # Concurrency
//
// A Registry serialises its own read-modify-write cycles with a mutex. Two
// registries (or two processes) over the same store are not coordinated.
package registry
