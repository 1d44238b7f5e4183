// Package session owns the single channel to the download helper and the
// request/response multiplexing layered on it.
//
// Ownership boundary:
// - Registry: correlation ids and not-yet-answered requests
// - EventHub: subscriptions to unsolicited peer events
// - Manager: connect, disconnect detection, reconnect, inbound routing
// - reconnect delay policy (NextBackoffDelay)
//
// Invariants:
// - the registry is empty whenever the manager is disconnected
// - nothing is sent unless the manager is connected
// - ids are never reused for the lifetime of a Registry
// - subscriptions survive reconnects
package session
