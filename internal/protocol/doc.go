// Package protocol owns the envelope contract exchanged with the download
// helper and the codecs that put it on the wire.
//
// Ownership boundary:
// - envelope shape {msg, req, data}
// - payload codecs (json, cbor)
// - length-prefixed framing lives in protocol/frame
package protocol
