package protocol

import (
	"fmt"
	"strings"
)

const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Codec marshals payloads and whole envelopes for one wire encoding.
type Codec interface {
	Name() string
	Marshal(v any) (Raw, error)
	Unmarshal(data Raw, v any) error
	EncodeEnvelope(env Envelope) ([]byte, error)
	DecodeEnvelope(b []byte) (Envelope, error)
}

// CodecByName resolves a configured codec name. Empty selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSON(), nil
	case CodecCBOR:
		return CBOR()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Decode unmarshals raw into a fresh T.
func Decode[T any](c Codec, raw Raw) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	err := c.Unmarshal(raw, &out)
	return out, err
}
