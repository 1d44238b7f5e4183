package protocol

import (
	"fmt"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

type cborEnvelope struct {
	Msg  string          `cbor:"msg"`
	Req  *uint32         `cbor:"req,omitempty"`
	Data cbor.RawMessage `cbor:"data,omitempty"`
}

// CBOR returns a deterministic CBOR codec for helpers that negotiate it
// instead of JSON.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	// Untyped maps decode with string keys so payloads re-encode as JSON.
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) Name() string { return CodecCBOR }

func (c cborCodec) Marshal(v any) (Raw, error) {
	b, err := c.enc.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Raw(b), nil
}

func (c cborCodec) Unmarshal(data Raw, v any) error {
	return c.dec.Unmarshal(data, v)
}

func (c cborCodec) EncodeEnvelope(env Envelope) ([]byte, error) {
	if env.Msg == "" && env.Req == nil {
		return nil, ErrMissingMsg
	}
	return c.enc.Marshal(cborEnvelope{Msg: env.Msg, Req: env.Req, Data: cbor.RawMessage(env.Data)})
}

func (c cborCodec) DecodeEnvelope(b []byte) (Envelope, error) {
	var raw cborEnvelope
	if err := c.dec.Unmarshal(b, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return Envelope{Msg: raw.Msg, Req: raw.Req, Data: Raw(raw.Data)}, nil
}
