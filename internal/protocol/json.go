package protocol

import (
	"encoding/json"
	"fmt"
)

type jsonCodec struct{}

type jsonEnvelope struct {
	Msg  string          `json:"msg"`
	Req  *uint32         `json:"req,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JSON returns the codec browsers use for native messaging.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return CodecJSON }

func (jsonCodec) Marshal(v any) (Raw, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Raw(b), nil
}

func (jsonCodec) Unmarshal(data Raw, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) EncodeEnvelope(env Envelope) ([]byte, error) {
	if env.Msg == "" && env.Req == nil {
		return nil, ErrMissingMsg
	}
	return json.Marshal(jsonEnvelope{Msg: env.Msg, Req: env.Req, Data: json.RawMessage(env.Data)})
}

func (jsonCodec) DecodeEnvelope(b []byte) (Envelope, error) {
	var raw jsonEnvelope
	if err := json.Unmarshal(b, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return Envelope{Msg: raw.Msg, Req: raw.Req, Data: Raw(raw.Data)}, nil
}
