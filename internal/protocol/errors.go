package protocol

import "errors"

var (
	ErrUnknownCodec      = errors.New("protocol: unknown codec")
	ErrMissingMsg        = errors.New("protocol: envelope missing msg")
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")
)
