package session

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelUnavailable is returned before anything is allocated when a
	// send is attempted while the channel is not connected.
	ErrChannelUnavailable = errors.New("session: channel unavailable")
	// ErrDisconnected fails every request pending when the channel closed.
	ErrDisconnected = errors.New("session: disconnected")
	// ErrClosed fails pending requests on shutdown. It matches ErrDisconnected.
	ErrClosed = fmt.Errorf("%w: manager closed", ErrDisconnected)

	// ErrPending is reported by Future.Result before the future completes.
	ErrPending = errors.New("session: request pending")

	ErrRequestTimeout   = errors.New("session: request timeout")
	ErrIDSpaceExhausted = errors.New("session: request id space exhausted")
	ErrManagerStarted   = errors.New("session: manager already started")
)
