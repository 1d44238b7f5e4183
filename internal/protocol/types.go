package protocol

// Raw is a payload still encoded in the codec of the channel it arrived on.
type Raw []byte

// Envelope is the unit exchanged with the peer. Req is set on requests that
// expect a reply and on those replies; it is nil on pushed events, where Msg
// names the event stream.
type Envelope struct {
	Msg  string
	Req  *uint32
	Data Raw
}

// IsReply reports whether e correlates to an outstanding request.
func (e Envelope) IsReply() bool {
	return e.Req != nil
}

// RequestID returns a pointer suitable for Envelope.Req.
func RequestID(id uint32) *uint32 {
	return &id
}
