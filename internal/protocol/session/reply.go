package session

import (
	"time"

	"github.com/danmuck/paisync/internal/protocol/frame"
)

// Reply is a reply frame that matched the expected code.
type Reply struct {
	Frame   frame.Frame
	Latency time.Duration
}

func (r *Reply) Code() uint8 {
	return r.Frame.Code()
}

// Outcome is the full result of one request/reply exchange.
type Outcome struct {
	Received bool
	Matched  bool
	// Raw is the wire encoding of the reply, set only when Received.
	Raw     []byte
	Code    uint8
	Latency time.Duration
	frame   frame.Frame
}

// Reply returns the matched reply, or nil for mismatch, timeout and
// every other failure.
func (o Outcome) Reply() *Reply {
	if !o.Received || !o.Matched {
		return nil
	}
	return &Reply{Frame: o.frame, Latency: o.Latency}
}

// Event is an unsolicited frame pushed by the panel.
type Event struct {
	Frame      frame.Frame
	ReceivedAt time.Time
}
