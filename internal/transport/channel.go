// Package transport implements the channel abstraction consumed by the
// protocol core: a reliable, ordered, bidirectional carrier of control
// and binary frames, with application-level flow control exposed via
// BufferedAmount.
package transport

import "net"

// Kind distinguishes a control frame (small structured record) from a
// binary frame (opaque byte buffer). Both kinds share one total order on
// the wire.
type Kind int

const (
	KindControl Kind = iota
	KindBinary
)

func (k Kind) String() string {
	if k == KindControl {
		return "control"
	}
	return "binary"
}

// Message is one inbound frame, tagged with its kind.
type Message struct {
	Kind Kind
	Data []byte
}

// Channel is the transport the protocol core consumes. A
// Channel is safe for concurrent SendControl/SendBinary/BufferedAmount
// calls from one goroutine each; Frames is read by a single consumer.
type Channel interface {
	// SendControl delivers a structured control frame in-order.
	SendControl(data []byte) error
	// SendBinary delivers opaque bytes in-order, interleaved with control
	// frames but preserving the total order across both kinds.
	SendBinary(data []byte) error
	// Frames yields inbound frames in receive order. The channel closes
	// this when the underlying transport is closed or fails.
	Frames() <-chan Message
	// BufferedAmount reports application-queued bytes not yet handed to
	// the network — the basis for the sender pump's flow control.
	BufferedAmount() int64
	// Close tears down the channel. reason is informational only.
	Close(reason string) error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Role distinguishes which side of a rendezvous opened the channel.
type Role int

const (
	RoleHost Role = iota // registers the code
	RoleGuest            // dials the code
)
