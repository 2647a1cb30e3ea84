package transport

import "net"

// NewPipe returns two Channel endpoints wired together in-process via
// net.Pipe, standing in for a live rendezvous-negotiated connection in
// tests without any real broker or network hop.
func NewPipe() (a, b Channel) {
	const queueDepth = 4096
	ca, cb := net.Pipe()
	return newConnChannel(ca, queueDepth, queueDepth), newConnChannel(cb, queueDepth, queueDepth)
}
