package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// maxFrameSize guards against a corrupt length prefix trying to allocate an
// unreasonable buffer.
const maxFrameSize = 256 << 20 // 256 MiB, comfortably above the largest chunk

// connChannel adapts any reliable, ordered net.Conn into a Channel by
// framing each message as [1-byte kind][4-byte big-endian length][payload].
// It is the one physical implementation shared by the KCP-backed channel
// and the in-process loopback channel used in tests — mirroring the
// teacher's pattern of layering a small framing/decorator type over a
// plain net.Conn (std/comp.go's CompStream).
type connChannel struct {
	conn net.Conn

	sendQueue chan outboundFrame
	buffered  int64 // atomic

	recv chan Message

	closeOnce sync.Once
	closed    chan struct{}
}

type outboundFrame struct {
	kind Kind
	data []byte
}

// newConnChannel starts the reader/writer goroutines over conn and returns
// the resulting Channel. sendQueueDepth bounds how many not-yet-written
// frames may be enqueued before SendControl/SendBinary block; it is a
// safety backstop, not the flow-control mechanism (that's BufferedAmount
// plus the caller's own watermark discipline).
func newConnChannel(conn net.Conn, sendQueueDepth, recvQueueDepth int) *connChannel {
	c := &connChannel{
		conn:      conn,
		sendQueue: make(chan outboundFrame, sendQueueDepth),
		recv:      make(chan Message, recvQueueDepth),
		closed:    make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

func (c *connChannel) writeLoop() {
	var lenBuf [5]byte
	for {
		select {
		case f := <-c.sendQueue:
			lenBuf[0] = byte(f.kind)
			binary.BigEndian.PutUint32(lenBuf[1:], uint32(len(f.data)))
			if _, err := c.conn.Write(lenBuf[:]); err != nil {
				c.Close("write error")
				return
			}
			if len(f.data) > 0 {
				if _, err := c.conn.Write(f.data); err != nil {
					c.Close("write error")
					return
				}
			}
			atomic.AddInt64(&c.buffered, -int64(len(f.data)))
		case <-c.closed:
			return
		}
	}
}

func (c *connChannel) readLoop() {
	defer close(c.recv)
	var header [5]byte
	for {
		if _, err := io.ReadFull(c.conn, header[:]); err != nil {
			return
		}
		kind := Kind(header[0])
		n := binary.BigEndian.Uint32(header[1:])
		if n > maxFrameSize {
			return
		}
		data := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(c.conn, data); err != nil {
				return
			}
		}
		select {
		case c.recv <- Message{Kind: kind, Data: data}:
		case <-c.closed:
			return
		}
	}
}

func (c *connChannel) enqueue(kind Kind, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("channel closed")
	default:
	}
	atomic.AddInt64(&c.buffered, int64(len(data)))
	select {
	case c.sendQueue <- outboundFrame{kind: kind, data: data}:
		return nil
	case <-c.closed:
		atomic.AddInt64(&c.buffered, -int64(len(data)))
		return errors.New("channel closed")
	}
}

func (c *connChannel) SendControl(data []byte) error { return c.enqueue(KindControl, data) }
func (c *connChannel) SendBinary(data []byte) error  { return c.enqueue(KindBinary, data) }

func (c *connChannel) Frames() <-chan Message { return c.recv }

func (c *connChannel) BufferedAmount() int64 { return atomic.LoadInt64(&c.buffered) }

func (c *connChannel) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *connChannel) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *connChannel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
