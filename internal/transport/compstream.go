package transport

import (
	"net"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// CompStream is a net.Conn wrapper that compresses data with snappy. A
// session negotiates compression independently of the channel's framing;
// wrapping happens before a connChannel is built on top so the framing
// layer never sees the difference.
type CompStream struct {
	conn net.Conn
	w    *snappy.Writer
	r    *snappy.Reader
}

func (c *CompStream) Read(p []byte) (n int, err error) {
	return c.r.Read(p)
}

func (c *CompStream) Write(p []byte) (n int, err error) {
	if _, err := c.w.Write(p); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := c.w.Flush(); err != nil {
		return 0, errors.WithStack(err)
	}
	return len(p), nil
}

func (c *CompStream) Close() error { return c.conn.Close() }

func (c *CompStream) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *CompStream) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *CompStream) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *CompStream) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *CompStream) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// NewCompStream wraps conn with snappy compression in both directions.
func NewCompStream(conn net.Conn) *CompStream {
	return &CompStream{
		conn: conn,
		w:    snappy.NewBufferedWriter(conn),
		r:    snappy.NewReader(conn),
	}
}
