package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
)

// DialOptions configures an outbound KCP-backed channel opened by the
// guest side of a rendezvous.
type DialOptions struct {
	RemoteAddr string
	PreShared  string
	Crypt      string // cipher name, see SelectBlockCrypt
	Compress   bool
	Class      NetworkClass

	DataShard, ParityShard int
	MTU                    int
	SndWnd, RcvWnd         int
	NoDelay, Interval      int
	Resend, NoCongestion   int
}

// DefaultDialOptions is the low-latency ("fast") KCP tuning profile.
func DefaultDialOptions(remoteAddr, preShared string) DialOptions {
	return DialOptions{
		RemoteAddr:  remoteAddr,
		PreShared:   preShared,
		Crypt:       "aes",
		Compress:    true,
		DataShard:   10,
		ParityShard: 3,
		MTU:         1350,
		SndWnd:      128,
		RcvWnd:      512,
		NoDelay:     0,
		Interval:    30,
		Resend:      2,
		NoCongestion: 1,
	}
}

// Dial opens an outbound reliable-ordered datagram channel to a peer
// reachable through the rendezvous broker's relay address.
func Dial(opts DialOptions) (Channel, error) {
	key := DeriveKey(opts.PreShared)
	block, _ := SelectBlockCrypt(opts.Crypt, key)

	sess, err := kcp.DialWithOptions(opts.RemoteAddr, block, opts.DataShard, opts.ParityShard)
	if err != nil {
		return nil, errors.Wrap(err, "dial kcp")
	}
	configureSession(sess, opts)

	var conn net.Conn = sess
	if opts.Compress {
		conn = NewCompStream(sess)
	}

	const queueDepth = 4096
	return newConnChannel(conn, queueDepth, queueDepth), nil
}

// ListenOptions configures an inbound KCP listener opened by the host
// side of a rendezvous.
type ListenOptions struct {
	ListenAddr string
	PreShared  string
	Crypt      string
	Compress   bool

	DataShard, ParityShard int
}

// Listener accepts inbound channels for a registered rendezvous code.
type Listener struct {
	kcpListener *kcp.Listener
	compress    bool
}

// Listen binds a KCP listener on opts.ListenAddr and returns a Listener
// that yields one Channel per accepted connection. It does not register
// anything with a broker; the caller registers Listener.Addr itself.
func Listen(opts ListenOptions) (*Listener, error) {
	key := DeriveKey(opts.PreShared)
	block, _ := SelectBlockCrypt(opts.Crypt, key)

	l, err := kcp.ListenWithOptions(opts.ListenAddr, block, opts.DataShard, opts.ParityShard)
	if err != nil {
		return nil, errors.Wrap(err, "listen kcp")
	}
	return &Listener{kcpListener: l, compress: opts.Compress}, nil
}

// Accept blocks until a guest dials in, returning the resulting Channel.
func (l *Listener) Accept() (Channel, error) {
	sess, err := l.kcpListener.AcceptKCP()
	if err != nil {
		return nil, errors.Wrap(err, "accept kcp")
	}
	configureAcceptedSession(sess)

	var conn net.Conn = sess
	if l.compress {
		conn = NewCompStream(sess)
	}

	const queueDepth = 4096
	return newConnChannel(conn, queueDepth, queueDepth), nil
}

func (l *Listener) Close() error { return l.kcpListener.Close() }

// Addr returns the address the listener is bound to, for registration
// with the rendezvous broker.
func (l *Listener) Addr() net.Addr { return l.kcpListener.Addr() }

func configureSession(sess *kcp.UDPSession, opts DialOptions) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(opts.NoDelay, opts.Interval, opts.Resend, opts.NoCongestion)
	sess.SetWindowSize(opts.SndWnd, opts.RcvWnd)
	sess.SetMtu(opts.MTU)
	sess.SetACKNoDelay(true)
}

func configureAcceptedSession(sess *kcp.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(0, 30, 2, 1)
	sess.SetWindowSize(128, 512)
}

// ConnectTimeout is how long a receiver waits for its first control
// frame once a dial has succeeded, and how long a sender waits for a
// peer to connect. Time spent on failed dial attempts and their retry
// delays is not counted against it.
const ConnectTimeout = 15 * time.Second
