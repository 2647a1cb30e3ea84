package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/protocol"
	"github.com/aerodrop/aerodrop/internal/pump"
	"github.com/aerodrop/aerodrop/internal/session/broker"
	"github.com/aerodrop/aerodrop/internal/transport"
)

// SenderConfig configures one run of the sending role.
type SenderConfig struct {
	Code      string // rendezvous code to register
	PreShared string
	Crypt     string
	Compress  bool
	// ListenAddr is the local address to bind, e.g. ":0" for an ephemeral
	// port. The bound address is what gets registered with Broker.
	ListenAddr             string
	DataShard, ParityShard int

	Manifest manifest.Manifest
	// ExpiresAt rejects any inbound dial after this instant with
	// REJECT{expired}. Zero means the rendezvous never expires.
	ExpiresAt time.Time

	// ClassOverride forces the LAN/WAN tunable profile instead of
	// classifying the peer's dialed address. Nil uses the classifier.
	ClassOverride *transport.NetworkClass

	Broker broker.Broker
	Open   pump.FileOpener
}

// Sender runs the sending role of one transfer: register the code,
// accept one inbound channel, negotiate, and drive the data pump.
type Sender struct {
	cfg SenderConfig

	// Session is nil until a peer has connected and the protocol state
	// machine is constructed; callers polling for UI purposes should
	// treat a nil Session as "awaiting peer."
	Session *protocol.Session

	snapMu sync.Mutex
	snap   Snapshot

	addrMu    sync.Mutex
	relayAddr string
}

// RelayAddr returns the address Run bound and registered with the
// broker, once Run has reached that point; empty before then. A caller
// using broker.Direct (no real rendezvous service) needs this to show
// the operator what to share with the receiving peer, since with that
// broker the registered code and the dialable address are the same
// string.
func (s *Sender) RelayAddr() string {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.relayAddr
}

// Snapshot returns a concurrency-safe point-in-time view, for a caller
// (stats sampler, CLI progress line) running on a goroutine other than
// the one driving Run/negotiate. Before a peer connects it reports a
// zero Snapshot.
func (s *Sender) Snapshot() Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

func (s *Sender) updateSnapshot(producer *pump.Producer) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.snap = Snapshot{
		Phase:          s.Session.Phase.String(),
		FileIndex:      s.Session.FileIndex,
		BytesDelivered: producer.BytesSent(),
		FailReason:     string(s.Session.FailReason),
	}
}

// NewSender builds a Sender ready to Run.
func NewSender(cfg SenderConfig) *Sender {
	return &Sender{cfg: cfg}
}

// Run registers the rendezvous code, accepts one inbound channel, and
// drives the transfer to completion, cancellation, or failure. It
// returns once the session reaches a terminal phase or ctx is done.
func (s *Sender) Run(ctx context.Context) error {
	listenAddr := s.cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = ":0"
	}
	listener, err := transport.Listen(transport.ListenOptions{
		ListenAddr:  listenAddr,
		PreShared:   s.cfg.PreShared,
		Crypt:       s.cfg.Crypt,
		Compress:    s.cfg.Compress,
		DataShard:   s.cfg.DataShard,
		ParityShard: s.cfg.ParityShard,
	})
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	defer listener.Close()

	relayAddr := listener.Addr().String()
	s.addrMu.Lock()
	s.relayAddr = relayAddr
	s.addrMu.Unlock()
	if err := s.cfg.Broker.Register(s.cfg.Code, relayAddr); err != nil {
		return errors.Wrap(err, "register rendezvous code")
	}
	defer s.cfg.Broker.Release(s.cfg.Code)

	ch, err := s.acceptWithTimeout(ctx, listener)
	if err != nil {
		return err
	}

	if !s.cfg.ExpiresAt.IsZero() && time.Now().After(s.cfg.ExpiresAt) {
		s.rejectExpired(ch)
		return errors.New("rendezvous code expired")
	}

	return s.negotiate(ctx, ch)
}

func (s *Sender) acceptWithTimeout(ctx context.Context, listener *transport.Listener) (transport.Channel, error) {
	type result struct {
		ch  transport.Channel
		err error
	}
	done := make(chan result, 1)
	go func() {
		ch, err := listener.Accept()
		done <- result{ch, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "accept")
		}
		return r.ch, nil
	case <-time.After(transport.ConnectTimeout):
		return nil, errors.New("timed out waiting for peer to connect")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Sender) rejectExpired(ch transport.Channel) {
	data, err := protocol.Encode(protocol.TypeReject, protocol.RejectPayload{Reason: "expired"})
	if err == nil {
		_ = ch.SendControl(data)
	}
	_ = ch.Close("expired")
}

// negotiate drives the protocol/pump pair over ch as the single event
// loop for this session: every call into protocol.Sender, and every
// reaction to a completed or failed producer run, happens here rather
// than from the producer's own goroutine, so Session's non-atomic
// fields only ever mutate from this one goroutine.
func (s *Sender) negotiate(ctx context.Context, ch transport.Channel) error {
	class := transport.ClassifyAddr(ch.RemoteAddr())
	if s.cfg.ClassOverride != nil {
		class = *s.cfg.ClassOverride
	}
	tunables := transport.TunablesFor(class)

	var sender *protocol.Sender
	producer := pump.New(s.cfg.Manifest, ch, tunables, s.cfg.Open, func() uint64 { return sender.Session.Epoch() })

	type producerResult struct {
		epoch     uint64
		completed bool
		err       error
	}
	producerDone := make(chan producerResult, 1)

	sender = protocol.NewSender(ch, s.cfg.Manifest, func(epoch uint64, fileIndex int, byteOffset int64) {
		go func() {
			completed, err := producer.Run(epoch, fileIndex, byteOffset)
			producerDone <- producerResult{epoch: epoch, completed: completed, err: err}
		}()
	})
	s.Session = sender.Session

	if err := sender.Open(); err != nil {
		return errors.Wrap(err, "open negotiation")
	}
	s.updateSnapshot(producer)

	for {
		select {
		case msg, ok := <-ch.Frames():
			if !ok {
				sender.Session.Fail(protocol.ReasonChannelClosed)
				s.updateSnapshot(producer)
				return nil
			}
			if err := s.dispatch(sender, msg); err != nil {
				s.updateSnapshot(producer)
				return err
			}
		case res := <-producerDone:
			if res.err != nil {
				sender.ProducerFailed(res.epoch)
			} else if res.completed {
				if err := sender.ProducerCompleted(res.epoch); err != nil {
					s.updateSnapshot(producer)
					return err
				}
			}
		case <-ctx.Done():
			sender.Cancel("context cancelled")
			s.updateSnapshot(producer)
			return ctx.Err()
		}
		s.updateSnapshot(producer)

		if sender.Session.Phase.Terminal() {
			_ = ch.Close("session complete")
			return nil
		}
	}
}

func (s *Sender) dispatch(sender *protocol.Sender, msg transport.Message) error {
	if msg.Kind != transport.KindControl {
		// a stray binary frame before/after streaming is not meaningful
		// on the sender side; drop it.
		return nil
	}
	frame, err := protocol.Decode(msg.Data)
	if err != nil {
		return errors.Wrap(err, "decode control frame")
	}
	return sender.HandleFrame(frame)
}
