package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/protocol"
	"github.com/aerodrop/aerodrop/internal/session/broker"
	"github.com/aerodrop/aerodrop/internal/sink"
	"github.com/aerodrop/aerodrop/internal/transport"
)

// ReceiverConfig configures one run of the receiving role.
type ReceiverConfig struct {
	Code      string // rendezvous code to resolve and dial
	PreShared string
	Crypt     string
	Compress  bool

	DataShard, ParityShard int
	MTU                    int
	SndWnd, RcvWnd         int

	Broker      broker.Broker
	SinkFactory sink.Factory
}

// Receiver runs the receiving role of one transfer: resolve the code,
// dial the peer with retry, negotiate (fresh accept or resume), and
// drive frames into the sink until the session reaches a terminal
// phase.
//
// A Receiver is reusable across reconnect attempts within the same
// process: after Run returns because the channel was lost mid-transfer,
// the retained manifest and completed-file set make the next Run call
// resume-eligible rather than starting over.
type Receiver struct {
	cfg ReceiverConfig

	prior          *manifest.Manifest
	completed      map[int]bool
	resumeOffset   int64
	resumeSeekable bool

	Session *protocol.Session

	snapMu sync.Mutex
	snap   Snapshot
}

// NewReceiver builds a Receiver ready to Run.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	return &Receiver{cfg: cfg}
}

// Snapshot returns a concurrency-safe point-in-time view, for a caller
// running on a goroutine other than the one driving Run/negotiate.
// Before a peer connects it reports a zero Snapshot.
func (r *Receiver) Snapshot() Snapshot {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	return r.snap
}

func (r *Receiver) updateSnapshot() {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	r.snap = Snapshot{
		Phase:          r.Session.Phase.String(),
		FileIndex:      r.Session.FileIndex,
		BytesDelivered: r.Session.BytesDelivered,
		FailReason:     string(r.Session.FailReason),
	}
}

// SeekableResume marks that the configured sink policy can honour a
// mid-file byte offset on resume (a DirectSeekable sink), and records
// the offset already written for the file in progress when the channel
// was lost. Callers using a non-seekable sink never need to call this:
// the receiver then always resumes files at offset 0, matching the
// spec's resolution that a non-seekable receiver must request off=0.
func (r *Receiver) SeekableResume(offset int64) {
	r.resumeSeekable = true
	r.resumeOffset = offset
}

// Run dials the peer and drives one negotiation/streaming pass. It
// returns once the session reaches a terminal phase, the retry budget
// is exhausted, or ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	relayAddr, err := r.cfg.Broker.Resolve(r.cfg.Code)
	if err != nil {
		return errors.Wrap(err, "resolve rendezvous code")
	}

	ch, err := r.dialWithRetry(ctx, relayAddr)
	if err != nil {
		return err
	}

	return r.negotiate(ctx, ch)
}

func (r *Receiver) dialWithRetry(ctx context.Context, relayAddr string) (transport.Channel, error) {
	relay, parseErr := transport.ParseRelayAddr(relayAddr)

	var lastErr error
	for attempt := 0; attempt < PeerUnavailableRetries; attempt++ {
		addr := relayAddr
		if parseErr == nil {
			addr = relay.Address(attempt)
		}

		ch, err := transport.Dial(transport.DialOptions{
			RemoteAddr:   addr,
			PreShared:    r.cfg.PreShared,
			Crypt:        r.cfg.Crypt,
			Compress:     r.cfg.Compress,
			DataShard:    r.cfg.DataShard,
			ParityShard:  r.cfg.ParityShard,
			MTU:          r.cfg.MTU,
			SndWnd:       r.cfg.SndWnd,
			RcvWnd:       r.cfg.RcvWnd,
			Interval:     30,
			Resend:       2,
			NoCongestion: 1,
		})
		if err == nil {
			return ch, nil
		}
		lastErr = err

		select {
		case <-time.After(PeerUnavailableDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, errors.Wrap(lastErr, "peer unavailable")
}

func (r *Receiver) negotiate(ctx context.Context, ch transport.Channel) error {
	mgr := sink.NewManager(r.cfg.SinkFactory)
	receiver := protocol.NewReceiver(ch, mgr.Hooks(), r.prior)
	for i, done := range r.completed {
		if done {
			receiver.Session.MarkComplete(i)
		}
	}
	r.Session = receiver.Session

	firstFrame := true
	deadline := time.After(transport.ConnectTimeout)

	for {
		select {
		case msg, ok := <-ch.Frames():
			if !ok {
				receiver.Session.Fail(protocol.ReasonChannelClosed)
				r.retain(receiver)
				r.updateSnapshot()
				return nil
			}
			if err := r.dispatch(receiver, mgr, msg); err != nil {
				r.retain(receiver)
				r.updateSnapshot()
				return err
			}
			firstFrame = false
		case <-deadline:
			if firstFrame {
				receiver.Session.Fail(protocol.ReasonTimeout)
				_ = ch.Close("connect timeout")
				r.updateSnapshot()
				return errors.New("timed out waiting for manifest")
			}
		case <-ctx.Done():
			receiver.Cancel("context cancelled")
			r.retain(receiver)
			r.updateSnapshot()
			return ctx.Err()
		}
		r.updateSnapshot()

		if receiver.Session.Phase.Terminal() {
			r.retain(receiver)
			_ = ch.Close("session complete")
			return nil
		}
	}
}

func (r *Receiver) dispatch(receiver *protocol.Receiver, mgr *sink.Manager, msg transport.Message) error {
	if msg.Kind == transport.KindBinary {
		return receiver.HandleBinary(msg.Data)
	}
	frame, err := protocol.Decode(msg.Data)
	if err != nil {
		return errors.Wrap(err, "decode control frame")
	}
	if frame.Type == protocol.TypeManifest {
		if err := receiver.HandleFrame(frame); err != nil {
			return err
		}
		return r.respondToManifest(receiver, mgr)
	}
	return receiver.HandleFrame(frame)
}

func (r *Receiver) respondToManifest(receiver *protocol.Receiver, mgr *sink.Manager) error {
	if fileIndex, eligible := receiver.ResumeEligible(); eligible {
		offset := int64(0)
		if r.resumeSeekable {
			offset = r.resumeOffset
		}
		mgr.SeedResume(fileIndex, offset)
		return receiver.Resume(fileIndex, offset)
	}
	return receiver.Accept()
}

// retain snapshots the manifest and completed set so a subsequent Run
// call (a reconnect within the same process) can resume.
func (r *Receiver) retain(receiver *protocol.Receiver) {
	m := receiver.Session.Manifest
	if len(m.Files) == 0 {
		return
	}
	r.prior = &m
	completed := make(map[int]bool, len(receiver.Session.Completed))
	for k, v := range receiver.Session.Completed {
		completed[k] = v
	}
	r.completed = completed
}
