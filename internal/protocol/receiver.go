package protocol

import (
	"github.com/pkg/errors"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/transport"
)

// SinkHooks are the receiver-side effects the protocol state machine
// triggers as frames arrive. The sink package supplies an implementation
// that wires these into an actual file sink and write queue; the state
// machine itself never touches a file handle.
type SinkHooks struct {
	// FileStart prepares the sink for file i (open/seek/reset).
	FileStart func(i int, path string, size int64) error
	// Binary enqueues data for the file currently streaming.
	Binary func(data []byte) error
	// FileComplete flushes and closes the sink for file i.
	FileComplete func(i int) error
	// AllComplete awaits the final write-queue drain.
	AllComplete func() error
	// Abort discards any partial bytes for the file currently streaming.
	Abort func()
}

// Receiver drives the receiving side of the transfer protocol.
type Receiver struct {
	Session *Session
	Channel transport.Channel
	Hooks   SinkHooks

	// Prior is the manifest retained from an earlier connection attempt
	// for the same rendezvous code, or nil on a first connection.
	Prior *manifest.Manifest
}

// NewReceiver builds a Receiver, optionally seeded with a prior manifest
// for resume-eligibility comparison.
func NewReceiver(ch transport.Channel, hooks SinkHooks, prior *manifest.Manifest) *Receiver {
	return &Receiver{Session: NewSession(), Channel: ch, Hooks: hooks, Prior: prior}
}

// HandleFrame dispatches one inbound control frame.
func (r *Receiver) HandleFrame(f Frame) error {
	switch f.Type {
	case TypeManifest:
		var m manifest.Manifest
		if err := f.DecodePayload(&m); err != nil {
			return r.violate(errors.Wrap(err, "decode manifest"))
		}
		return r.onManifest(m)
	case TypeFileStart:
		var p FileStartPayload
		if err := f.DecodePayload(&p); err != nil {
			return r.violate(errors.Wrap(err, "decode file_start"))
		}
		return r.onFileStart(p)
	case TypeFileComplete:
		var p FileCompletePayload
		if err := f.DecodePayload(&p); err != nil {
			return r.violate(errors.Wrap(err, "decode file_complete"))
		}
		return r.onFileComplete(p.FileIndex)
	case TypeAllComplete:
		return r.onAllComplete()
	case TypeCancel:
		return r.onPeerCancel()
	case TypeReject:
		var p RejectPayload
		_ = f.DecodePayload(&p)
		return r.onReject(p.Reason)
	default:
		return r.violate(errors.Errorf("unexpected frame %s in phase %v", f.Type, r.Session.Phase))
	}
}

// HandleBinary processes one inbound binary frame. A frame arriving in a
// phase other than Streaming is dropped silently: this absorbs a narrow
// race where the sender has already emitted bytes before processing a
// cancel.
func (r *Receiver) HandleBinary(data []byte) error {
	if r.Session.Phase != PhaseStreaming {
		return nil
	}
	r.Session.BytesDelivered += int64(len(data))
	return r.Hooks.Binary(data)
}

func (r *Receiver) onManifest(m manifest.Manifest) error {
	if r.Session.Phase != PhaseIdle {
		return r.violate(errors.Errorf("MANIFEST in phase %v", r.Session.Phase))
	}
	r.Session.Manifest = m
	r.Session.Phase = PhaseNegotiating
	return nil
}

// ResumeEligible reports whether m (the just-received manifest) matches
// the retained prior manifest closely enough to resume, and if so the
// lowest incomplete file index to resume from.
func (r *Receiver) ResumeEligible() (fileIndex int, eligible bool) {
	if r.Prior == nil {
		return 0, false
	}
	if !r.Session.Manifest.Matches(*r.Prior) {
		return 0, false
	}
	for i, f := range r.Session.Manifest.Files {
		if !manifest.SameFile(f, r.Prior.Files[i]) {
			return 0, false
		}
	}
	return r.Session.LowestIncomplete()
}

// Accept sends ACCEPT and begins streaming from file 0, offset 0.
func (r *Receiver) Accept() error {
	if r.Session.Phase != PhaseNegotiating {
		return errors.Errorf("receiver: Accept called in phase %v", r.Session.Phase)
	}
	data, err := Encode(TypeAccept, nil)
	if err != nil {
		return errors.Wrap(err, "encode accept")
	}
	if err := r.Channel.SendControl(data); err != nil {
		r.Session.Fail(ReasonChannelClosed)
		return errors.Wrap(err, "send accept")
	}
	r.Session.Phase = PhaseStreaming
	return nil
}

// Resume sends RESUME{fileIndex, byteOffset} and begins streaming from
// that point.
func (r *Receiver) Resume(fileIndex int, byteOffset int64) error {
	if r.Session.Phase != PhaseNegotiating {
		return errors.Errorf("receiver: Resume called in phase %v", r.Session.Phase)
	}
	data, err := Encode(TypeResume, ResumePayload{FileIndex: fileIndex, ByteOffset: byteOffset})
	if err != nil {
		return errors.Wrap(err, "encode resume")
	}
	if err := r.Channel.SendControl(data); err != nil {
		r.Session.Fail(ReasonChannelClosed)
		return errors.Wrap(err, "send resume")
	}
	r.Session.FileIndex = fileIndex
	r.Session.BytesDelivered = byteOffset
	r.Session.Phase = PhaseStreaming
	return nil
}

// Reject declines the session with reason and closes the channel.
func (r *Receiver) Reject(reason string) error {
	data, err := Encode(TypeReject, RejectPayload{Reason: reason})
	if err == nil {
		_ = r.Channel.SendControl(data)
	}
	r.Session.Fail(ReasonProtocolError)
	return r.Channel.Close(reason)
}

func (r *Receiver) onFileStart(p FileStartPayload) error {
	if r.Session.Phase != PhaseStreaming {
		return r.violate(errors.Errorf("FILE_START in phase %v", r.Session.Phase))
	}
	r.Session.FileIndex = p.FileIndex
	r.Session.BytesDelivered = 0
	return r.Hooks.FileStart(p.FileIndex, p.Path, p.Size)
}

func (r *Receiver) onFileComplete(i int) error {
	if r.Session.Phase != PhaseStreaming {
		return r.violate(errors.Errorf("FILE_COMPLETE in phase %v", r.Session.Phase))
	}
	if err := r.Hooks.FileComplete(i); err != nil {
		r.Session.Fail(ReasonDiskWrite)
		return err
	}
	r.Session.MarkComplete(i)
	return nil
}

func (r *Receiver) onAllComplete() error {
	if r.Session.Phase != PhaseStreaming {
		return r.violate(errors.Errorf("ALL_COMPLETE in phase %v", r.Session.Phase))
	}
	if err := r.Hooks.AllComplete(); err != nil {
		r.Session.Fail(ReasonDiskWrite)
		return err
	}
	r.Session.Phase = PhaseCompleted
	return nil
}

// onReject handles a REJECT frame sent by a sender declining to open
// the session, e.g. because the rendezvous code had already expired by
// the time this peer connected.
func (r *Receiver) onReject(reason string) error {
	r.Session.Fail(FailReason(reason))
	_ = r.Channel.Close("rejected")
	return errors.Errorf("peer rejected session: %s", reason)
}

func (r *Receiver) onPeerCancel() error {
	r.Session.BumpEpoch()
	if r.Hooks.Abort != nil {
		r.Hooks.Abort()
	}
	r.Session.Phase = PhaseCancelled
	_ = r.Channel.Close("peer cancelled")
	return nil
}

// Cancel aborts a session the local caller no longer wants to continue.
func (r *Receiver) Cancel(reason string) {
	if r.Session.Phase.Terminal() {
		return
	}
	r.Session.BumpEpoch()
	if r.Hooks.Abort != nil {
		r.Hooks.Abort()
	}
	if data, err := Encode(TypeCancel, CancelPayload{Reason: reason}); err == nil {
		_ = r.Channel.SendControl(data)
	}
	r.Session.Phase = PhaseCancelled
	_ = r.Channel.Close(reason)
}

func (r *Receiver) violate(cause error) error {
	r.Session.Fail(ReasonProtocolError)
	_ = r.Channel.Close("protocol error")
	return cause
}
