package protocol

import (
	"github.com/pkg/errors"

	"github.com/aerodrop/aerodrop/internal/manifest"
	"github.com/aerodrop/aerodrop/internal/transport"
)

// ProducerStarter launches (or restarts) the data pump for a session,
// tagged with epoch. Any frames or writes the pump later produces under
// a stale epoch must be ignored by the caller.
type ProducerStarter func(epoch uint64, fileIndex int, byteOffset int64)

// Sender drives the sending side of the transfer protocol: it owns the
// Session record and reacts to inbound control frames by starting,
// restarting, or cancelling the data pump. It does not itself read file
// bytes or run the pump loop — that lives in the pump package, wired in
// via StartProducer by the session manager.
type Sender struct {
	Session       *Session
	Channel       transport.Channel
	StartProducer ProducerStarter
}

// NewSender builds a Sender for m, ready to Open a fresh negotiation.
func NewSender(ch transport.Channel, m manifest.Manifest, start ProducerStarter) *Sender {
	sess := NewSession()
	sess.Manifest = m
	return &Sender{Session: sess, Channel: ch, StartProducer: start}
}

// Open sends the initial MANIFEST frame and enters Negotiating.
func (s *Sender) Open() error {
	if s.Session.Phase != PhaseIdle {
		return errors.Errorf("sender: Open called in phase %v", s.Session.Phase)
	}
	data, err := Encode(TypeManifest, s.Session.Manifest)
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	if err := s.Channel.SendControl(data); err != nil {
		s.Session.Fail(ReasonChannelClosed)
		return errors.Wrap(err, "send manifest")
	}
	s.Session.Phase = PhaseNegotiating
	return nil
}

// HandleFrame dispatches one inbound control frame to the appropriate
// transition. Frames arriving in a phase that does not expect them are a
// protocol violation: the session fails and the channel closes.
func (s *Sender) HandleFrame(f Frame) error {
	switch f.Type {
	case TypeAccept:
		return s.onAccept()
	case TypeResume:
		var p ResumePayload
		if err := f.DecodePayload(&p); err != nil {
			return s.violate(errors.Wrap(err, "decode resume payload"))
		}
		return s.onResume(p.FileIndex, p.ByteOffset)
	case TypeCancel:
		var p CancelPayload
		_ = f.DecodePayload(&p)
		return s.onPeerCancel()
	case TypeReject:
		var p RejectPayload
		_ = f.DecodePayload(&p)
		s.Session.Fail(FailReason(p.Reason))
		_ = s.Channel.Close("rejected")
		return nil
	default:
		return s.violate(errors.Errorf("unexpected frame %s in phase %v", f.Type, s.Session.Phase))
	}
}

func (s *Sender) onAccept() error {
	if s.Session.Phase != PhaseNegotiating {
		return s.violate(errors.Errorf("ACCEPT in phase %v", s.Session.Phase))
	}
	s.beginStreaming(0, 0)
	return nil
}

func (s *Sender) onResume(fileIndex int, byteOffset int64) error {
	if s.Session.Phase != PhaseNegotiating {
		return s.violate(errors.Errorf("RESUME in phase %v", s.Session.Phase))
	}
	s.beginStreaming(fileIndex, byteOffset)
	return nil
}

func (s *Sender) beginStreaming(fileIndex int, byteOffset int64) {
	s.Session.FileIndex = fileIndex
	s.Session.BytesDelivered = byteOffset
	s.Session.Phase = PhaseStreaming
	epoch := s.Session.Epoch()
	s.StartProducer(epoch, fileIndex, byteOffset)
}

// ProducerCompleted is called by the pump once every file has been sent
// under the current epoch. It sends ALL_COMPLETE and enters Completed.
func (s *Sender) ProducerCompleted(epoch uint64) error {
	if epoch != s.Session.Epoch() || s.Session.Phase != PhaseStreaming {
		return nil // stale producer, already superseded
	}
	data, err := Encode(TypeAllComplete, nil)
	if err != nil {
		return errors.Wrap(err, "encode all_complete")
	}
	if err := s.Channel.SendControl(data); err != nil {
		s.Session.Fail(ReasonChannelClosed)
		return errors.Wrap(err, "send all_complete")
	}
	s.Session.Phase = PhaseCompleted
	return nil
}

// ProducerFailed is called by the pump when send_binary errors out.
func (s *Sender) ProducerFailed(epoch uint64) {
	if epoch != s.Session.Epoch() {
		return
	}
	s.Session.Fail(ReasonChannelClosed)
	_ = s.Channel.Close("send failed")
}

func (s *Sender) onPeerCancel() error {
	s.Session.BumpEpoch()
	s.Session.Phase = PhaseCancelled
	_ = s.Channel.Close("peer cancelled")
	return nil
}

// Cancel aborts a session the local caller no longer wants to continue.
// It bumps the epoch so any running producer loop exits at its next
// check, emits CANCEL best-effort, and closes the channel.
func (s *Sender) Cancel(reason string) {
	if s.Session.Phase.Terminal() {
		return
	}
	s.Session.BumpEpoch()
	if data, err := Encode(TypeCancel, CancelPayload{Reason: reason}); err == nil {
		_ = s.Channel.SendControl(data)
	}
	s.Session.Phase = PhaseCancelled
	_ = s.Channel.Close(reason)
}

func (s *Sender) violate(cause error) error {
	s.Session.Fail(ReasonProtocolError)
	_ = s.Channel.Close("protocol error")
	return cause
}
