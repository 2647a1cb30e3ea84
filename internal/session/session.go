// Package session wires the channel, protocol, pump, and sink packages
// into the two runnable roles of a transfer: a sender that registers a
// rendezvous code and waits for a peer, and a receiver that dials one.
// Each Run call is the single logical thread of control for that
// session: frame dispatch, producer-completion reporting, and phase
// transitions all happen on the goroutine that called Run, matching the
// single-threaded cooperative scheduling model the protocol core assumes.
package session

import "time"

// PeerUnavailableRetries is how many dial attempts a receiver makes
// before Run returns a "peer unavailable" error. No session phase is
// recorded for that failure: the Snapshot keeps its previous value.
const PeerUnavailableRetries = 3

// PeerUnavailableDelay is the pause between dial attempts.
const PeerUnavailableDelay = 2 * time.Second

// Snapshot is a point-in-time, concurrency-safe view of a session for a
// UI or stats observer to poll without touching the session's own
// single-owner state directly.
type Snapshot struct {
	Phase          string
	FileIndex      int
	BytesDelivered int64
	FailReason     string
}
