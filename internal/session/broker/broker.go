// Package broker defines the rendezvous registration interface the
// session manager depends on, plus an in-memory reference implementation
// for tests. A production deployment talks to an external rendezvous
// service over the network; that service is out of scope here, but the
// core still needs something to register codes against and dial through.
package broker

import "github.com/pkg/errors"

// ErrCodeInUse is returned by Register when the code is already claimed
// by a live registration.
var ErrCodeInUse = errors.New("rendezvous code already in use")

// ErrCodeNotFound is returned by Resolve when no registration exists for
// the code, or it has since been released.
var ErrCodeNotFound = errors.New("rendezvous code not found")

// Broker registers a sender's relay address under a short code and
// resolves that code back to an address for a dialing receiver.
type Broker interface {
	// Register claims code for relayAddr. Returns ErrCodeInUse if the
	// code is already claimed.
	Register(code, relayAddr string) error
	// Resolve looks up the relay address registered for code. Returns
	// ErrCodeNotFound if no registration exists.
	Resolve(code string) (relayAddr string, err error)
	// Release frees code for reuse. A no-op if unregistered.
	Release(code string)
}
