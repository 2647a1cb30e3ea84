package broker

// Direct is a Broker with no actual registry behind it: the rendezvous
// code passed to Register/Resolve is itself the dialable relay address
// (host:port or host:minport-maxport), shared out of band by whatever
// means the two peers already use to exchange a code. It stands in for
// the external rendezvous service the same way a direct-dial client
// connects to a literal, operator-supplied address with no resolution
// step at all.
//
// Register and Release are no-ops: there is nothing to claim or free
// when the code already is the address. Resolve always succeeds,
// returning the code unchanged.
type Direct struct{}

func (Direct) Register(code, relayAddr string) error { return nil }

func (Direct) Resolve(code string) (string, error) { return code, nil }

func (Direct) Release(code string) {}
