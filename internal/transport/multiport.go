package transport

import (
	"net"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// RelayAddr is a rendezvous relay address, optionally expressed as a port
// range ("IP:minport-maxport") when the broker hands back a pool instead
// of a single fixed port.
type RelayAddr struct {
	Host    string
	MinPort int
	MaxPort int
}

var relayAddrPattern = regexp.MustCompile(`(.*):([0-9]{1,5})-?([0-9]{1,5})?`)

// ParseRelayAddr parses a single-port or port-range relay address.
func ParseRelayAddr(addr string) (*RelayAddr, error) {
	matches := relayAddrPattern.FindStringSubmatch(addr)
	if len(matches) < 4 {
		return nil, errors.Errorf("malformed relay address: %v", addr)
	}

	minPort, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, err
	}
	maxPort := minPort
	if matches[3] != "" {
		maxPort, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, err
		}
	}

	if minPort > maxPort || minPort == 0 || maxPort == 0 || minPort > 65535 || maxPort > 65535 {
		return nil, errors.Errorf("invalid port range in relay address: minport=%d maxport=%d", minPort, maxPort)
	}

	return &RelayAddr{Host: matches[1], MinPort: minPort, MaxPort: maxPort}, nil
}

// Address returns host:port for the attempt'th dial, spreading successive
// attempts across the port range (attempt modulo the range width, from
// MinPort). Only the dialing side uses the range; Listen binds a single
// address.
func (r *RelayAddr) Address(attempt int) string {
	span := r.MaxPort - r.MinPort + 1
	port := r.MinPort + (attempt % span)
	return net.JoinHostPort(r.Host, strconv.Itoa(port))
}
