package bacnet

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/REQUEA/bacnet/bacip"
	"github.com/openbms-io/bms-edge-agent/internal/message"
)

// ConnectionState tracks a reader's BACnet/IP socket lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

// Reader wraps one bacip.Client bound to a single network interface, with
// the in-flight operation counter the load balancer and pool read from.
// Grounded on original_source/.../bacnet_wrapper_manager.py's per-reader
// BACnetWrapper and the bacip client usage shown in
// other_examples/.../bacip-client.go.go.
type Reader struct {
	Config message.ReaderConfig

	client  *bacip.Client
	state   atomic.Value // ConnectionState
	inFlightOps atomic.Int64

	subnet *net.IPNet
}

// NewReader connects a bacip client bound to cfg.BoundIP/UDPPort and
// returns the wrapping Reader. The subnet (bound_ip/subnet_mask_bits) is
// precomputed so SelectBySubnet never needs to reparse it.
func NewReader(cfg message.ReaderConfig, logger bacip.Logger) (*Reader, error) {
	iface := fmt.Sprintf("%s/%d", cfg.BoundIP, cfg.SubnetMaskBits)
	client, err := bacip.NewClient(iface, cfg.UDPPort, logger)
	if err != nil {
		return nil, fmt.Errorf("reader %s: connect: %w", cfg.ReaderID, err)
	}

	ip := net.ParseIP(cfg.BoundIP)
	_, subnet, subnetErr := net.ParseCIDR(iface)
	if subnetErr != nil && ip != nil {
		subnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(cfg.SubnetMaskBits, 32)}
	}

	r := &Reader{
		Config: cfg,
		client: client,
		subnet: subnet,
	}
	r.state.Store(StateConnected)
	return r, nil
}

func (r *Reader) Client() *bacip.Client { return r.client }

func (r *Reader) State() ConnectionState {
	if v, ok := r.state.Load().(ConnectionState); ok {
		return v
	}
	return StateDisconnected
}

func (r *Reader) setState(s ConnectionState) { r.state.Store(s) }

// ActiveOperations returns the current in-flight operation count.
func (r *Reader) ActiveOperations() int64 {
	return r.inFlightOps.Load()
}

// Acquire marks the start of an operation and returns a release func to
// defer — the Go equivalent of the Python wrapper's
// `with reader.operation():` context manager.
func (r *Reader) Acquire() (release func()) {
	r.inFlightOps.Add(1)
	var once bool
	return func() {
		if once {
			return
		}
		once = true
		r.inFlightOps.Add(-1)
	}
}

// ContainsIP reports whether ip falls within this reader's bound subnet.
func (r *Reader) ContainsIP(ip net.IP) bool {
	if r.subnet == nil || ip == nil {
		return false
	}
	return r.subnet.Contains(ip)
}

// Close releases the underlying bacip client.
func (r *Reader) Close() error {
	r.setState(StateDisconnected)
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
