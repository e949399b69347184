package bacnet

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/REQUEA/bacnet/bacip"
	"github.com/openbms-io/bms-edge-agent/internal/agenterrors"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/message"
)

type readerKey struct {
	boundIP string
	udpPort int
}

// ReaderPool owns the set of live Readers and hands out selections
// through a LoadBalancer. Grounded on
// original_source/.../bacnet_wrapper_manager.py's BACnetWrapperManager,
// which owns reader lifecycle separately from load-balancing policy.
type ReaderPool struct {
	mu      sync.RWMutex
	readers map[string]*Reader // by ReaderID
	order   []string           // ReaderID insertion order, for stable iteration
	keys    map[readerKey]string
	def     string // ReaderID of the first successfully initialized reader

	lb *LoadBalancer
}

func NewReaderPool(strategy LoadBalancingStrategy) *ReaderPool {
	return &ReaderPool{
		readers: make(map[string]*Reader),
		keys:    make(map[readerKey]string),
		lb:      NewLoadBalancer(strategy),
	}
}

// Initialize connects one Reader per active config. It enforces P3: two
// active readers may never share (bound_ip, udp_port). A config that
// fails to connect is logged and skipped, not fatal to the others.
func (p *ReaderPool) Initialize(configs []message.ReaderConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cfg := range configs {
		if !cfg.IsActive {
			continue
		}

		key := readerKey{boundIP: cfg.BoundIP, udpPort: cfg.UDPPort}
		if existing, dup := p.keys[key]; dup {
			return agenterrors.Validation{
				Type:   "reader_config",
				Reason: fmt.Sprintf("reader %s and %s both bind %s:%d", existing, cfg.ReaderID, cfg.BoundIP, cfg.UDPPort),
			}
		}

		r, err := NewReader(cfg, bacip.NoOpLogger{})
		if err != nil {
			logger.Error("bacnet: reader %s failed to initialize: %v", cfg.ReaderID, err)
			continue
		}

		p.readers[cfg.ReaderID] = r
		p.order = append(p.order, cfg.ReaderID)
		p.keys[key] = cfg.ReaderID
		if p.def == "" {
			p.def = cfg.ReaderID
		}
	}

	return nil
}

// Cleanup closes every reader and resets the pool to empty.
func (p *ReaderPool) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		if r, ok := p.readers[id]; ok {
			if err := r.Close(); err != nil {
				logger.Warn("bacnet: error closing reader %s: %v", id, err)
			}
		}
	}
	p.readers = make(map[string]*Reader)
	p.order = nil
	p.keys = make(map[readerKey]string)
	p.def = ""
}

func (p *ReaderPool) allOrdered() []*Reader {
	out := make([]*Reader, 0, len(p.order))
	ids := append([]string(nil), p.order...)
	sort.Strings(ids)
	for _, id := range ids {
		if r, ok := p.readers[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Available returns readers whose in-flight operation count is below
// maxConcurrent, mirroring get_available_wrappers(max_operations=5).
func (p *ReaderPool) Available(maxConcurrent int) []*Reader {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Reader
	for _, r := range p.allOrdered() {
		if r.ActiveOperations() < int64(maxConcurrent) {
			out = append(out, r)
		}
	}
	return out
}

// Select picks one reader from the available set using the pool's
// configured load-balancing strategy.
func (p *ReaderPool) Select(maxConcurrent int) *Reader {
	return p.lb.Select(p.Available(maxConcurrent))
}

func (p *ReaderPool) SetStrategy(strategy LoadBalancingStrategy) {
	p.lb.SetStrategy(strategy)
}

// SelectBySubnet prefers a reader whose bound subnet contains targetIP,
// falling back to the default (first successfully initialized) reader.
func (p *ReaderPool) SelectBySubnet(targetIP string) *Reader {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ip := net.ParseIP(targetIP)
	for _, r := range p.allOrdered() {
		if r.ContainsIP(ip) {
			return r
		}
	}
	if p.def != "" {
		return p.readers[p.def]
	}
	return nil
}

// Get returns a reader by ID.
func (p *ReaderPool) Get(readerID string) (*Reader, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.readers[readerID]
	return r, ok
}

// Utilization reports the current pool state via the load balancer.
func (p *ReaderPool) Utilization(maxConcurrent int) []UtilizationInfo {
	p.mu.RLock()
	readers := p.allOrdered()
	p.mu.RUnlock()
	return p.lb.Utilization(readers, maxConcurrent)
}

// Len returns the number of active readers.
func (p *ReaderPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.readers)
}
