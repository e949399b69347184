// Package bacnet implements the reader pool, load balancer, and
// monitoring/writer actors that drive BACnet/IP polling and control.
package bacnet

import (
	"sync"

	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
)

// LoadBalancingStrategy selects which reader handles the next request.
// Grounded on original_source/.../bacnet_reader_load_balancer.py's
// LoadBalancingStrategy enum.
type LoadBalancingStrategy string

const (
	StrategyRoundRobin    LoadBalancingStrategy = "round_robin"
	StrategyLeastBusy     LoadBalancingStrategy = "least_busy"
	StrategyFirstAvailable LoadBalancingStrategy = "first_available"
)

// LoadBalancer picks a reader out of a set of available readers according
// to the configured strategy. It holds no reference to the pool itself —
// callers pass in the current candidate set on every call, mirroring the
// Python original's select_wrapper(available_wrappers).
type LoadBalancer struct {
	mu              sync.Mutex
	strategy        LoadBalancingStrategy
	roundRobinIndex int
}

// NewLoadBalancer constructs a balancer defaulting to round-robin, the
// same default as BACnetReaderLoadBalancer.__init__.
func NewLoadBalancer(strategy LoadBalancingStrategy) *LoadBalancer {
	if strategy == "" {
		strategy = StrategyRoundRobin
	}
	return &LoadBalancer{strategy: strategy}
}

// SetStrategy switches strategies, resetting the round-robin cursor only
// when switching into round-robin — matches the Python set_strategy.
func (lb *LoadBalancer) SetStrategy(strategy LoadBalancingStrategy) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.strategy = strategy
	if strategy == StrategyRoundRobin {
		lb.roundRobinIndex = 0
	}
}

// ResetRoundRobin zeroes the round-robin cursor.
func (lb *LoadBalancer) ResetRoundRobin() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.roundRobinIndex = 0
}

// Select chooses one reader from candidates, which must be in a stable
// order — callers own the ordering (e.g. sorted by ReaderID). It returns
// nil when candidates is empty.
func (lb *LoadBalancer) Select(candidates []*Reader) *Reader {
	if len(candidates) == 0 {
		return nil
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	switch lb.strategy {
	case StrategyLeastBusy:
		return selectLeastBusy(candidates)
	case StrategyFirstAvailable:
		return candidates[0]
	default:
		return lb.selectRoundRobin(candidates)
	}
}

func (lb *LoadBalancer) selectRoundRobin(candidates []*Reader) *Reader {
	if lb.roundRobinIndex >= len(candidates) {
		logger.Warn("bacnet: round-robin index %d out of range for %d readers, resetting", lb.roundRobinIndex, len(candidates))
		lb.roundRobinIndex = 0
	}
	selected := candidates[lb.roundRobinIndex]
	lb.roundRobinIndex = (lb.roundRobinIndex + 1) % len(candidates)
	return selected
}

func selectLeastBusy(candidates []*Reader) *Reader {
	var best *Reader
	var bestCount int64 = -1
	for _, r := range candidates {
		count := r.ActiveOperations()
		if bestCount == -1 || count < bestCount {
			best = r
			bestCount = count
		}
	}
	return best
}

// UtilizationInfo mirrors get_utilization_info's per-reader snapshot.
type UtilizationInfo struct {
	ReaderID         string
	ActiveOperations int64
	IsBusy           bool
	BoundIP          string
	UDPPort          int
	Strategy         LoadBalancingStrategy
}

func (lb *LoadBalancer) Utilization(readers []*Reader, maxConcurrent int) []UtilizationInfo {
	lb.mu.Lock()
	strategy := lb.strategy
	lb.mu.Unlock()

	out := make([]UtilizationInfo, 0, len(readers))
	for _, r := range readers {
		count := r.ActiveOperations()
		out = append(out, UtilizationInfo{
			ReaderID:         r.Config.ReaderID,
			ActiveOperations: count,
			IsBusy:           count >= int64(maxConcurrent),
			BoundIP:          r.Config.BoundIP,
			UDPPort:          r.Config.UDPPort,
			Strategy:         strategy,
		})
	}
	return out
}
