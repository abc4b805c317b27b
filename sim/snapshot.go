package sim

import (
	"github.com/gridworks-sim/gridworks/components"
	"github.com/gridworks-sim/gridworks/network"
)

// NetworkStats is the read-only view of one network's balance.
type NetworkStats struct {
	ID         int
	Members    int
	Supply     float64
	Demand     float64
	HasSurplus bool
}

// ProducerStatus is the read-only view of one producer's lifecycle.
type ProducerStatus struct {
	ID     uint64
	State  components.ProducerState
	Fuel   float64
	Output float64 // effective contribution, zero unless operational
}

// Snapshot is an immutable copy of queryable grid state, published at
// the end of every tick. Readers on other goroutines hold a consistent
// view for as long as they keep the pointer; the engine never mutates
// a published snapshot.
type Snapshot struct {
	Tick int64

	Networks  map[int]NetworkStats
	networkOf map[uint64]int
	powered   map[uint64]bool
	producers map[uint64]ProducerStatus
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Networks:  map[int]NetworkStats{},
		networkOf: map[uint64]int{},
		powered:   map[uint64]bool{},
		producers: map[uint64]ProducerStatus{},
	}
}

// Stats returns the balance of the network with the given id.
func (s *Snapshot) Stats(netID int) (NetworkStats, bool) {
	st, ok := s.Networks[netID]
	return st, ok
}

// NetworkOf returns the id of the network containing the given node.
func (s *Snapshot) NetworkOf(node uint64) (int, bool) {
	id, ok := s.networkOf[node]
	return id, ok
}

// IsPowered reports whether the consumer was powered as of this tick.
// Unknown ids report false.
func (s *Snapshot) IsPowered(consumer uint64) bool {
	return s.powered[consumer]
}

// Producer returns the lifecycle status of the given producer.
func (s *Snapshot) Producer(id uint64) (ProducerStatus, bool) {
	st, ok := s.producers[id]
	return st, ok
}

// NetworkCount returns the number of live networks.
func (s *Snapshot) NetworkCount() int {
	return len(s.Networks)
}

// Snapshot returns the most recently published state. Safe to call
// from any goroutine.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// NetworkStats returns the published balance of one network.
func (e *Engine) NetworkStats(netID int) (NetworkStats, bool) {
	return e.Snapshot().Stats(netID)
}

// IsPowered reports the published power state of a consumer.
func (e *Engine) IsPowered(consumer uint64) bool {
	return e.Snapshot().IsPowered(consumer)
}

// ProducerStatus returns the published lifecycle state of a producer.
func (e *Engine) ProducerStatus(id uint64) (ProducerStatus, bool) {
	return e.Snapshot().Producer(id)
}

// publishSnapshot builds a fresh snapshot from live state and swaps it
// in atomically. Maps are rebuilt every tick rather than mutated so a
// held snapshot stays frozen.
func (e *Engine) publishSnapshot() {
	snap := &Snapshot{
		Tick:      e.tick,
		Networks:  make(map[int]NetworkStats, e.registry.Len()),
		networkOf: make(map[uint64]int, len(e.entities)),
		powered:   map[uint64]bool{},
		producers: map[uint64]ProducerStatus{},
	}

	e.registry.Each(func(n *network.Network) {
		snap.Networks[n.ID] = NetworkStats{
			ID:         n.ID,
			Members:    len(n.Members),
			Supply:     n.Supply,
			Demand:     n.Demand,
			HasSurplus: n.HasSurplus,
		}
		for m := range n.Members {
			snap.networkOf[m] = n.ID
		}
	})

	cq := e.consumerFilter.Query()
	for cq.Next() {
		node, demand := cq.Get()
		snap.powered[node.ID] = demand.Powered
	}

	pq := e.producerFilter.Query()
	for pq.Next() {
		node, supply := pq.Get()
		status := ProducerStatus{
			ID:    node.ID,
			State: supply.State,
			Fuel:  supply.Fuel,
		}
		if supply.State == components.StateOperational {
			status.Output = supply.Output
		}
		snap.producers[node.ID] = status
	}

	e.snapshot.Store(snap)
}
