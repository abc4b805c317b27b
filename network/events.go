// Package network owns the partition of nodes into networks, their
// supply/demand balance, the consumer power gate, and the topology
// change notifications derived from tick-to-tick diffs.
package network

import "github.com/gridworks-sim/gridworks/components"

// ChangeKind classifies a topology change event.
type ChangeKind uint8

const (
	NetworkCreated ChangeKind = iota
	NetworkSplit
	NetworkMerged
	GeneratorStateChanged
	ConsumerAdded
	ConsumerRemoved
	LinkAdded
	LinkRemoved
)

// String returns the snake_case name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case NetworkCreated:
		return "network_created"
	case NetworkSplit:
		return "network_split"
	case NetworkMerged:
		return "network_merged"
	case GeneratorStateChanged:
		return "generator_state_changed"
	case ConsumerAdded:
		return "consumer_added"
	case ConsumerRemoved:
		return "consumer_removed"
	case LinkAdded:
		return "link_added"
	case LinkRemoved:
		return "link_removed"
	default:
		return "unknown"
	}
}

// TopologyChange is one observed difference between the previous and
// current tick's network state. These are high-frequency internal
// signals; external observers subscribe through the notifier and may
// filter by kind.
type TopologyChange struct {
	Kind      ChangeKind
	NetworkID int

	// NodeID is set for node-level kinds (consumer/link membership and
	// generator state changes).
	NodeID uint64

	// Into carries the surviving id for a merge, or the fresh fragment
	// ids for a split.
	Into []int

	// Operational is set for GeneratorStateChanged.
	Operational bool
}

// PowerStateChange reports a consumer's powered flag flipping. Emitted
// only on an actual flip, never every tick.
type PowerStateChange struct {
	ConsumerID uint64
	Powered    bool
}

// NodeInfo is the balance-relevant view of one node.
type NodeInfo struct {
	Kind components.Kind

	// Output is the effective supply contribution: the declared rating
	// for an operational producer, zero otherwise.
	Output float64

	// Demand is the declared load of a consumer, demanded
	// unconditionally regardless of current power state.
	Demand float64
}

// Lookup resolves a node id to its balance-relevant state. The tick
// engine implements it over the ECS store.
type Lookup interface {
	Info(id uint64) (NodeInfo, bool)
}
