// Package sim runs the resource-network tick loop. The engine owns all
// mutable grid state; the world interacts through buffered inbound
// events and reads through published snapshots, so mid-tick callers
// never observe a half-updated partition.
package sim

import "github.com/gridworks-sim/gridworks/components"

// Event is an inbound grid mutation. Events may be applied from any
// goroutine; they are buffered and take effect at the start of the
// next tick, in arrival order.
type Event interface {
	isEvent()
}

// NodePlaced introduces a new node. The external id is chosen by the
// caller and must be unique among live nodes. Zero-valued fuel fields
// fall back to configured defaults for fueled producers.
type NodePlaced struct {
	ID       uint64
	Kind     components.Kind
	Position components.Position

	// Producer fields, ignored for other kinds.
	Rating            float64
	RequiresFuel      bool
	StartupDelayTicks int64
	FuelBurnPerTick   float64

	// Consumer field, ignored for other kinds.
	Demand float64
}

// NodeRemoved deletes a node and every link touching it.
type NodeRemoved struct {
	ID uint64
}

// LinkEstablished connects two placed nodes.
type LinkEstablished struct {
	A, B uint64
}

// LinkBroken severs the link between two nodes, if one exists.
type LinkBroken struct {
	A, B uint64
}

// FuelDeposited adds fuel to a fueled producer.
type FuelDeposited struct {
	ID     uint64
	Amount float64
}

func (NodePlaced) isEvent()      {}
func (NodeRemoved) isEvent()     {}
func (LinkEstablished) isEvent() {}
func (LinkBroken) isEvent()      {}
func (FuelDeposited) isEvent()   {}
