package sim

import (
	"sort"

	"github.com/gridworks-sim/gridworks/components"
	"github.com/gridworks-sim/gridworks/network"
)

// stepFuel advances every producer's lifecycle one tick and returns
// the touched network ids extended with the networks of producers
// whose effective output changed.
//
// Fuel-less producers go operational on their first tick and stay
// there. Fueled producers idle through a startup delay that advances
// only while fuel is present, produce while fueled, and stall the
// instant consumption drains the tank, so a stalled producer's output
// is gone before the same tick's balance pass. Replenishing a stalled
// producer drops it back to idle and restarts the full delay.
func (e *Engine) stepFuel(touched []int) []int {
	touchedSet := make(map[int]struct{}, len(touched))
	for _, id := range touched {
		touchedSet[id] = struct{}{}
	}

	query := e.producerFilter.Query()
	for query.Next() {
		node, supply := query.Get()

		if e.advanceProducer(node.ID, supply) {
			if n, ok := e.registry.NetworkOf(node.ID); ok {
				touchedSet[n.ID] = struct{}{}
			}
		}
	}

	out := make([]int, 0, len(touchedSet))
	for id := range touchedSet {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// advanceProducer runs one tick of the producer state machine and
// reports whether the producer's operational state changed.
func (e *Engine) advanceProducer(id uint64, s *components.Supply) bool {
	if !s.RequiresFuel {
		if s.State != components.StateOperational {
			s.State = components.StateOperational
			e.queueGeneratorChange(id, true)
			return true
		}
		return false
	}

	// A replenished stalled producer re-enters idle and counts this
	// tick toward its warm-up.
	if s.State == components.StateStalled && s.Fuel > 0 {
		s.State = components.StateIdle
		s.StartupTimer = 0
	}

	switch s.State {
	case components.StateIdle:
		if s.Fuel <= 0 {
			s.StartupTimer = 0
			return false
		}
		s.StartupTimer++
		s.Fuel -= min(s.BurnPerTick, s.Fuel)
		if s.StartupTimer >= s.StartupDelay {
			s.State = components.StateOperational
			e.queueGeneratorChange(id, true)
			return true
		}
		if s.Fuel == 0 {
			s.StartupTimer = 0
		}
		return false

	case components.StateOperational:
		s.Fuel -= min(s.BurnPerTick, s.Fuel)
		if s.Fuel == 0 {
			s.State = components.StateStalled
			s.StartupTimer = 0
			e.queueGeneratorChange(id, false)
			return true
		}
		return false
	}

	return false
}

func (e *Engine) queueGeneratorChange(id uint64, operational bool) {
	netID := 0
	if n, ok := e.registry.NetworkOf(id); ok {
		netID = n.ID
	}
	e.pendingTopo = append(e.pendingTopo, network.TopologyChange{
		Kind:        network.GeneratorStateChanged,
		NetworkID:   netID,
		NodeID:      id,
		Operational: operational,
	})
}
