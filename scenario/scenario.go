// Package scenario loads scripted event sequences for headless runs.
// A scenario is a YAML list of timed grid operations, applied to the
// engine's inbox when their tick comes up.
package scenario

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/gridworks-sim/gridworks/components"
	"github.com/gridworks-sim/gridworks/sim"
)

// Step is one scripted operation.
type Step struct {
	AtTick int64  `yaml:"at_tick"`
	Op     string `yaml:"op"` // place, remove, link, unlink, fuel

	// place / remove / fuel
	ID   uint64 `yaml:"id,omitempty"`
	Kind string `yaml:"kind,omitempty"` // producer, consumer, link
	X    int32  `yaml:"x,omitempty"`
	Y    int32  `yaml:"y,omitempty"`

	// place, producer only
	Rating            float64 `yaml:"rating,omitempty"`
	RequiresFuel      bool    `yaml:"requires_fuel,omitempty"`
	StartupDelayTicks int64   `yaml:"startup_delay_ticks,omitempty"`
	FuelBurnPerTick   float64 `yaml:"fuel_burn_per_tick,omitempty"`

	// place, consumer only
	Demand float64 `yaml:"demand,omitempty"`

	// link / unlink
	A uint64 `yaml:"a,omitempty"`
	B uint64 `yaml:"b,omitempty"`

	// fuel
	Amount float64 `yaml:"amount,omitempty"`
}

// Scenario is a scripted run, sorted by tick.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	for i, st := range sc.Steps {
		// The runner applies events starting at tick 1; an earlier tick
		// would silently never fire.
		if st.AtTick < 1 {
			return nil, fmt.Errorf("step %d: at_tick must be >= 1, got %d", i, st.AtTick)
		}
		if _, err := st.Event(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	sort.SliceStable(sc.Steps, func(i, j int) bool {
		return sc.Steps[i].AtTick < sc.Steps[j].AtTick
	})
	return &sc, nil
}

// LastTick returns the tick of the final step, or 0 for an empty scenario.
func (s *Scenario) LastTick() int64 {
	if len(s.Steps) == 0 {
		return 0
	}
	return s.Steps[len(s.Steps)-1].AtTick
}

// EventsAt returns the engine events scheduled for the given tick.
// Steps are pre-validated at load time.
func (s *Scenario) EventsAt(tick int64) []sim.Event {
	var evs []sim.Event
	for _, st := range s.Steps {
		if st.AtTick != tick {
			continue
		}
		ev, err := st.Event()
		if err != nil {
			continue
		}
		evs = append(evs, ev)
	}
	return evs
}

// Event converts the step into an engine event.
func (st Step) Event() (sim.Event, error) {
	switch st.Op {
	case "place":
		kind, ok := components.ParseKind(st.Kind)
		if !ok {
			return nil, fmt.Errorf("unknown kind %q", st.Kind)
		}
		return sim.NodePlaced{
			ID:                st.ID,
			Kind:              kind,
			Position:          components.Position{X: st.X, Y: st.Y},
			Rating:            st.Rating,
			RequiresFuel:      st.RequiresFuel,
			StartupDelayTicks: st.StartupDelayTicks,
			FuelBurnPerTick:   st.FuelBurnPerTick,
			Demand:            st.Demand,
		}, nil
	case "remove":
		return sim.NodeRemoved{ID: st.ID}, nil
	case "link":
		return sim.LinkEstablished{A: st.A, B: st.B}, nil
	case "unlink":
		return sim.LinkBroken{A: st.A, B: st.B}, nil
	case "fuel":
		return sim.FuelDeposited{ID: st.ID, Amount: st.Amount}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", st.Op)
	}
}
