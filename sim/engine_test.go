package sim

import (
	"testing"

	"github.com/gridworks-sim/gridworks/components"
	"github.com/gridworks-sim/gridworks/config"
	"github.com/gridworks-sim/gridworks/network"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}
	return cfg
}

func place(id uint64, kind components.Kind) NodePlaced {
	return NodePlaced{ID: id, Kind: kind}
}

// ---------- basic powering ----------

func TestStep_ProducerPowersLinkedConsumer(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 10},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 4},
		LinkEstablished{A: 1, B: 2},
	)
	e.Step()

	snap := e.Snapshot()
	if !snap.IsPowered(2) {
		t.Error("expected consumer powered on the placement tick")
	}

	netID, ok := snap.NetworkOf(1)
	if !ok {
		t.Fatal("expected producer to belong to a network")
	}
	stats, _ := snap.Stats(netID)
	if stats.Supply != 10 || stats.Demand != 4 {
		t.Errorf("expected supply 10 demand 4, got %f and %f", stats.Supply, stats.Demand)
	}
	if !stats.HasSurplus {
		t.Error("expected surplus")
	}
}

func TestStep_UnlinkedConsumerStaysDark(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 10},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 4},
	)
	e.Step()

	snap := e.Snapshot()
	if snap.IsPowered(2) {
		t.Error("expected unlinked consumer to stay unpowered")
	}
	if snap.NetworkCount() != 2 {
		t.Errorf("expected two singleton networks, got %d", snap.NetworkCount())
	}
}

func TestStep_OverloadedNetworkPowersNobody(t *testing.T) {
	// Deficit unpowers every consumer, not a priority subset.
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 5},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 3},
		NodePlaced{ID: 3, Kind: components.KindConsumer, Demand: 3},
		LinkEstablished{A: 1, B: 2},
		LinkEstablished{A: 2, B: 3},
	)
	e.Step()

	snap := e.Snapshot()
	if snap.IsPowered(2) || snap.IsPowered(3) {
		t.Error("expected no consumer powered under deficit")
	}
}

func TestStep_NewConsumerOverloadsAndUnpowersExisting(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 5},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 3},
		LinkEstablished{A: 1, B: 2},
	)
	e.Step()
	if !e.Snapshot().IsPowered(2) {
		t.Fatal("expected the first consumer powered before the overload")
	}

	var flips []network.PowerStateChange
	e.Notifier().OnPower(func(ev network.PowerStateChange) {
		flips = append(flips, ev)
	})

	e.Apply(
		NodePlaced{ID: 3, Kind: components.KindConsumer, Demand: 3},
		LinkEstablished{A: 2, B: 3},
	)
	e.Step()

	snap := e.Snapshot()
	if snap.IsPowered(2) {
		t.Error("expected the existing consumer to lose power the tick demand outgrew supply")
	}
	if snap.IsPowered(3) {
		t.Error("expected the joining consumer to stay dark under deficit")
	}
	if len(flips) != 1 || flips[0].ConsumerID != 2 || flips[0].Powered {
		t.Errorf("expected one power-off flip for consumer 2, got %+v", flips)
	}
}

// ---------- same-tick reactions ----------

func TestStep_ProducerRemovalUnpowersSameTick(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 10},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 4},
		LinkEstablished{A: 1, B: 2},
	)
	e.Step()

	var flips []network.PowerStateChange
	e.Notifier().OnPower(func(ev network.PowerStateChange) {
		flips = append(flips, ev)
	})

	e.Apply(NodeRemoved{ID: 1})
	e.Step()

	snap := e.Snapshot()
	if snap.IsPowered(2) {
		t.Error("expected consumer unpowered the tick its producer vanished")
	}
	if len(flips) != 1 || flips[0].ConsumerID != 2 || flips[0].Powered {
		t.Errorf("expected one power-off flip for consumer 2, got %+v", flips)
	}
}

func TestStep_OperationalProducerRemovalEmitsStateChange(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 10},
		NodePlaced{
			ID: 2, Kind: components.KindProducer, Rating: 5,
			RequiresFuel: true, StartupDelayTicks: 3,
		},
	)
	e.Step() // producer 1 operational, producer 2 idle without fuel

	var losses []network.TopologyChange
	e.Notifier().OnTopology(func(ev network.TopologyChange) {
		if ev.Kind == network.GeneratorStateChanged {
			losses = append(losses, ev)
		}
	})

	e.Apply(NodeRemoved{ID: 1})
	e.Step()
	if len(losses) != 1 || losses[0].NodeID != 1 || losses[0].Operational {
		t.Fatalf("expected one generation-loss event for producer 1, got %+v", losses)
	}

	// An idle producer leaving contributed nothing; no transition to report.
	e.Apply(NodeRemoved{ID: 2})
	e.Step()
	if len(losses) != 1 {
		t.Errorf("expected no event for the idle producer, got %+v", losses)
	}
}

func TestStep_PowerFlipEmittedOnlyOnChange(t *testing.T) {
	e := New(testConfig(t))
	flips := 0
	e.Notifier().OnPower(func(network.PowerStateChange) { flips++ })

	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 10},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 4},
		LinkEstablished{A: 1, B: 2},
	)
	e.Step()
	if flips != 1 {
		t.Fatalf("expected one flip on power-up, got %d", flips)
	}

	// Steady state must stay silent.
	e.Step()
	e.Step()
	if flips != 1 {
		t.Errorf("expected no flips in steady state, got %d", flips)
	}
}

// ---------- splits ----------

func TestStep_BreakingBridgeSplitsAndUnpowersOrphans(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 10},
		NodePlaced{ID: 2, Kind: components.KindLink},
		NodePlaced{ID: 3, Kind: components.KindConsumer, Demand: 4},
		LinkEstablished{A: 1, B: 2},
		LinkEstablished{A: 2, B: 3},
	)
	e.Step()

	snap := e.Snapshot()
	origID, _ := snap.NetworkOf(3)
	if !snap.IsPowered(3) {
		t.Fatal("expected consumer powered before the split")
	}

	var splits []network.TopologyChange
	e.Notifier().OnTopology(func(ev network.TopologyChange) {
		if ev.Kind == network.NetworkSplit {
			splits = append(splits, ev)
		}
	})

	e.Apply(LinkBroken{A: 1, B: 2})
	e.Step()

	snap = e.Snapshot()
	if snap.IsPowered(3) {
		t.Error("expected consumer unpowered the tick it lost its producer")
	}

	if len(splits) != 1 {
		t.Fatalf("expected one split event, got %d", len(splits))
	}
	if splits[0].NetworkID != origID {
		t.Errorf("expected split of network %d, got %d", origID, splits[0].NetworkID)
	}
	if len(splits[0].Into) != 2 {
		t.Fatalf("expected two fragment ids, got %v", splits[0].Into)
	}
	for _, id := range splits[0].Into {
		if id == origID {
			t.Error("expected every fragment to carry a fresh id")
		}
	}
	if _, alive := snap.Stats(origID); alive {
		t.Error("expected the split source id to be retired")
	}
}

func TestStep_SplitRestoresPowerToSurvivingSide(t *testing.T) {
	// Shedding the far consumer turns a deficit network into a surplus
	// fragment; the surviving consumer must power up the same tick.
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 10},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 10},
		NodePlaced{ID: 3, Kind: components.KindConsumer, Demand: 5},
		LinkEstablished{A: 1, B: 2},
		LinkEstablished{A: 2, B: 3},
	)
	e.Step()

	snap := e.Snapshot()
	if snap.IsPowered(2) || snap.IsPowered(3) {
		t.Fatal("expected every consumer dark while the network runs a deficit")
	}

	var flips []network.PowerStateChange
	e.Notifier().OnPower(func(ev network.PowerStateChange) {
		flips = append(flips, ev)
	})

	e.Apply(LinkBroken{A: 2, B: 3})
	e.Step()

	snap = e.Snapshot()
	if !snap.IsPowered(2) {
		t.Error("expected the surviving consumer powered the tick the deficit split away")
	}
	if snap.IsPowered(3) {
		t.Error("expected the split-off consumer to stay dark")
	}
	if len(flips) != 1 || flips[0].ConsumerID != 2 || !flips[0].Powered {
		t.Errorf("expected one power-on flip for consumer 2, got %+v", flips)
	}
}

// ---------- fuel lifecycle ----------

func TestStep_FueledProducerWarmsUpThenContributes(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{
			ID: 1, Kind: components.KindProducer, Rating: 5,
			RequiresFuel: true, StartupDelayTicks: 3, FuelBurnPerTick: 1,
		},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 5},
		LinkEstablished{A: 1, B: 2},
	)
	e.Step() // no fuel yet

	snap := e.Snapshot()
	if p, _ := snap.Producer(1); p.State != components.StateIdle {
		t.Fatalf("expected idle producer without fuel, got %v", p.State)
	}
	if snap.IsPowered(2) {
		t.Fatal("expected consumer dark before fuel arrives")
	}

	e.Apply(FuelDeposited{ID: 1, Amount: 10})
	e.Step() // warm-up tick 1
	e.Step() // warm-up tick 2
	if p, _ := e.Snapshot().Producer(1); p.State != components.StateIdle {
		t.Fatalf("expected producer still warming up, got %v", p.State)
	}

	e.Step() // warm-up tick 3: goes operational and contributes this tick

	snap = e.Snapshot()
	p, _ := snap.Producer(1)
	if p.State != components.StateOperational {
		t.Fatalf("expected operational producer, got %v", p.State)
	}
	if p.Fuel != 7 {
		t.Errorf("expected 7 fuel after three warm-up burns, got %f", p.Fuel)
	}
	if p.Output != 5 {
		t.Errorf("expected effective output 5, got %f", p.Output)
	}
	if !snap.IsPowered(2) {
		t.Error("expected consumer powered on the startup tick")
	}
}

func TestStep_FuelExhaustionStallsAndUnpowers(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{
			ID: 1, Kind: components.KindProducer, Rating: 5,
			RequiresFuel: true, StartupDelayTicks: 1, FuelBurnPerTick: 1,
		},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 5},
		LinkEstablished{A: 1, B: 2},
		FuelDeposited{ID: 1, Amount: 3},
	)
	e.Step() // warm-up burns 1, operational (fuel 2)
	e.Step() // burns 1 (fuel 1)

	if p, _ := e.Snapshot().Producer(1); p.State != components.StateOperational || p.Fuel != 1 {
		t.Fatalf("expected operational with one unit left, got %v fuel %f", p.State, p.Fuel)
	}
	if !e.Snapshot().IsPowered(2) {
		t.Fatal("expected consumer powered while fuel lasts")
	}

	var stall *network.TopologyChange
	e.Notifier().OnTopology(func(ev network.TopologyChange) {
		if ev.Kind == network.GeneratorStateChanged && !ev.Operational {
			stall = &ev
		}
	})

	e.Step() // last unit burned: the tank hits zero and the producer stalls

	snap := e.Snapshot()
	p, _ := snap.Producer(1)
	if p.State != components.StateStalled {
		t.Fatalf("expected stalled producer, got %v", p.State)
	}
	if p.Fuel != 0 {
		t.Errorf("expected empty tank, got %f", p.Fuel)
	}
	if snap.IsPowered(2) {
		t.Error("expected consumer unpowered the tick the producer stalled")
	}
	if stall == nil || stall.NodeID != 1 {
		t.Errorf("expected stall notification for producer 1, got %+v", stall)
	}
}

func TestStep_StalledProducerRecoversThroughIdle(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{
			ID: 1, Kind: components.KindProducer, Rating: 5,
			RequiresFuel: true, StartupDelayTicks: 2, FuelBurnPerTick: 1,
		},
		FuelDeposited{ID: 1, Amount: 2},
	)
	e.Step() // warm-up 1 (fuel 1)
	e.Step() // warm-up 2: operational (fuel 0)
	e.Step() // stalls

	if p, _ := e.Snapshot().Producer(1); p.State != components.StateStalled {
		t.Fatalf("expected stalled, got %v", p.State)
	}

	e.Apply(FuelDeposited{ID: 1, Amount: 10})
	e.Step() // back to idle, warm-up 1
	if p, _ := e.Snapshot().Producer(1); p.State != components.StateIdle {
		t.Fatalf("expected replenished producer back in idle, got %v", p.State)
	}

	e.Step() // warm-up 2: operational again
	if p, _ := e.Snapshot().Producer(1); p.State != components.StateOperational {
		t.Errorf("expected recovery to operational, got %v", p.State)
	}
}

func TestStep_FuelNeverGoesNegative(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{
			ID: 1, Kind: components.KindProducer, Rating: 5,
			RequiresFuel: true, StartupDelayTicks: 1, FuelBurnPerTick: 4,
		},
		FuelDeposited{ID: 1, Amount: 10},
	)
	for i := 0; i < 6; i++ {
		e.Step()
		if p, _ := e.Snapshot().Producer(1); p.Fuel < 0 {
			t.Fatalf("fuel went negative at tick %d: %f", e.Tick(), p.Fuel)
		}
	}
}

// ---------- event buffering and snapshots ----------

func TestApply_HandlerFeedbackLandsNextTick(t *testing.T) {
	e := New(testConfig(t))
	reacted := false
	e.Notifier().OnTopology(func(ev network.TopologyChange) {
		if ev.Kind == network.NetworkCreated && !reacted {
			reacted = true
			e.Apply(NodePlaced{ID: 9, Kind: components.KindConsumer, Demand: 1})
		}
	})

	e.Apply(place(1, components.KindProducer))
	e.Step()

	if _, ok := e.Snapshot().NetworkOf(9); ok {
		t.Error("handler feedback must not take effect mid-tick")
	}

	e.Step()
	if _, ok := e.Snapshot().NetworkOf(9); !ok {
		t.Error("expected buffered feedback applied on the following tick")
	}
}

func TestSnapshot_HeldPointerStaysFrozen(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		NodePlaced{ID: 1, Kind: components.KindProducer, Rating: 10},
		NodePlaced{ID: 2, Kind: components.KindConsumer, Demand: 4},
		LinkEstablished{A: 1, B: 2},
	)
	e.Step()
	held := e.Snapshot()

	e.Apply(NodeRemoved{ID: 1})
	e.Step()

	if held.Tick != 1 {
		t.Errorf("held snapshot tick changed to %d", held.Tick)
	}
	if !held.IsPowered(2) {
		t.Error("held snapshot must keep its original power state")
	}
	if _, ok := held.NetworkOf(1); !ok {
		t.Error("held snapshot must keep the removed node")
	}
	if e.Snapshot().IsPowered(2) {
		t.Error("fresh snapshot must reflect the removal")
	}
}

// ---------- invalid events ----------

func TestStep_InvalidEventsAreDroppedNotFatal(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(place(1, components.KindProducer))
	e.Step()

	e.Apply(
		NodeRemoved{ID: 42},             // unknown node
		LinkEstablished{A: 1, B: 99},    // unknown endpoint
		LinkBroken{A: 1, B: 99},         // unknown link
		FuelDeposited{ID: 1, Amount: 5}, // fuel-less producer
		place(1, components.KindProducer), // duplicate id
	)
	e.Step()

	snap := e.Snapshot()
	if snap.NetworkCount() != 1 {
		t.Errorf("expected the single original network, got %d", snap.NetworkCount())
	}
	if _, ok := snap.NetworkOf(1); !ok {
		t.Error("expected node 1 untouched by the invalid batch")
	}
}

func TestStep_PartitionCoversEveryLiveNode(t *testing.T) {
	e := New(testConfig(t))
	e.Apply(
		place(1, components.KindProducer),
		place(2, components.KindLink),
		place(3, components.KindConsumer),
		place(4, components.KindConsumer),
		place(5, components.KindProducer),
		LinkEstablished{A: 1, B: 2},
		LinkEstablished{A: 2, B: 3},
		LinkEstablished{A: 4, B: 5},
	)
	e.Step()
	e.Apply(LinkBroken{A: 2, B: 3}, NodeRemoved{ID: 5})
	e.Step()

	snap := e.Snapshot()
	live := []uint64{1, 2, 3, 4}
	for _, id := range live {
		if _, ok := snap.NetworkOf(id); !ok {
			t.Errorf("node %d has no network", id)
		}
	}
	if _, ok := snap.NetworkOf(5); ok {
		t.Error("removed node must not appear in any network")
	}

	total := 0
	for _, stats := range snap.Networks {
		total += stats.Members
	}
	if total != len(live) {
		t.Errorf("expected member sets to cover exactly %d live nodes, got %d", len(live), total)
	}
}

func TestTick_CountsCompletedSteps(t *testing.T) {
	e := New(testConfig(t))
	if e.Tick() != 0 {
		t.Fatalf("expected tick 0 before stepping, got %d", e.Tick())
	}
	e.Step()
	e.Step()
	if e.Tick() != 2 {
		t.Errorf("expected tick 2, got %d", e.Tick())
	}
	if e.Snapshot().Tick != 2 {
		t.Errorf("expected snapshot tick 2, got %d", e.Snapshot().Tick)
	}
}
