package sim

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mlange-42/ark/ecs"

	"github.com/gridworks-sim/gridworks/components"
	"github.com/gridworks-sim/gridworks/config"
	"github.com/gridworks-sim/gridworks/grid"
	"github.com/gridworks-sim/gridworks/metrics"
	"github.com/gridworks-sim/gridworks/network"
	"github.com/gridworks-sim/gridworks/telemetry"
)

// Engine owns the grid's mutable state and advances it one tick at a
// time. All mutation flows through the event inbox; external reads go
// through the published snapshot. Step itself is single-threaded and
// must be driven by exactly one goroutine.
type Engine struct {
	world *ecs.World

	producerMapper *ecs.Map3[components.Node, components.Position, components.Supply]
	consumerMapper *ecs.Map3[components.Node, components.Position, components.Demand]
	relayMapper    *ecs.Map2[components.Node, components.Position]

	producerFilter *ecs.Filter2[components.Node, components.Supply]
	consumerFilter *ecs.Filter2[components.Node, components.Demand]

	nodeMap   *ecs.Map1[components.Node]
	posMap    *ecs.Map1[components.Position]
	supplyMap *ecs.Map1[components.Supply]
	demandMap *ecs.Map1[components.Demand]

	// External id to ECS entity. The tracker and registry speak external
	// ids exclusively; only the engine touches entities.
	entities map[uint64]ecs.Entity

	tracker  *grid.Tracker
	registry *network.Registry
	notifier *network.Notifier

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager
	prom      *metrics.Metrics
	logStats  bool

	inboxMu sync.Mutex
	inbox   []Event

	// Events accumulated during the tick, dispatched in the notify phase.
	pendingTopo  []network.TopologyChange
	pendingPower []network.PowerStateChange

	snapshot atomic.Pointer[Snapshot]

	cfg         *config.Config
	tick        int64
	droppedSeen uint64
}

// New creates an engine with empty state. The config pointer is
// retained; callers must not mutate it while the engine runs.
func New(cfg *config.Config) *Engine {
	world := ecs.NewWorld()

	e := &Engine{
		world: world,
		producerMapper: ecs.NewMap3[
			components.Node,
			components.Position,
			components.Supply,
		](world),
		consumerMapper: ecs.NewMap3[
			components.Node,
			components.Position,
			components.Demand,
		](world),
		relayMapper: ecs.NewMap2[
			components.Node,
			components.Position,
		](world),
		producerFilter: ecs.NewFilter2[components.Node, components.Supply](world),
		consumerFilter: ecs.NewFilter2[components.Node, components.Demand](world),
		nodeMap:        ecs.NewMap1[components.Node](world),
		posMap:         ecs.NewMap1[components.Position](world),
		supplyMap:      ecs.NewMap1[components.Supply](world),
		demandMap:      ecs.NewMap1[components.Demand](world),
		entities:       make(map[uint64]ecs.Entity),
		tracker:        grid.NewTracker(),
		registry:       network.NewRegistry(),
		notifier:       network.NewNotifier(cfg.Notifier.MaxDepth),
		collector:      telemetry.NewCollector(cfg.Telemetry.StatsWindowTicks, cfg.Tick.RateHz),
		perf:           telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		cfg:            cfg,
	}
	e.snapshot.Store(emptySnapshot())
	return e
}

// SetOutput attaches a CSV output manager. May be nil.
func (e *Engine) SetOutput(om *telemetry.OutputManager) {
	e.output = om
}

// SetMetrics attaches Prometheus collectors. May be nil.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.prom = m
}

// SetLogStats enables window stats logging on flush.
func (e *Engine) SetLogStats(v bool) {
	e.logStats = v
}

// Notifier exposes handler registration. Handlers run synchronously
// inside the tick; register before the first Step.
func (e *Engine) Notifier() *network.Notifier {
	return e.notifier
}

// Tick returns the number of completed ticks.
func (e *Engine) Tick() int64 {
	return e.tick
}

// Close flushes a final partial stats window. The attached output
// manager is owned by the caller and closed separately.
func (e *Engine) Close() {
	if e.tick == 0 {
		return
	}
	stats := e.collector.Flush(e.tick, e.gauges())
	if e.logStats {
		stats.LogStats()
	}
	if e.output != nil {
		if err := e.output.WriteTelemetry(stats); err != nil {
			slog.Error("telemetry write failed", "error", err)
		}
	}
}

// Apply buffers events for the next tick. Safe to call from any
// goroutine, including notification handlers mid-tick.
func (e *Engine) Apply(evs ...Event) {
	e.inboxMu.Lock()
	e.inbox = append(e.inbox, evs...)
	e.inboxMu.Unlock()
}

// Step advances the simulation one tick: drain the inbox, apply
// structural changes, reconcile the network partition, run the fuel
// state machine, rebalance touched networks, gate consumers, dispatch
// notifications, and publish a fresh snapshot.
func (e *Engine) Step() {
	e.tick++
	e.perf.StartTick()

	e.perf.StartPhase(telemetry.PhaseInbox)
	e.inboxMu.Lock()
	batch := e.inbox
	e.inbox = nil
	e.inboxMu.Unlock()

	e.perf.StartPhase(telemetry.PhaseStructure)
	removed := e.applyStructure(batch)

	e.perf.StartPhase(telemetry.PhaseRegistry)
	changes, touched := e.registry.ApplyDiff(e.tracker, removed, e)
	e.pendingTopo = append(e.pendingTopo, changes...)

	e.perf.StartPhase(telemetry.PhaseFuel)
	touched = e.stepFuel(touched)

	e.perf.StartPhase(telemetry.PhaseBalance)
	for _, id := range touched {
		e.registry.Recompute(id, e)
	}

	e.perf.StartPhase(telemetry.PhaseGate)
	e.gateConsumers()

	e.perf.StartPhase(telemetry.PhaseNotify)
	e.dispatch()

	e.perf.StartPhase(telemetry.PhaseTelemetry)
	e.publishSnapshot()
	e.flushTelemetry()

	dur := e.perf.EndTick()
	if dur > e.cfg.Derived.TickBudget {
		slog.Warn("tick budget exceeded",
			"tick", e.tick, "took_us", dur.Microseconds(),
			"budget_us", e.cfg.Derived.TickBudget.Microseconds())
		if e.prom != nil {
			e.prom.BudgetOverruns.Inc()
		}
	}
	if e.prom != nil {
		e.prom.TickDuration.Observe(dur.Seconds())
	}
}

// applyStructure applies the drained event batch to the ECS store and
// the tracker. Events referencing unknown nodes are dropped with a
// warning; the tick always completes.
func (e *Engine) applyStructure(batch []Event) []network.RemovedNode {
	var removed []network.RemovedNode

	for _, ev := range batch {
		switch ev := ev.(type) {
		case NodePlaced:
			e.place(ev)

		case NodeRemoved:
			if rm, ok := e.remove(ev.ID); ok {
				removed = append(removed, rm)
			}

		case LinkEstablished:
			if e.tracker.Connect(ev.A, ev.B) {
				e.collector.RecordLinkEstablished()
			} else if !e.tracker.Linked(ev.A, ev.B) {
				// Duplicate links are idempotent; anything else was invalid.
				e.invalidEvent()
			}

		case LinkBroken:
			if e.tracker.Disconnect(ev.A, ev.B) {
				e.collector.RecordLinkBroken()
			} else {
				e.invalidEvent()
			}

		case FuelDeposited:
			e.depositFuel(ev)
		}
	}
	return removed
}

func (e *Engine) place(ev NodePlaced) {
	if _, exists := e.entities[ev.ID]; exists {
		slog.Warn("placement with duplicate id dropped", "node", ev.ID)
		e.invalidEvent()
		return
	}

	node := components.Node{ID: ev.ID, Kind: ev.Kind}
	pos := ev.Position

	var entity ecs.Entity
	switch ev.Kind {
	case components.KindProducer:
		supply := components.Supply{
			Output:       ev.Rating,
			State:        components.StateIdle,
			RequiresFuel: ev.RequiresFuel,
		}
		if ev.RequiresFuel {
			supply.BurnPerTick = ev.FuelBurnPerTick
			if supply.BurnPerTick <= 0 {
				supply.BurnPerTick = e.cfg.Fuel.DefaultBurnPerTick
			}
			supply.StartupDelay = ev.StartupDelayTicks
			if supply.StartupDelay <= 0 {
				supply.StartupDelay = e.cfg.Fuel.DefaultStartupDelayTicks
			}
		}
		entity = e.producerMapper.NewEntity(&node, &pos, &supply)

	case components.KindConsumer:
		demand := components.Demand{Required: ev.Demand}
		entity = e.consumerMapper.NewEntity(&node, &pos, &demand)

	case components.KindLink:
		entity = e.relayMapper.NewEntity(&node, &pos)

	default:
		slog.Warn("placement with unknown kind dropped", "node", ev.ID)
		e.invalidEvent()
		return
	}

	e.entities[ev.ID] = entity
	e.tracker.AddNode(ev.ID)
	e.collector.RecordPlacement()
}

func (e *Engine) remove(id uint64) (network.RemovedNode, bool) {
	entity, ok := e.entities[id]
	if !ok {
		slog.Warn("removal of unknown node dropped", "node", id)
		e.invalidEvent()
		return network.RemovedNode{}, false
	}

	rm := network.RemovedNode{ID: id, Kind: e.nodeMap.Get(entity).Kind}
	if rm.Kind == components.KindProducer {
		rm.WasOperational = e.supplyMap.Get(entity).State == components.StateOperational
	}
	e.tracker.RemoveNode(id)
	delete(e.entities, id)
	e.world.RemoveEntity(entity)

	e.collector.RecordRemoval()
	return rm, true
}

func (e *Engine) depositFuel(ev FuelDeposited) {
	entity, ok := e.entities[ev.ID]
	if !ok {
		slog.Warn("fuel deposit to unknown node dropped", "node", ev.ID)
		e.invalidEvent()
		return
	}
	if ev.Amount <= 0 {
		slog.Warn("non-positive fuel deposit dropped", "node", ev.ID, "amount", ev.Amount)
		e.invalidEvent()
		return
	}
	node := e.nodeMap.Get(entity)
	if node.Kind != components.KindProducer {
		slog.Warn("fuel deposit to non-producer dropped", "node", ev.ID)
		e.invalidEvent()
		return
	}
	supply := e.supplyMap.Get(entity)
	if !supply.RequiresFuel {
		slog.Warn("fuel deposit to fuel-less producer dropped", "node", ev.ID)
		e.invalidEvent()
		return
	}
	supply.Fuel += ev.Amount
}

func (e *Engine) invalidEvent() {
	e.collector.RecordInvalidEvent()
	if e.prom != nil {
		e.prom.InvalidEvents.Inc()
	}
}

// gateConsumers reflects each network's surplus flag onto its
// consumers. A flip queues a power notification; steady state emits
// nothing.
func (e *Engine) gateConsumers() {
	query := e.consumerFilter.Query()
	for query.Next() {
		node, demand := query.Get()

		powered := false
		if n, ok := e.registry.NetworkOf(node.ID); ok {
			powered = n.HasSurplus
		}

		if powered != demand.Powered {
			demand.Powered = powered
			e.pendingPower = append(e.pendingPower, network.PowerStateChange{
				ConsumerID: node.ID,
				Powered:    powered,
			})
			e.collector.RecordPowerFlip()
		}
	}
}

// dispatch delivers queued notifications. Delivery order is topology
// first, then power flips, each in emission order.
func (e *Engine) dispatch() {
	for _, ev := range e.pendingTopo {
		e.collector.RecordTopology(ev)
		e.notifier.EmitTopology(ev)
	}
	for _, ev := range e.pendingPower {
		e.notifier.EmitPower(ev)
	}
	e.pendingTopo = e.pendingTopo[:0]
	e.pendingPower = e.pendingPower[:0]

	if e.prom != nil {
		// Counter semantics want increments; track the delta.
		if d := e.notifier.Dropped(); d > e.droppedSeen {
			e.prom.EventsDropped.Add(float64(d - e.droppedSeen))
			e.droppedSeen = d
		}
	}
}

// Info implements network.Lookup over the ECS store. An operational
// producer contributes its rating; idle and stalled producers
// contribute nothing. Consumer demand is unconditional.
func (e *Engine) Info(id uint64) (network.NodeInfo, bool) {
	entity, ok := e.entities[id]
	if !ok {
		return network.NodeInfo{}, false
	}
	node := e.nodeMap.Get(entity)
	info := network.NodeInfo{Kind: node.Kind}

	switch node.Kind {
	case components.KindProducer:
		supply := e.supplyMap.Get(entity)
		if supply.State == components.StateOperational {
			info.Output = supply.Output
		}
	case components.KindConsumer:
		info.Demand = e.demandMap.Get(entity).Required
	}
	return info, true
}

// flushTelemetry emits window stats and perf output when the window
// closes.
func (e *Engine) flushTelemetry() {
	if !e.collector.ShouldFlush(e.tick) {
		e.updateGauges()
		return
	}

	stats := e.collector.Flush(e.tick, e.gauges())
	if e.logStats {
		stats.LogStats()
	}
	if e.output != nil {
		if err := e.output.WriteTelemetry(stats); err != nil {
			slog.Error("telemetry write failed", "error", err)
		}
		if err := e.output.WritePerf(e.perf.Stats(), e.tick); err != nil {
			slog.Error("perf write failed", "error", err)
		}
	}
	e.updateGauges()
}

// gauges samples point-in-time grid state for the stats window.
func (e *Engine) gauges() telemetry.Gauges {
	var g telemetry.Gauges
	g.Nodes = len(e.entities)
	g.Networks = e.registry.Len()

	pq := e.producerFilter.Query()
	for pq.Next() {
		_, supply := pq.Get()
		g.Producers++
		if supply.State == components.StateOperational {
			g.TotalSupply += supply.Output
		}
	}

	cq := e.consumerFilter.Query()
	for cq.Next() {
		_, demand := cq.Get()
		g.Consumers++
		g.TotalDemand += demand.Required
		if demand.Powered {
			g.PoweredConsumers++
		} else {
			g.UnpoweredConsumers++
		}
	}

	g.Links = g.Nodes - g.Producers - g.Consumers

	e.registry.Each(func(n *network.Network) {
		g.NetworkSizes = append(g.NetworkSizes, float64(len(n.Members)))
	})
	return g
}

func (e *Engine) updateGauges() {
	if e.prom == nil {
		return
	}
	e.prom.Nodes.Set(float64(len(e.entities)))
	e.prom.Networks.Set(float64(e.registry.Len()))

	var powered, total int
	query := e.consumerFilter.Query()
	for query.Next() {
		_, demand := query.Get()
		total++
		if demand.Powered {
			powered++
		}
	}
	if total > 0 {
		e.prom.PoweredRatio.Set(float64(powered) / float64(total))
	} else {
		e.prom.PoweredRatio.Set(0)
	}
}
