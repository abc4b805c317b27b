package network

import "log/slog"

// TopologyHandler receives topology change events.
type TopologyHandler func(TopologyChange)

// PowerHandler receives consumer power flip events.
type PowerHandler func(PowerStateChange)

// Notifier dispatches change events to registered handlers. Handlers
// run synchronously inside the tick's notifier phase; anything a
// handler wants fed back into the simulation must go through the
// engine's inbound queue, which lands at the start of the next tick.
//
// Because a handler may itself emit (a scripting bridge reacting to a
// power-loss notification, for example), emission carries a depth
// guard: past maxDepth the notification is dropped with a warning
// instead of growing the call stack without bound.
type Notifier struct {
	topoHandlers  []TopologyHandler
	powerHandlers []PowerHandler

	depth    int
	maxDepth int
	dropped  uint64
}

// NewNotifier creates a notifier with the given re-entrancy limit.
func NewNotifier(maxDepth int) *Notifier {
	if maxDepth < 1 {
		maxDepth = 8
	}
	return &Notifier{maxDepth: maxDepth}
}

// OnTopology registers a topology change handler.
func (n *Notifier) OnTopology(h TopologyHandler) {
	n.topoHandlers = append(n.topoHandlers, h)
}

// OnPower registers a power flip handler.
func (n *Notifier) OnPower(h PowerHandler) {
	n.powerHandlers = append(n.powerHandlers, h)
}

// EmitTopology dispatches one topology change to all handlers.
func (n *Notifier) EmitTopology(ev TopologyChange) {
	if n.depth >= n.maxDepth {
		n.dropped++
		slog.Warn("notifier: depth limit reached, topology notification dropped",
			"kind", ev.Kind.String(), "network", ev.NetworkID, "depth", n.depth)
		return
	}
	n.depth++
	for _, h := range n.topoHandlers {
		h(ev)
	}
	n.depth--
}

// EmitPower dispatches one power flip to all handlers.
func (n *Notifier) EmitPower(ev PowerStateChange) {
	if n.depth >= n.maxDepth {
		n.dropped++
		slog.Warn("notifier: depth limit reached, power notification dropped",
			"consumer", ev.ConsumerID, "depth", n.depth)
		return
	}
	n.depth++
	for _, h := range n.powerHandlers {
		h(ev)
	}
	n.depth--
}

// Dropped returns how many notifications the depth guard has dropped.
func (n *Notifier) Dropped() uint64 {
	return n.dropped
}
