// Package components defines ECS components for resource-network nodes.
package components

// Kind identifies what role a node plays in a resource network.
type Kind uint8

const (
	KindProducer Kind = iota
	KindConsumer
	KindLink
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindProducer:
		return "producer"
	case KindConsumer:
		return "consumer"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name back to a Kind. The second return
// value is false for unrecognized names.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "producer":
		return KindProducer, true
	case "consumer":
		return KindConsumer, true
	case "link":
		return KindLink, true
	default:
		return 0, false
	}
}

// Node holds a node's identity. The external ID is chosen by the
// placement subsystem; kind and position never mutate after placement.
type Node struct {
	ID   uint64
	Kind Kind
}

// Position is the node's spatial reference, used only for adjacency
// queries by the surrounding world code, never for physics.
type Position struct {
	X, Y int32
}

// ProducerState is the lifecycle state of a generating node.
type ProducerState uint8

const (
	StateIdle ProducerState = iota
	StateOperational
	StateStalled
)

// String returns the lowercase name of the producer state.
func (s ProducerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOperational:
		return "operational"
	case StateStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Supply is attached to producer nodes. Output is the declared rating;
// a producer only contributes Output to its network while Operational.
// Fuel fields are ignored when RequiresFuel is false.
type Supply struct {
	Output float64
	State  ProducerState

	RequiresFuel bool
	Fuel         float64
	BurnPerTick  float64
	StartupDelay int64 // ticks of fueled idling before going operational
	StartupTimer int64 // advances only while fuel is present
}

// Demand is attached to consumer nodes. Required is demanded
// unconditionally every tick; Powered reflects the owning network's
// surplus flag as of the last balance pass.
type Demand struct {
	Required float64
	Powered  bool
}
