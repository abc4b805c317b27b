package telemetry

import (
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a tick window.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Grid state at window end
	Nodes     int `csv:"nodes"`
	Producers int `csv:"producers"`
	Consumers int `csv:"consumers"`
	Links     int `csv:"links"`
	Networks  int `csv:"networks"`

	TotalSupply float64 `csv:"total_supply"`
	TotalDemand float64 `csv:"total_demand"`

	PoweredConsumers   int `csv:"powered_consumers"`
	UnpoweredConsumers int `csv:"unpowered_consumers"`

	// Events during window
	Placements      int `csv:"placements"`
	Removals        int `csv:"removals"`
	LinksAdded      int `csv:"links_added"`
	LinksBroken     int `csv:"links_broken"`
	NetworksCreated int `csv:"networks_created"`
	NetworksSplit   int `csv:"networks_split"`
	NetworksMerged  int `csv:"networks_merged"`
	GeneratorStarts int `csv:"generator_starts"`
	GeneratorStalls int `csv:"generator_stalls"`
	PowerFlips      int `csv:"power_flips"`
	InvalidEvents   int `csv:"invalid_events"`

	// Network size distribution
	NetworkSizeMean float64 `csv:"network_size_mean"`
	NetworkSizeStd  float64 `csv:"network_size_std"`
}

// sizeStats computes mean and standard deviation of network sizes.
// A single network has zero deviation by definition.
func sizeStats(sizes []float64) (mean, std float64) {
	if len(sizes) == 0 {
		return 0, 0
	}
	mean = stat.Mean(sizes, nil)
	if len(sizes) > 1 {
		std = stat.StdDev(sizes, nil)
	}
	return mean, std
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("nodes", s.Nodes),
		slog.Int("producers", s.Producers),
		slog.Int("consumers", s.Consumers),
		slog.Int("links", s.Links),
		slog.Int("networks", s.Networks),
		slog.Float64("total_supply", s.TotalSupply),
		slog.Float64("total_demand", s.TotalDemand),
		slog.Int("powered_consumers", s.PoweredConsumers),
		slog.Int("unpowered_consumers", s.UnpoweredConsumers),
		slog.Int("placements", s.Placements),
		slog.Int("removals", s.Removals),
		slog.Int("links_added", s.LinksAdded),
		slog.Int("links_broken", s.LinksBroken),
		slog.Int("networks_created", s.NetworksCreated),
		slog.Int("networks_split", s.NetworksSplit),
		slog.Int("networks_merged", s.NetworksMerged),
		slog.Int("generator_starts", s.GeneratorStarts),
		slog.Int("generator_stalls", s.GeneratorStalls),
		slog.Int("power_flips", s.PowerFlips),
		slog.Int("invalid_events", s.InvalidEvents),
		slog.Float64("network_size_mean", s.NetworkSizeMean),
		slog.Float64("network_size_std", s.NetworkSizeStd),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"nodes", s.Nodes,
		"networks", s.Networks,
		"total_supply", s.TotalSupply,
		"total_demand", s.TotalDemand,
		"powered_consumers", s.PoweredConsumers,
		"unpowered_consumers", s.UnpoweredConsumers,
		"placements", s.Placements,
		"removals", s.Removals,
		"links_added", s.LinksAdded,
		"links_broken", s.LinksBroken,
		"networks_created", s.NetworksCreated,
		"networks_split", s.NetworksSplit,
		"networks_merged", s.NetworksMerged,
		"generator_starts", s.GeneratorStarts,
		"generator_stalls", s.GeneratorStalls,
		"power_flips", s.PowerFlips,
		"invalid_events", s.InvalidEvents,
		"network_size_mean", s.NetworkSizeMean,
		"network_size_std", s.NetworkSizeStd,
	)
}
