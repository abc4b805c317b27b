package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridworks-sim/gridworks/config"
	"github.com/gridworks-sim/gridworks/metrics"
	"github.com/gridworks-sim/gridworks/scenario"
	"github.com/gridworks-sim/gridworks/sim"
	"github.com/gridworks-sim/gridworks/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	scenarioPath := flag.String("scenario", "", "Path to a scripted scenario YAML")
	savePath := flag.String("load", "", "Path to a save file to resume from")
	saveOut := flag.String("save", "", "Write a save file on exit")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (empty = disabled)")
	maxTicks := flag.Int64("max-ticks", 0, "Stop after N ticks (0 = scenario length, or unlimited)")
	realtime := flag.Bool("realtime", false, "Pace ticks at the configured rate instead of running flat out")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	engine, err := buildEngine(cfg, *savePath)
	if err != nil {
		slog.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	engine.SetLogStats(*logStats)

	om, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	if om != nil {
		defer om.Close()
		if err := om.WriteConfig(cfg); err != nil {
			slog.Error("failed to write config snapshot", "error", err)
		}
		engine.SetOutput(om)
	}
	defer engine.Close()

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		engine.SetMetrics(metrics.New(reg))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	var script *scenario.Scenario
	if *scenarioPath != "" {
		script, err = scenario.Load(*scenarioPath)
		if err != nil {
			slog.Error("failed to load scenario", "error", err)
			os.Exit(1)
		}
	}

	limit := *maxTicks
	if limit == 0 && script != nil {
		// Run a little past the last scripted step so its effects settle.
		limit = script.LastTick() + int64(cfg.Tick.RateHz)
	}

	slog.Info("starting simulation",
		"scenario", *scenarioPath,
		"max_ticks", limit,
		"tick_rate", cfg.Tick.RateHz,
	)

	var ticker *time.Ticker
	if *realtime {
		ticker = time.NewTicker(cfg.Derived.TickInterval)
		defer ticker.Stop()
	}

	for {
		if script != nil {
			engine.Apply(script.EventsAt(engine.Tick() + 1)...)
		}
		engine.Step()

		if limit > 0 && engine.Tick() >= limit {
			slog.Info("max ticks reached", "tick", engine.Tick())
			break
		}
		if ticker != nil {
			<-ticker.C
		}
	}

	if *saveOut != "" {
		f, err := os.Create(*saveOut)
		if err != nil {
			slog.Error("failed to create save file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := engine.Save(f); err != nil {
			slog.Error("failed to write save", "error", err)
			os.Exit(1)
		}
		slog.Info("save written", "path", *saveOut, "tick", engine.Tick())
	}
}

func buildEngine(cfg *config.Config, savePath string) (*sim.Engine, error) {
	if savePath == "" {
		return sim.New(cfg), nil
	}
	f, err := os.Open(savePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sim.Restore(f, cfg)
}
