package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_RecordsPhases(t *testing.T) {
	p := NewPerfCollector(4)

	p.StartTick()
	p.StartPhase(PhaseStructure)
	time.Sleep(time.Millisecond)
	p.StartPhase(PhaseBalance)
	time.Sleep(time.Millisecond)
	dur := p.EndTick()

	if dur <= 0 {
		t.Fatal("expected positive tick duration")
	}

	stats := p.Stats()
	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average")
	}
	if stats.PhaseAvg[PhaseStructure] <= 0 || stats.PhaseAvg[PhaseBalance] <= 0 {
		t.Error("expected both phases measured")
	}
	if _, ok := stats.PhaseAvg[PhaseFuel]; ok {
		t.Error("unused phase should not appear")
	}
}

func TestPerfCollector_WindowRolls(t *testing.T) {
	p := NewPerfCollector(2)
	for i := 0; i < 5; i++ {
		p.StartTick()
		p.StartPhase(PhaseGate)
		p.EndTick()
	}
	if p.sampleCount != 2 {
		t.Errorf("expected window capped at 2 samples, got %d", p.sampleCount)
	}
}

func TestPerfCollector_EmptyStatsAreZero(t *testing.T) {
	p := NewPerfCollector(4)
	stats := p.Stats()
	if stats.AvgTickDuration != 0 || stats.TicksPerSecond != 0 {
		t.Error("expected zeroed stats with no samples")
	}
}

func TestPerfStats_ToCSVFlattensPhases(t *testing.T) {
	s := PerfStats{
		AvgTickDuration: 2 * time.Millisecond,
		PhasePct: map[string]float64{
			PhaseStructure: 40,
			PhaseBalance:   60,
		},
	}
	row := s.ToCSV(100)
	if row.WindowEnd != 100 {
		t.Errorf("expected window end 100, got %d", row.WindowEnd)
	}
	if row.AvgTickUS != 2000 {
		t.Errorf("expected 2000us, got %d", row.AvgTickUS)
	}
	if row.StructurePct != 40 || row.BalancePct != 60 {
		t.Error("expected phase percentages carried into the row")
	}
	if row.FuelPct != 0 {
		t.Error("expected absent phases to flatten to zero")
	}
}
