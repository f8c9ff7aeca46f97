package dispatch

import (
	"math"
	"testing"
	"time"
)

func TestLocalOptimizer_FirstObservationSetsWeightDirectly(t *testing.T) {
	// GIVEN a table with one destination and an optimizer watching it
	table, _ := NewForwardingTable(PolicyLeastImpedance, 0)
	table.Change("fn", "dest:1", 1000, true)
	opt, err := NewLocalOptimizer(table, 0.5)
	if err != nil {
		t.Fatalf("NewLocalOptimizer: %v", err)
	}

	// WHEN the first observation arrives
	opt.Observe(&Request{LambdaName: "fn"}, "dest:1", 0.25)

	// THEN the table's weight becomes exactly the observed latency, with
	// no prior smoothed value to blend with
	snap := table.Snapshot()
	if got := snap["fn"]["dest:1"].Weight; got != 0.25 {
		t.Fatalf("weight after first observation = %v, want 0.25", got)
	}
}

func TestLocalOptimizer_SmoothsSubsequentObservations(t *testing.T) {
	// GIVEN an optimizer that has already observed one latency
	table, _ := NewForwardingTable(PolicyLeastImpedance, 0)
	table.Change("fn", "dest:1", 1000, true)
	opt, _ := NewLocalOptimizer(table, 0.5)
	opt.Observe(&Request{LambdaName: "fn"}, "dest:1", 0.2)

	// WHEN a second observation arrives within the stale period
	opt.Observe(&Request{LambdaName: "fn"}, "dest:1", 0.4)

	// THEN the new weight is the exponential blend: 0.5*0.4 + 0.5*0.2
	// (0.2 + 0.1 in float64 is 0.30000000000000004, so compare within a
	// rounding tolerance)
	snap := table.Snapshot()
	want := 0.3
	if got := snap["fn"]["dest:1"].Weight; math.Abs(got-want) > 1e-12 {
		t.Fatalf("smoothed weight = %v, want %v", got, want)
	}
}

func TestLocalOptimizer_StaleObservationResetsInsteadOfBlending(t *testing.T) {
	// GIVEN an optimizer with a fake clock and one prior observation
	table, _ := NewForwardingTable(PolicyLeastImpedance, 0)
	table.Change("fn", "dest:1", 1000, true)
	opt, _ := NewLocalOptimizer(table, 0.5)
	now := time.Now()
	opt.clock = func() time.Time { return now }
	opt.Observe(&Request{LambdaName: "fn"}, "dest:1", 0.2)

	// WHEN a second observation arrives after the stale period has passed
	opt.clock = func() time.Time { return now.Add(optimizerStalePeriod + time.Second) }
	opt.Observe(&Request{LambdaName: "fn"}, "dest:1", 0.9)

	// THEN the new weight is the raw latency, not a blend with the stale value
	snap := table.Snapshot()
	if got := snap["fn"]["dest:1"].Weight; got != 0.9 {
		t.Fatalf("weight after stale observation = %v, want 0.9", got)
	}
}

func TestLocalOptimizer_DropsObservationForAbsentDestination(t *testing.T) {
	// GIVEN a table with no destinations for "fn"
	table, _ := NewForwardingTable(PolicyLeastImpedance, 0)
	opt, _ := NewLocalOptimizer(table, 0.5)

	// WHEN an observation is reported for a destination the table never
	// had (e.g. it was evicted between dispatch and observation)
	// THEN Observe does not panic and the table remains empty
	opt.Observe(&Request{LambdaName: "fn"}, "dest:1", 0.2)

	if _, err := table.Lookup("fn"); err == nil {
		t.Fatalf("expected Lookup to still fail, Observe must not have created an entry")
	}
}

func TestLocalOptimizer_ColdStartSpikeOnCachedMinTriggersRescan(t *testing.T) {
	// GIVEN a least-impedance entry with two destinations: "a" is the
	// cached minimum, "b" is slower
	table, _ := NewForwardingTable(PolicyLeastImpedance, 0)
	table.Change("fn", "a", 1, true)
	table.Change("fn", "b", 5, true)
	got, err := table.Lookup("fn")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "a" {
		t.Fatalf("setup: Lookup() = %q, want a", got)
	}

	// WHEN the optimizer's first (cold-start) observation for the
	// cached-minimum destination is an outlier larger than "b"'s weight
	opt, _ := NewLocalOptimizer(table, 0.5)
	opt.Observe(&Request{LambdaName: "fn"}, "a", 10)

	// THEN the table's cached minimum is invalidated and the next
	// Lookup returns "b", not the stale cached "a"
	got, err = table.Lookup("fn")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "b" {
		t.Fatalf("Lookup() after cold-start spike on cached min = %q, want b", got)
	}
}

func TestLocalOptimizer_StaleResetSpikeOnCachedMinTriggersRescan(t *testing.T) {
	// GIVEN a least-impedance entry with two destinations, where the
	// optimizer already has a (now-stale) prior observation for the
	// cached minimum
	table, _ := NewForwardingTable(PolicyLeastImpedance, 0)
	table.Change("fn", "a", 1, true)
	table.Change("fn", "b", 5, true)
	opt, _ := NewLocalOptimizer(table, 0.5)
	now := time.Now()
	opt.clock = func() time.Time { return now }
	opt.Observe(&Request{LambdaName: "fn"}, "a", 0.5)

	// WHEN a new observation for "a" arrives after the staleness window
	// has passed, and it is an outlier larger than "b"'s weight
	opt.clock = func() time.Time { return now.Add(optimizerStalePeriod + time.Second) }
	opt.Observe(&Request{LambdaName: "fn"}, "a", 10)

	// THEN the stale-reset write invalidates the cached minimum and the
	// next Lookup returns "b"
	got, err := table.Lookup("fn")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "b" {
		t.Fatalf("Lookup() after stale-reset spike on cached min = %q, want b", got)
	}
}

func TestNewLocalOptimizer_RejectsOutOfRangeAlpha(t *testing.T) {
	table, _ := NewForwardingTable(PolicyLeastImpedance, 0)
	for _, alpha := range []float64{-0.1, 1.1} {
		if _, err := NewLocalOptimizer(table, alpha); err == nil {
			t.Fatalf("NewLocalOptimizer(alpha=%v) expected error, got nil", alpha)
		}
	}
}
