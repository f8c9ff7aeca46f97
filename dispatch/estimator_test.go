package dispatch

import (
	"errors"
	"testing"
	"time"
)

func TestRttEstimator_EstimateUnknownIsNotOK(t *testing.T) {
	// GIVEN a fresh estimator with no samples
	est := NewRttEstimator(5, time.Minute)

	// WHEN Estimate is called for an unseen (lambda, dest)
	_, ok := est.Estimate("fn", "dest:1")

	// THEN it reports not-ok ("unknown")
	if ok {
		t.Fatal("Estimate() ok = true, want false for unseen pair")
	}
}

func TestRttEstimator_AveragesWithinWindow(t *testing.T) {
	// GIVEN an estimator with window size 3
	est := NewRttEstimator(3, time.Minute)

	// WHEN four samples are added
	for _, v := range []float64{1, 2, 3, 4} {
		est.Add("fn", "dest:1", v)
	}

	// THEN only the most recent 3 are averaged: (2+3+4)/3
	got, ok := est.Estimate("fn", "dest:1")
	if !ok {
		t.Fatal("Estimate() ok = false, want true")
	}
	want := 3.0
	if got != want {
		t.Fatalf("Estimate() = %v, want %v", got, want)
	}
}

func TestRttEstimator_PrunesStaleSamples(t *testing.T) {
	// GIVEN an estimator with a fake clock and one old sample
	est := NewRttEstimator(10, 100*time.Millisecond)
	now := time.Now()
	est.clock = func() time.Time { return now }
	est.Add("fn", "dest:1", 10)

	// WHEN Estimate is called after the stale period has elapsed
	est.clock = func() time.Time { return now.Add(time.Second) }
	_, ok := est.Estimate("fn", "dest:1")

	// THEN the sample is pruned and the estimate is unknown
	if ok {
		t.Fatal("Estimate() ok = true, want false after staling out")
	}
}

func TestPtimeEstimatorRtt_RoutesToSmallestEstimate(t *testing.T) {
	// GIVEN a table with two known destinations and an estimator with
	// samples favoring one of them
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	table.Change("fn", "fast", 1, true)
	table.Change("fn", "slow", 1, true)
	est := NewPtimeEstimatorRtt(table, 5, time.Minute)
	est.rtt.Add("fn", "fast", 0.01)
	est.rtt.Add("fn", "slow", 0.5)

	// WHEN Route is called
	got, err := est.Route(&Request{LambdaName: "fn"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	// THEN the destination with the smaller estimate wins
	if got != "fast" {
		t.Fatalf("Route() = %q, want fast", got)
	}
}

func TestPtimeEstimatorRtt_NoSamplesFails(t *testing.T) {
	// GIVEN a table with known destinations but no recorded samples
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	table.Change("fn", "dest:1", 1, true)
	est := NewPtimeEstimatorRtt(table, 5, time.Minute)

	// WHEN Route is called
	_, err := est.Route(&Request{LambdaName: "fn"})

	// THEN it fails with ErrNoDestinations
	if !errors.Is(err, ErrNoDestinations) {
		t.Fatalf("Route err = %v, want ErrNoDestinations", err)
	}
}

func TestPtimeEstimatorRtt_ProcessSuccessClampsNegativeRtt(t *testing.T) {
	// GIVEN an estimator and a response whose reported processing time
	// exceeds the measured wall-clock elapsed (clock skew or bad input)
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	table.Change("fn", "dest:1", 1, true)
	est := NewPtimeEstimatorRtt(table, 5, time.Minute)
	resp := &Response{ProcessingTimeSeconds: 2.0}

	// WHEN ProcessSuccess is called with elapsed < processing time
	est.ProcessSuccess(&Request{LambdaName: "fn"}, "dest:1", resp, 1.0)

	// THEN the recorded sample is clamped to 0, not negative
	got, ok := est.rtt.Estimate("fn", "dest:1")
	if !ok {
		t.Fatal("Estimate() ok = false, want true")
	}
	if got != 0 {
		t.Fatalf("Estimate() = %v, want 0", got)
	}
}
