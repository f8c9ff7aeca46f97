package dispatch

import (
	"errors"
	"testing"
)

func TestForwardingTable_LookupUnknownLambda(t *testing.T) {
	// GIVEN an empty forwarding table
	table, err := NewForwardingTable(PolicyRoundRobin, 0)
	if err != nil {
		t.Fatalf("NewForwardingTable: %v", err)
	}

	// WHEN Lookup targets a lambda with no entries
	_, err = table.Lookup("nope")

	// THEN it fails with ErrNoDestinations
	if !errors.Is(err, ErrNoDestinations) {
		t.Fatalf("Lookup err = %v, want ErrNoDestinations", err)
	}
}

func TestForwardingTable_ChangeCreatesEntryLazily(t *testing.T) {
	// GIVEN a fresh table
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)

	// WHEN Change is applied to a lambda with no prior entry
	if err := table.Change("fn", "dest:1", 1, true); err != nil {
		t.Fatalf("Change: %v", err)
	}

	// THEN Lookup now resolves to that destination
	got, err := table.Lookup("fn")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "dest:1" {
		t.Fatalf("Lookup() = %q, want dest:1", got)
	}
}

func TestForwardingTable_ChangeRejectsNonFinal(t *testing.T) {
	// GIVEN a fresh table
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)

	// WHEN Change is called with final=false
	err := table.Change("fn", "dest:1", 1, false)

	// THEN it fails with ErrInvalidConfiguration (open question (b))
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("Change(final=false) err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestForwardingTable_RemoveDestroysEmptyEntry(t *testing.T) {
	// GIVEN a table with a single (lambda, destination)
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	table.Change("fn", "dest:1", 1, true)

	// WHEN its only destination is removed
	if err := table.Remove("fn", "dest:1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	// THEN the lambda is gone entirely, not just empty
	_, err := table.Lookup("fn")
	if !errors.Is(err, ErrNoDestinations) {
		t.Fatalf("Lookup after Remove err = %v, want ErrNoDestinations", err)
	}
}

func TestForwardingTable_RemoveUnknownLambda(t *testing.T) {
	// GIVEN an empty table
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)

	// WHEN Remove targets an unknown lambda
	err := table.Remove("ghost", "dest:1")

	// THEN it fails with ErrDestinationNotFound
	if !errors.Is(err, ErrDestinationNotFound) {
		t.Fatalf("Remove err = %v, want ErrDestinationNotFound", err)
	}
}

func TestForwardingTable_UpdateWeightUnknownIsNotFound(t *testing.T) {
	// GIVEN an empty table
	table, _ := NewForwardingTable(PolicyLeastImpedance, 0)

	// WHEN UpdateWeight targets an absent (lambda, destination)
	err := table.UpdateWeight("fn", "dest:1", 1, 2)

	// THEN it fails with ErrDestinationNotFound (the caller, e.g.
	// LocalOptimizer, is expected to treat this as a dropped observation)
	if !errors.Is(err, ErrDestinationNotFound) {
		t.Fatalf("UpdateWeight err = %v, want ErrDestinationNotFound", err)
	}
}

func TestForwardingTable_DestinationsInsertionOrder(t *testing.T) {
	// GIVEN a table with destinations added out of alphabetical order
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	table.Change("fn", "c", 1, true)
	table.Change("fn", "a", 1, true)
	table.Change("fn", "b", 1, true)

	// WHEN Destinations is called
	got, err := table.Destinations("fn")
	if err != nil {
		t.Fatalf("Destinations: %v", err)
	}

	// THEN it preserves insertion order
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Destinations() = %v, want %v", got, want)
		}
	}
}

func TestForwardingTable_FlushRemovesEverything(t *testing.T) {
	// GIVEN a table with entries across multiple lambdas
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	table.Change("fn1", "dest:1", 1, true)
	table.Change("fn2", "dest:2", 1, true)

	// WHEN Flush is called
	table.Flush()

	// THEN every lambda is gone
	if _, err := table.Lookup("fn1"); !errors.Is(err, ErrNoDestinations) {
		t.Fatalf("Lookup(fn1) after Flush err = %v, want ErrNoDestinations", err)
	}
	if _, err := table.Lookup("fn2"); !errors.Is(err, ErrNoDestinations) {
		t.Fatalf("Lookup(fn2) after Flush err = %v, want ErrNoDestinations", err)
	}
}

func TestForwardingTable_NumTablesIsAlwaysOne(t *testing.T) {
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	if got := table.NumTables(); got != 1 {
		t.Fatalf("NumTables() = %d, want 1", got)
	}
}

func TestForwardingTable_DumpIsSortedAndDeterministic(t *testing.T) {
	// GIVEN a table with two lambdas, each with destinations out of order
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	table.Change("z-fn", "b", 2, true)
	table.Change("z-fn", "a", 1, true)
	table.Change("a-fn", "x", 3, true)

	// WHEN Dump is called twice
	first := table.Dump()
	second := table.Dump()

	// THEN the output is identical and lambda-sorted
	if first != second {
		t.Fatalf("Dump() not deterministic:\n%q\nvs\n%q", first, second)
	}
	want := "a-fn x 3 true\nz-fn a 1 true\nz-fn b 2 true\n"
	if first != want {
		t.Fatalf("Dump() = %q, want %q", first, want)
	}
}

func TestForwardingTable_InvalidPolicyRejected(t *testing.T) {
	_, err := NewForwardingTable("bogus", 0)
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("NewForwardingTable err = %v, want ErrInvalidConfiguration", err)
	}
}
