package dispatch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBootstrap_AppliesToTable(t *testing.T) {
	// GIVEN a bootstrap YAML file describing two lambdas
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.yaml")
	content := "fn1:\n  - id: dest:1\n    weight: 1.0\n    final: true\nfn2:\n  - id: dest:2\n    weight: 2.0\n    final: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// WHEN it is loaded and applied
	b, err := LoadBootstrap(path)
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)
	if err := b.Apply(table); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// THEN both lambdas resolve through the table
	if got, err := table.Lookup("fn1"); err != nil || got != "dest:1" {
		t.Fatalf("Lookup(fn1) = %q, %v", got, err)
	}
	if got, err := table.Lookup("fn2"); err != nil || got != "dest:2" {
		t.Fatalf("Lookup(fn2) = %q, %v", got, err)
	}
}

func TestLoadBootstrap_RejectsUnknownFields(t *testing.T) {
	// GIVEN a bootstrap file with an unrecognized field
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.yaml")
	content := "fn1:\n  - id: dest:1\n    weight: 1.0\n    final: true\n    bogus: oops\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// WHEN it is loaded with strict decoding
	_, err := LoadBootstrap(path)

	// THEN it fails rather than silently ignoring the field
	if err == nil {
		t.Fatal("LoadBootstrap() expected error for unknown field, got nil")
	}
}

func TestFakeFill_SeedsDeterministicShape(t *testing.T) {
	// GIVEN an empty table
	table, _ := NewForwardingTable(PolicyRoundRobin, 0)

	// WHEN FakeFill is applied with 2 lambdas and 3 destinations each
	if err := FakeFill(table, 2, 3); err != nil {
		t.Fatalf("FakeFill: %v", err)
	}

	// THEN every generated lambda has exactly 3 destinations
	for _, lambda := range []string{"lambda0", "lambda1"} {
		dests, err := table.Destinations(lambda)
		if err != nil {
			t.Fatalf("Destinations(%s): %v", lambda, err)
		}
		if len(dests) != 3 {
			t.Fatalf("Destinations(%s) has %d entries, want 3", lambda, len(dests))
		}
	}
}
