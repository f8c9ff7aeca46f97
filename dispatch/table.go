package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ForwardingTable is a thread-safe mapping from lambda name to Entry
// (§3, §4.2). It is the serialization point for the whole dispatch
// core: all mutating and reading operations acquire mu, and Entry
// implementations assume single-threaded access once inside it (§5).
type ForwardingTable struct {
	mu      sync.Mutex
	entries map[string]Entry
	policy  string // selection policy name applied to every new Entry
	seed    int64  // rng seed handed to random-proportional entries
}

// NewForwardingTable creates an empty forwarding table that creates new
// Entries using the given selection policy. Returns
// ErrInvalidConfiguration for an unrecognized policy name.
func NewForwardingTable(policy string, seed int64) (*ForwardingTable, error) {
	if !IsValidPolicy(policy) {
		return nil, invalidConfigf("unknown router policy %q", policy)
	}
	return &ForwardingTable{
		entries: make(map[string]Entry),
		policy:  policy,
		seed:    seed,
	}, nil
}

// Lookup selects a destination for lambda, failing with
// ErrNoDestinations if the lambda is unknown or has no destinations
// (§4.2).
func (t *ForwardingTable) Lookup(lambda string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[lambda]
	if !ok {
		return "", fmt.Errorf("%w: lambda %q", ErrNoDestinations, lambda)
	}
	return e.Select()
}

// Change inserts or updates a (lambda, destination) forwarding entry.
// An Entry is created on first insertion of any destination for lambda
// (§3 lifecycle). Idempotent: re-applying the same (lambda, dest,
// weight, final) is a no-op error-wise (§7).
func (t *ForwardingTable) Change(lambda, dest string, weight float64, final bool) error {
	if !final {
		// Open question (b): non-final (forwarding) destinations are
		// not exercised anywhere in this core; reject until a use case
		// is specified (§9).
		return invalidConfigf("non-final destination %q for lambda %q is not supported", dest, lambda)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[lambda]
	if !ok {
		var err error
		e, err = NewEntry(t.policy, t.seed)
		if err != nil {
			return err
		}
		t.entries[lambda] = e
	}
	return e.Change(dest, weight, final)
}

// Remove deletes a (lambda, destination) forwarding entry, failing with
// ErrDestinationNotFound if lambda is unknown or dest is absent from
// its entry. The Entry is destroyed once its last destination is
// removed (§3 lifecycle).
func (t *ForwardingTable) Remove(lambda, dest string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[lambda]
	if !ok {
		return fmt.Errorf("%w: lambda %q", ErrDestinationNotFound, lambda)
	}
	if err := e.Remove(dest); err != nil {
		return err
	}
	if e.Len() == 0 {
		delete(t.entries, lambda)
	}
	return nil
}

// UpdateWeight updates dest's weight within lambda's entry without
// touching its "final" flag, asserting oldWeight as dest's current
// weight so a cached-minimum policy can update in O(1) instead of
// rescanning. Callers without a trustworthy oldWeight (see
// LocalOptimizer.Observe's cold-start/stale-reset path) must use
// ResetWeight instead. Fails silently-to-caller with
// ErrDestinationNotFound if lambda or dest is absent; LocalOptimizer
// treats that as a dropped stale observation rather than propagating
// the error (§4.3, §7).
func (t *ForwardingTable) UpdateWeight(lambda, dest string, oldWeight, newWeight float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[lambda]
	if !ok {
		return fmt.Errorf("%w: lambda %q", ErrDestinationNotFound, lambda)
	}
	return e.UpdateWeight(dest, oldWeight, newWeight)
}

// ResetWeight sets dest's weight to newWeight without requiring the
// caller to assert a prior value, falling back to Entry.Change's
// full-rescan semantics so a cached-minimum policy (LeastImpedance,
// LeastQueue) re-derives its minimum from dest's actual previous
// weight rather than one the caller might not know. Used by
// LocalOptimizer for a cold-start or post-staleness-reset observation,
// where there is no trustworthy prior weight to hand to UpdateWeight.
// Fails with ErrDestinationNotFound if lambda or dest is absent.
func (t *ForwardingTable) ResetWeight(lambda, dest string, newWeight float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[lambda]
	if !ok {
		return fmt.Errorf("%w: lambda %q", ErrDestinationNotFound, lambda)
	}
	final := false
	found := false
	for _, el := range e.Snapshot() {
		if el.ID == dest {
			final = el.Final
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: destination %q", ErrDestinationNotFound, dest)
	}
	return e.Change(dest, newWeight, final)
}

// Destinations returns the destination identifiers currently in
// lambda's entry, in insertion order. Fails with ErrNoDestinations if
// lambda is unknown or empty. Used by PtimeEstimatorRtt to discover
// candidate destinations without selecting one.
func (t *ForwardingTable) Destinations(lambda string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[lambda]
	if !ok {
		return nil, fmt.Errorf("%w: lambda %q", ErrNoDestinations, lambda)
	}
	elems := e.Snapshot()
	ids := make([]string, len(elems))
	for i, el := range elems {
		ids[i] = el.ID
	}
	return ids, nil
}

// Flush removes every entry from the table (§4.2).
func (t *ForwardingTable) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]Entry)
}

// NumTables always returns 1: the core supports exactly one forwarding
// table per dispatcher. Multi-table routing is unused in practice and
// intentionally not implemented (open question (a), §9); the method
// exists so the admin TABLE {id} operation has something to validate
// against.
func (t *ForwardingTable) NumTables() int { return 1 }

// TableSnapshot is a lambda → destination → (weight, final) view used
// by the admin dump (§6 TABLE reply).
type TableSnapshot map[string]map[string]Element

// Snapshot returns a deep copy of every entry in the table. External
// components receive only this copy, never references into live state
// (§3 ownership).
func (t *ForwardingTable) Snapshot() TableSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(TableSnapshot, len(t.entries))
	for lambda, e := range t.entries {
		dests := make(map[string]Element)
		for _, el := range e.Snapshot() {
			dests[el.ID] = el
		}
		out[lambda] = dests
	}
	return out
}

// Dump renders the table snapshot as the ASCII format used by the admin
// DUMP operation (§6). Lambdas and destinations are sorted for
// deterministic output.
func (t *ForwardingTable) Dump() string {
	snap := t.Snapshot()
	lambdas := make([]string, 0, len(snap))
	for l := range snap {
		lambdas = append(lambdas, l)
	}
	sort.Strings(lambdas)

	var b strings.Builder
	for _, lambda := range lambdas {
		dests := snap[lambda]
		ids := make([]string, 0, len(dests))
		for id := range dests {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e := dests[id]
			fmt.Fprintf(&b, "%s %s %g %t\n", lambda, e.ID, e.Weight, e.Final)
		}
	}
	return b.String()
}
