package dispatch

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/sampleuv"
)

// Element is a single destination within an Entry: a stable identifier,
// a nonnegative weight (lower is better), and the "final" flag (§3).
type Element struct {
	ID     string
	Weight float64
	Final  bool
}

// Entry is a single (lambda → weighted destinations) record with a
// selection policy (§4.1). Implementations are NOT safe for concurrent
// use: ForwardingTable is the serialization point (§5) and callers must
// hold its mutex around every Entry method call.
type Entry interface {
	// Select picks one destination, failing with ErrNoDestinations if
	// the entry has none.
	Select() (string, error)

	// Change inserts or updates a destination. It is idempotent.
	Change(dest string, weight float64, final bool) error

	// AddStrict inserts a new destination, failing with
	// ErrDestinationAlreadyExists if dest is already present.
	AddStrict(dest string, weight float64, final bool) error

	// Remove deletes a destination, failing with ErrDestinationNotFound
	// if absent.
	Remove(dest string) error

	// UpdateWeight changes dest's weight, asserting the caller's view
	// of the old weight. Used by LocalOptimizer to update weights
	// without re-deriving policy-internal state from scratch.
	UpdateWeight(dest string, oldWeight, newWeight float64) error

	// Len returns the number of destinations currently in the entry.
	Len() int

	// Snapshot returns a deep copy of the entry's elements in
	// insertion order, for admin dump (§4.2).
	Snapshot() []Element
}

// validateWeight rejects negative or non-finite weights (§4.1, §7).
func validateWeight(weight float64) error {
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return invalidWeightf("weight must be finite, got %v", weight)
	}
	if weight < 0 {
		return invalidWeightf("weight must be >= 0, got %v", weight)
	}
	return nil
}

// base holds the data common to every selection policy: the set of
// elements plus their insertion order. Per the design notes (§9), the
// "cached iterator" of the original C++ is replaced with stable string
// handles (destination IDs) into this map, with insertion order tracked
// separately — no pointer aliasing into the container survives a
// mutation that reorders it.
type base struct {
	order []string // insertion order; the tie-break reference
	elems map[string]*Element
}

func newBase() base {
	return base{elems: make(map[string]*Element)}
}

func (b *base) Len() int { return len(b.order) }

func (b *base) Snapshot() []Element {
	out := make([]Element, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.elems[id])
	}
	return out
}

// insert adds a brand-new destination to order/elems. Caller must have
// already verified dest is absent.
func (b *base) insert(dest string, weight float64, final bool) {
	b.elems[dest] = &Element{ID: dest, Weight: weight, Final: final}
	b.order = append(b.order, dest)
}

// delete removes dest from order/elems. Caller must have verified it is
// present.
func (b *base) delete(dest string) {
	delete(b.elems, dest)
	for i, id := range b.order {
		if id == dest {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// RoundRobin maintains a cursor over the insertion-ordered sequence.
// The cursor is a destination identifier, not an index, so insertions
// at the end never cause a skip (§4.1).
type RoundRobin struct {
	base
	lastID string
	seeded bool
}

// NewRoundRobin creates an empty round-robin entry.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{base: newBase()}
}

func (r *RoundRobin) Select() (string, error) {
	if len(r.order) == 0 {
		return "", ErrNoDestinations
	}
	start := 0
	if r.seeded {
		for i, id := range r.order {
			if id == r.lastID {
				start = (i + 1) % len(r.order)
				break
			}
		}
	}
	next := r.order[start]
	r.lastID = next
	r.seeded = true
	return next, nil
}

func (r *RoundRobin) Change(dest string, weight float64, final bool) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	if e, ok := r.elems[dest]; ok {
		e.Weight, e.Final = weight, final
		return nil
	}
	r.insert(dest, weight, final)
	return nil
}

func (r *RoundRobin) AddStrict(dest string, weight float64, final bool) error {
	if _, ok := r.elems[dest]; ok {
		return fmt.Errorf("%w: %s", ErrDestinationAlreadyExists, dest)
	}
	return r.Change(dest, weight, final)
}

func (r *RoundRobin) Remove(dest string) error {
	if _, ok := r.elems[dest]; !ok {
		return fmt.Errorf("%w: %s", ErrDestinationNotFound, dest)
	}
	r.delete(dest)
	return nil
}

func (r *RoundRobin) UpdateWeight(dest string, _, newWeight float64) error {
	if err := validateWeight(newWeight); err != nil {
		return err
	}
	e, ok := r.elems[dest]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDestinationNotFound, dest)
	}
	e.Weight = newWeight
	return nil
}

// minTracking is the shared logic behind LeastImpedance and LeastQueue:
// both always return the destination with the smallest weight,
// maintaining a cached minimum identifier that is updated in O(1) when
// possible and fully rescanned only when the cached minimum is
// invalidated (§4.1, §9).
type minTracking struct {
	base
	minID  string
	hasMin bool
}

func (m *minTracking) Select() (string, error) {
	if len(m.order) == 0 {
		return "", ErrNoDestinations
	}
	if !m.hasMin {
		m.rescan()
	}
	return m.minID, nil
}

// rescan recomputes the cached minimum by a full O(n) scan, breaking
// ties by first occurrence in insertion order.
func (m *minTracking) rescan() {
	if len(m.order) == 0 {
		m.hasMin = false
		return
	}
	best := m.order[0]
	bestW := m.elems[best].Weight
	for _, id := range m.order[1:] {
		if w := m.elems[id].Weight; w < bestW {
			best, bestW = id, w
		}
	}
	m.minID, m.hasMin = best, true
}

func (m *minTracking) Change(dest string, weight float64, final bool) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	if e, ok := m.elems[dest]; ok {
		old := e.Weight
		e.Weight, e.Final = weight, final
		m.onWeightChanged(dest, old, weight)
		return nil
	}
	m.insert(dest, weight, final)
	m.onInserted(dest, weight)
	return nil
}

func (m *minTracking) AddStrict(dest string, weight float64, final bool) error {
	if _, ok := m.elems[dest]; ok {
		return fmt.Errorf("%w: %s", ErrDestinationAlreadyExists, dest)
	}
	return m.Change(dest, weight, final)
}

func (m *minTracking) Remove(dest string) error {
	if _, ok := m.elems[dest]; !ok {
		return fmt.Errorf("%w: %s", ErrDestinationNotFound, dest)
	}
	wasMin := m.hasMin && m.minID == dest
	m.delete(dest)
	if wasMin {
		m.rescan()
	}
	return nil
}

func (m *minTracking) UpdateWeight(dest string, oldWeight, newWeight float64) error {
	if err := validateWeight(newWeight); err != nil {
		return err
	}
	e, ok := m.elems[dest]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDestinationNotFound, dest)
	}
	e.Weight = newWeight
	m.onWeightChanged(dest, oldWeight, newWeight)
	return nil
}

// onInserted updates the cached minimum in O(1) when the new element is
// itself a new minimum; otherwise the existing cached minimum (if any)
// remains valid, since adding an element can never invalidate it.
func (m *minTracking) onInserted(dest string, weight float64) {
	if !m.hasMin || weight < m.elems[m.minID].Weight {
		m.minID, m.hasMin = dest, true
	}
}

// onWeightChanged updates the cached minimum in O(1) when possible,
// rescanning only when the cached minimum's weight may have been
// invalidated: either no minimum was cached yet, the minimum itself
// grew (it might no longer be the smallest), or another destination now
// ties it (the insertion-order tie-break decides which one wins).
func (m *minTracking) onWeightChanged(dest string, oldWeight, newWeight float64) {
	switch {
	case !m.hasMin:
		m.rescan()
	case dest == m.minID:
		if newWeight > oldWeight {
			m.rescan()
		}
		// newWeight <= oldWeight: dest was already the minimum and got
		// no larger, so it remains the minimum; minID is unchanged.
	case newWeight < m.elems[m.minID].Weight:
		m.minID = dest
	case newWeight == m.elems[m.minID].Weight:
		m.rescan()
	}
}

// LeastImpedance always returns the destination with the smallest
// weight; ties broken by insertion order (§4.1).
type LeastImpedance struct{ minTracking }

// NewLeastImpedance creates an empty least-impedance entry.
func NewLeastImpedance() *LeastImpedance {
	return &LeastImpedance{minTracking{base: newBase()}}
}

// LeastQueue is selection-rule-identical to LeastImpedance (§4.1). Its
// weights come from whoever writes them to the table: PtimeEstimatorRtt
// does not write weights, and LocalOptimizer updates LeastQueue entries
// exactly as it updates every other entry.
type LeastQueue struct{ minTracking }

// NewLeastQueue creates an empty least-queue entry.
func NewLeastQueue() *LeastQueue {
	return &LeastQueue{minTracking{base: newBase()}}
}

// RandomProportional selects a destination with probability
// proportional to 1/weight; a weight of 0 means "always pick this one,
// break ties uniformly" (§4.1). Weighted sampling is delegated to
// gonum's sampleuv.Weighted, rebuilt from the current weight vector on
// each call — acceptable given the small, bounded destination sets this
// core operates over.
type RandomProportional struct {
	base
	rng *rand.Rand
}

// NewRandomProportional creates an empty random-proportional entry
// seeded deterministically from seed; every seed, including 0, yields a
// reproducible sequence. cmd/run.go passes a seed derived from the
// current time.
func NewRandomProportional(seed int64) *RandomProportional {
	return &RandomProportional{base: newBase(), rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomProportional) Select() (string, error) {
	if len(p.order) == 0 {
		return "", ErrNoDestinations
	}
	var zeros []string
	for _, id := range p.order {
		if p.elems[id].Weight == 0 {
			zeros = append(zeros, id)
		}
	}
	if len(zeros) > 0 {
		return zeros[p.rng.Intn(len(zeros))], nil
	}

	inv := make([]float64, len(p.order))
	for i, id := range p.order {
		inv[i] = 1.0 / p.elems[id].Weight
	}
	sampler := sampleuv.NewWeighted(inv, p.rng)
	idx, ok := sampler.Take()
	if !ok {
		return "", ErrNoDestinations
	}
	return p.order[idx], nil
}

func (p *RandomProportional) Change(dest string, weight float64, final bool) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	if e, ok := p.elems[dest]; ok {
		e.Weight, e.Final = weight, final
		return nil
	}
	p.insert(dest, weight, final)
	return nil
}

func (p *RandomProportional) AddStrict(dest string, weight float64, final bool) error {
	if _, ok := p.elems[dest]; ok {
		return fmt.Errorf("%w: %s", ErrDestinationAlreadyExists, dest)
	}
	return p.Change(dest, weight, final)
}

func (p *RandomProportional) Remove(dest string) error {
	if _, ok := p.elems[dest]; !ok {
		return fmt.Errorf("%w: %s", ErrDestinationNotFound, dest)
	}
	p.delete(dest)
	return nil
}

func (p *RandomProportional) UpdateWeight(dest string, _, newWeight float64) error {
	if err := validateWeight(newWeight); err != nil {
		return err
	}
	e, ok := p.elems[dest]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDestinationNotFound, dest)
	}
	e.Weight = newWeight
	return nil
}

// Valid selection policy names (§6's "Router configuration string").
const (
	PolicyRandomProportional = "random-proportional"
	PolicyRoundRobin         = "round-robin"
	PolicyLeastImpedance     = "least-impedance"
	PolicyLeastQueue         = "least-queue"
)

// IsValidPolicy returns true if name is a recognized selection policy,
// including the empty string (defaults to random-proportional, §6).
func IsValidPolicy(name string) bool {
	switch name {
	case "", PolicyRandomProportional, PolicyRoundRobin, PolicyLeastImpedance, PolicyLeastQueue:
		return true
	default:
		return false
	}
}

// NewEntry creates an empty Entry for the named policy. seed is used
// only by random-proportional. Returns ErrInvalidConfiguration for an
// unrecognized name.
func NewEntry(policy string, seed int64) (Entry, error) {
	switch policy {
	case "", PolicyRandomProportional:
		return NewRandomProportional(seed), nil
	case PolicyRoundRobin:
		return NewRoundRobin(), nil
	case PolicyLeastImpedance:
		return NewLeastImpedance(), nil
	case PolicyLeastQueue:
		return NewLeastQueue(), nil
	default:
		return nil, invalidConfigf("unknown router policy %q", policy)
	}
}
