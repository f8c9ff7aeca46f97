package dispatch

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// optimizerStalePeriod is the horizon beyond which a prior smoothed
// weight is discarded rather than blended with a new observation
// (§4.3). Unlike the estimator's stale-period, this one is not exposed
// on the wire config string (§6 only exposes type and alpha for the
// local optimizer) — it is a fixed property of the async algorithm.
const optimizerStalePeriod = 5 * time.Second

// optimizerState is the smoothed weight and last-update timestamp for
// one (lambda, destination) pair (§3 OptimizerState).
type optimizerState struct {
	weight float64
	at     time.Time
}

// LocalOptimizer observes request outcomes and rewrites forwarding
// weights using exponentially-weighted smoothing with staleness
// eviction (§4.3). It owns a single mutex guarding all of its state,
// separate from the ForwardingTable's (§5); locks are never held across
// the ForwardingTable.UpdateWeight call's own locking, but Observe does
// hold its own mutex across the compute-then-write-through sequence,
// since that sequence is local, non-blocking arithmetic plus a second
// independently-locked call — it never calls into a transport.
type LocalOptimizer struct {
	mu    sync.Mutex
	table *ForwardingTable
	alpha float64
	clock func() time.Time
	state map[string]map[string]optimizerState // lambda -> dest -> state
}

// NewLocalOptimizer creates an asynchronous local optimizer writing
// through to table with smoothing factor alpha ∈ [0,1]. Returns
// ErrInvalidConfiguration if alpha is out of range.
func NewLocalOptimizer(table *ForwardingTable, alpha float64) (*LocalOptimizer, error) {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, invalidConfigf("alpha must be in [0,1], got %v", alpha)
	}
	return &LocalOptimizer{
		table: table,
		alpha: alpha,
		clock: time.Now,
		state: make(map[string]map[string]optimizerState),
	}, nil
}

// Observe updates the smoothed weight for (req.LambdaName, destination)
// given an observed latency, then writes it through to the forwarding
// table (§4.3). An observation referencing a (lambda, destination) no
// longer present in the table is dropped silently — §7's
// StaleObservation is never surfaced to the caller.
//
// A cold-start or post-staleness-reset observation has no smoothed
// prior value to assert as the "old weight" UpdateWeight's O(1)
// cached-minimum update relies on, so it writes through via
// ResetWeight instead, which derives the old weight itself from the
// table's own state rather than trusting a fabricated sentinel (a
// sentinel of +Inf would permanently defeat LeastImpedance/LeastQueue's
// rescan trigger for a destination that happens to be the cached
// minimum when the spike lands).
func (o *LocalOptimizer) Observe(req *Request, destination string, latencySeconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.clock()
	lambda := req.LambdaName

	byDest, ok := o.state[lambda]
	if !ok {
		byDest = make(map[string]optimizerState)
		o.state[lambda] = byDest
	}

	prev, hadPrev := byDest[destination]
	fresh := hadPrev && now.Sub(prev.at) <= optimizerStalePeriod

	newWeight := latencySeconds
	if fresh {
		newWeight = o.alpha*latencySeconds + (1-o.alpha)*prev.weight
	}
	byDest[destination] = optimizerState{weight: newWeight, at: now}

	var err error
	if fresh {
		err = o.table.UpdateWeight(lambda, destination, prev.weight, newWeight)
	} else {
		err = o.table.ResetWeight(lambda, destination, newWeight)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"lambda":      lambda,
			"destination": destination,
		}).Debug("local optimizer: dropping observation for absent destination")
	}
}
