package dispatch

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// rttSample is a single (value, insertion-timestamp) pair (§3 RttSample).
type rttSample struct {
	value float64
	at    time.Time
}

// RttEstimator holds, per (lambda, destination), a bounded FIFO of the
// most recent W samples (§4.4). Add pushes and evicts the oldest sample
// once the window is full; Estimate prunes samples older than the
// configured stale-period before averaging what remains.
type RttEstimator struct {
	mu          sync.Mutex
	window      int
	stalePeriod time.Duration
	clock       func() time.Time
	samples     map[string]map[string][]rttSample // lambda -> dest -> FIFO, oldest first
}

// NewRttEstimator creates an estimator with the given window size and
// stale-period.
func NewRttEstimator(window int, stalePeriod time.Duration) *RttEstimator {
	return &RttEstimator{
		window:      window,
		stalePeriod: stalePeriod,
		clock:       time.Now,
		samples:     make(map[string]map[string][]rttSample),
	}
}

// Add records value for (lambda, dest), evicting the oldest sample if
// the window is already at capacity (§4.4).
func (r *RttEstimator) Add(lambda, dest string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDest, ok := r.samples[lambda]
	if !ok {
		byDest = make(map[string][]rttSample)
		r.samples[lambda] = byDest
	}
	fifo := append(byDest[dest], rttSample{value: value, at: r.clock()})
	if len(fifo) > r.window {
		fifo = fifo[len(fifo)-r.window:]
	}
	byDest[dest] = fifo
}

// Estimate prunes samples older than stale-period, then returns the
// arithmetic mean of what remains. ok is false if no samples remain
// ("unknown", §3).
func (r *RttEstimator) Estimate(lambda, dest string) (value float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDest, found := r.samples[lambda]
	if !found {
		return 0, false
	}
	fifo := byDest[dest]
	now := r.clock()
	fresh := fifo[:0:0]
	for _, s := range fifo {
		if now.Sub(s.at) <= r.stalePeriod {
			fresh = append(fresh, s)
		}
	}
	byDest[dest] = fresh
	if len(fresh) == 0 {
		return 0, false
	}
	values := make([]float64, len(fresh))
	for i, s := range fresh {
		values[i] = s.value
	}
	return stat.Mean(values, nil), true
}

// PtimeEstimatorRtt estimates per-(lambda, destination) processing time
// from observed RTTs and acts as an alternative router: it returns the
// destination with the smallest current estimate for a lambda (§4.4).
type PtimeEstimatorRtt struct {
	rtt   *RttEstimator
	table *ForwardingTable
}

// NewPtimeEstimatorRtt creates a processing-time estimator backed by an
// RttEstimator with the given window and stale-period, using table to
// discover which destinations are currently known for a lambda.
func NewPtimeEstimatorRtt(table *ForwardingTable, window int, stalePeriod time.Duration) *PtimeEstimatorRtt {
	return &PtimeEstimatorRtt{
		rtt:   NewRttEstimator(window, stalePeriod),
		table: table,
	}
}

// Route returns the destination with the smallest current estimate for
// req.LambdaName, implementing Router so a Dispatcher can use a
// PtimeEstimatorRtt in place of the ForwardingTable. Fails with
// ErrNoDestinations if the lambda has no known destinations or none
// have samples yet (§4.4).
func (p *PtimeEstimatorRtt) Route(req *Request) (string, error) {
	dests, err := p.table.Destinations(req.LambdaName)
	if err != nil {
		return "", err
	}
	best := ""
	bestEstimate := 0.0
	found := false
	for _, dest := range dests {
		estimate, ok := p.rtt.Estimate(req.LambdaName, dest)
		if !ok {
			continue
		}
		if !found || estimate < bestEstimate {
			best, bestEstimate, found = dest, estimate, true
		}
	}
	if !found {
		return "", ErrNoDestinations
	}
	return best, nil
}

// ProcessSuccess computes rtt = elapsedSeconds - resp.ProcessingTimeSeconds,
// clamped to >= 0, and records it as a new sample for (req.LambdaName,
// dest) (§4.4). Servers report their own processing time; subtracting
// it from wall-clock elapsed isolates the destination-only latency
// component a dispatcher can influence by rerouting.
func (p *PtimeEstimatorRtt) ProcessSuccess(req *Request, dest string, resp *Response, elapsedSeconds float64) {
	rtt := elapsedSeconds - resp.ProcessingTimeSeconds
	if rtt < 0 {
		rtt = 0
	}
	p.rtt.Add(req.LambdaName, dest, rtt)
}
