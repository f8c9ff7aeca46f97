package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Transport forwards a request to a concrete destination and returns
// its response. It is the external collaborator §1 places out of core
// scope (the gRPC/QUIC/HTTP adapters); the core only needs this
// interface to bind to. A non-nil error is always surfaced as
// ErrDestinationUnreachable by Dispatcher.Process, regardless of its
// underlying cause.
type Transport interface {
	Send(ctx context.Context, destination string, req *Request) (*Response, error)
}

// Router selects a destination for a request. Both *ForwardingTable
// (via the tableRouter adapter) and *PtimeEstimatorRtt implement it,
// letting Dispatcher treat "ask the forwarding table" and "ask the
// processing-time estimator" uniformly (§4.5).
type Router interface {
	Route(req *Request) (string, error)
}

// tableRouter adapts ForwardingTable.Lookup to the Router interface.
type tableRouter struct{ table *ForwardingTable }

func (t tableRouter) Route(req *Request) (string, error) { return t.table.Lookup(req.LambdaName) }

// job is one unit of work handed to the worker pool: a request plus the
// channel its result is delivered on.
type job struct {
	ctx    context.Context
	req    *Request
	result chan<- jobResult
}

type jobResult struct {
	resp *Response
	err  error
}

// Dispatcher glues the forwarding table, local optimizer, and optional
// processing-time estimator to a request-handling frontend (§4.5, C5).
// It owns a fixed-size pool of worker goroutines (§5): each worker
// handles one request at a time, blocking only while calling into
// Transport; the table/optimizer/estimator are shared across workers
// and each owns its own mutex, so a slow destination stalls only the
// worker handling it, never lookups for other requests.
type Dispatcher struct {
	Table     *ForwardingTable
	Optimizer *LocalOptimizer
	Estimator *PtimeEstimatorRtt // nil if no estimator-based routing is configured
	Transport Transport
	Failures  *FailureTracker // nil disables consecutive-failure eviction

	router     Router
	numWorkers int
	jobs       chan job
	eg         *errgroup.Group
	cancel     context.CancelFunc

	// shutdownMu guards the close of jobs: Process holds it for
	// reading while submitting, Shutdown takes it for writing before
	// closing, so a submission can never race a close.
	shutdownMu sync.RWMutex
	closed     bool
}

// NewDispatcher assembles a Dispatcher. If estimator is non-nil, it is
// used as the router (PtimeEstimator-based routing); otherwise requests
// are routed through table. numWorkers is the fixed size of the worker
// pool (§5); values <= 0 are treated as 1.
func NewDispatcher(table *ForwardingTable, optimizer *LocalOptimizer, estimator *PtimeEstimatorRtt, transport Transport, numWorkers int) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	var router Router = tableRouter{table: table}
	if estimator != nil {
		router = estimator
	}
	return &Dispatcher{
		Table:      table,
		Optimizer:  optimizer,
		Estimator:  estimator,
		Transport:  transport,
		router:     router,
		numWorkers: numWorkers,
		jobs:       make(chan job, numWorkers),
	}
}

// Run starts the worker pool (non-blocking). Each worker pulls jobs
// off the internal queue and runs them through process until ctx is
// canceled or Shutdown is called.
func (d *Dispatcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(ctx)
	d.eg = eg
	d.cancel = cancel

	for i := 0; i < d.numWorkers; i++ {
		eg.Go(func() error {
			for {
				select {
				case j, ok := <-d.jobs:
					if !ok {
						return nil
					}
					resp, err := d.process(j.ctx, j.req)
					j.result <- jobResult{resp: resp, err: err}
				case <-egCtx.Done():
					return nil
				}
			}
		})
	}
	logrus.Infof("dispatcher started with %d workers", d.numWorkers)
}

// Process submits req to the worker pool and blocks until a worker
// processes it or ctx is canceled.
func (d *Dispatcher) Process(ctx context.Context, req *Request) (*Response, error) {
	result := make(chan jobResult, 1)

	d.shutdownMu.RLock()
	if d.closed {
		d.shutdownMu.RUnlock()
		return nil, errors.New("dispatcher: shutting down, not accepting new work")
	}
	select {
	case d.jobs <- job{ctx: ctx, req: req, result: result}:
		d.shutdownMu.RUnlock()
	case <-ctx.Done():
		d.shutdownMu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-result:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// process is the per-request pipeline run by a single worker (§4.5):
// (1) ask the active router for a destination; (2) forward via
// Transport; (3) measure elapsed time; (4) notify the optimizer and
// (if present) the estimator; (5) return the response.
func (d *Dispatcher) process(ctx context.Context, req *Request) (*Response, error) {
	destination, err := d.router.Route(req)
	if err != nil {
		return nil, err
	}

	if req.Dry {
		return &Response{RetCode: RetCodeOK, ResponderEndpoint: destination, Hops: 1}, nil
	}

	start := time.Now()
	resp, err := d.Transport.Send(ctx, destination, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if d.Failures != nil && d.Failures.RecordFailure(req.LambdaName, destination) {
			logrus.WithFields(logrus.Fields{
				"lambda":      req.LambdaName,
				"destination": destination,
			}).Warn("dispatcher: evicting destination after repeated transport failures")
			_ = d.Table.Remove(req.LambdaName, destination)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDestinationUnreachable, destination, err)
	}
	if d.Failures != nil {
		d.Failures.RecordSuccess(req.LambdaName, destination)
	}

	resp.ResponderEndpoint = destination
	resp.Hops = 1
	if resp.RetCode == "" {
		resp.RetCode = RetCodeOK
	}

	d.Optimizer.Observe(req, destination, elapsed)
	if d.Estimator != nil {
		d.Estimator.ProcessSuccess(req, destination, resp, elapsed)
	}

	logrus.WithFields(logrus.Fields{
		"lambda":      req.LambdaName,
		"destination": destination,
		"elapsed_s":   elapsed,
	}).Debug("dispatcher: request processed")

	return resp, nil
}

// Shutdown stops accepting new work and waits for in-flight calls to
// complete, bounded by ctx's deadline (§5): close the job queue, let
// workers drain it, then join them.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.shutdownMu.Lock()
	d.closed = true
	close(d.jobs)
	d.shutdownMu.Unlock()
	done := make(chan error, 1)
	go func() { done <- d.eg.Wait() }()

	select {
	case err := <-done:
		logrus.Info("dispatcher stopped")
		return err
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// IsUnreachable reports whether err is (or wraps) ErrDestinationUnreachable.
func IsUnreachable(err error) bool { return errors.Is(err, ErrDestinationUnreachable) }
