package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskmesh/dagcore/internal/chunkpool"
	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/peer"
	"github.com/taskmesh/dagcore/internal/queue"
	"github.com/taskmesh/dagcore/internal/store"
)

// Scheduler is the per-executor (or per-broker) work-stealing state
// machine. It is single-threaded: all methods assume
// the caller is the owning executor's control loop, except where a peer
// reaches in through a Handle's Transport, which always goes through the
// peer's own Shared deque lock.
type Scheduler struct {
	cfg Config

	reserved *queue.Reserved
	shared   *queue.Shared

	stolen   map[dag.TaskID]struct{}
	expanded map[dag.TaskID]struct{}

	registry map[dag.TaskID]dag.Input

	dependents *dag.Dependents
	rootTask   dag.TaskID
	hasRoot    bool

	peers map[string]*peer.Handle
	meta  store.MetadataStore
	pool  chunkpool.Pool

	resetMu   sync.Mutex
	resetDone chan struct{} // closed when an outstanding async reset completes; nil if none in flight

	tracer trace.Tracer

	metrics schedulerMetrics
}

type schedulerMetrics struct {
	keeps        metric.Int64Counter
	reserves     metric.Int64Counter
	steals       metric.Int64Counter
	stealMisses  metric.Int64Counter
	execs        metric.Int64Counter
	chunkDeletes metric.Int64Counter
	sharedLen    metric.Int64ObservableGauge
}

// New constructs a Scheduler. meta and pool are the node-local metadata
// store and off-heap chunk pool; peers are the known peer handles at
// construction time — a restricted executor set is simply a Scheduler
// built with fewer peers.
func New(cfg Config, meta store.MetadataStore, pool chunkpool.Pool, peers map[string]*peer.Handle, meter metric.Meter) (*Scheduler, error) {
	if cfg.ShareLimit <= 0 {
		cfg.ShareLimit = 1024
	}
	s := &Scheduler{
		cfg:      cfg,
		reserved: queue.NewReserved(),
		shared:   queue.NewShared(cfg.ShareLimit),
		stolen:   make(map[dag.TaskID]struct{}),
		expanded: make(map[dag.TaskID]struct{}),
		registry: make(map[dag.TaskID]dag.Input),
		peers:    peers,
		meta:     meta,
		pool:     pool,
		tracer:   otel.Tracer("dagcore-scheduler"),
	}
	if err := s.initMetrics(meter); err != nil {
		return nil, fmt.Errorf("scheduler metrics: %w", err)
	}
	return s, nil
}

func (s *Scheduler) initMetrics(meter metric.Meter) error {
	var err error
	if s.metrics.keeps, err = meter.Int64Counter("dagcore_scheduler_keeps_total"); err != nil {
		return err
	}
	if s.metrics.reserves, err = meter.Int64Counter("dagcore_scheduler_reserves_total"); err != nil {
		return err
	}
	if s.metrics.steals, err = meter.Int64Counter("dagcore_scheduler_steals_total"); err != nil {
		return err
	}
	if s.metrics.stealMisses, err = meter.Int64Counter("dagcore_scheduler_steal_misses_total"); err != nil {
		return err
	}
	if s.metrics.execs, err = meter.Int64Counter("dagcore_scheduler_execs_total"); err != nil {
		return err
	}
	if s.metrics.chunkDeletes, err = meter.Int64Counter("dagcore_scheduler_chunk_deletes_total"); err != nil {
		return err
	}
	s.metrics.sharedLen, err = meter.Int64ObservableGauge("dagcore_scheduler_shared_length",
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(s.shared.Len()))
			return nil
		}))
	return err
}

// register records the executable behind id, the first time it is seen.
// Re-registration of the same id with a different value is a driver bug
// (TaskIDs are content-addressed) and is ignored rather than panicking.
func (s *Scheduler) register(id dag.TaskID, in dag.Input) {
	if _, ok := s.registry[id]; ok {
		return
	}
	s.registry[id] = in
}

// Init awaits any outstanding async reset, then seeds root_task and
// precomputes dependents by a single traversal.
func (s *Scheduler) Init(ctx context.Context, root *dag.Thunk) error {
	if err := s.awaitReset(ctx); err != nil {
		return err
	}
	s.register(root.ID, dag.ThunkInput(root))
	s.dependents = dag.Build(root)
	s.rootTask = root.ID
	s.hasRoot = true
	return nil
}

func (s *Scheduler) awaitReset(ctx context.Context) error {
	s.resetMu.Lock()
	done := s.resetDone
	s.resetMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears all per-run sets and queues, zeroes counters and unsets the
// root, then forwards to the metadata store's Reset: without dropdb the
// store keeps its persisted results; with dropdb the store drops them.
func (s *Scheduler) Reset(ctx context.Context, dropdb bool) error {
	s.reserved.Reset()
	s.shared.Reset()
	s.stolen = make(map[dag.TaskID]struct{})
	s.expanded = make(map[dag.TaskID]struct{})
	s.registry = make(map[dag.TaskID]dag.Input)
	s.dependents = nil
	s.rootTask = dag.TaskID{}
	s.hasRoot = false
	return s.meta.Reset(ctx, dropdb)
}

// AsyncReset schedules Reset to run in the background and returns
// immediately; the next Init joins on it. Modeled as a single-slot
// future — a second AsyncReset before the first completes replaces the
// pending slot rather than queuing, since there is only ever one
// outstanding reset to join.
func (s *Scheduler) AsyncReset(dropdb bool) {
	done := make(chan struct{})
	s.resetMu.Lock()
	s.resetDone = done
	s.resetMu.Unlock()
	go func() {
		defer close(done)
		_ = s.Reset(context.Background(), dropdb)
	}()
}

// ShouldShare reports whether the shared deque has room for more
// offerings under help_threshold.
func (s *Scheduler) ShouldShare() bool {
	return s.shared.ShouldShare(s.cfg.HelpThreshold)
}

// Peers returns the configured peer handles, keyed by name.
func (s *Scheduler) Peers() map[string]*peer.Handle { return s.peers }

// RootTask returns the current run's root, if any.
func (s *Scheduler) RootTask() (dag.TaskID, bool) { return s.rootTask, s.hasRoot }

// IsExpanded reports whether task's inputs have already been enqueued.
func (s *Scheduler) IsExpanded(task dag.TaskID) bool {
	_, ok := s.expanded[task]
	return ok
}

// Runnable reports whether task has a cached result, is not a Thunk, or
// has every Thunk input's result already available.
func (s *Scheduler) Runnable(ctx context.Context, task dag.TaskID) (bool, error) {
	return s.runnable(ctx, task)
}

// HasResult reports whether task's result has already been published.
func (s *Scheduler) HasResult(ctx context.Context, task dag.TaskID) (bool, error) {
	return s.meta.HasResult(ctx, task)
}

// Result returns task's published result, collecting it into a concrete
// value if the stored result is a Chunk.
func (s *Scheduler) Result(ctx context.Context, task dag.TaskID) (any, error) {
	v, err := s.meta.GetResult(ctx, task)
	if err != nil {
		return nil, err
	}
	if chunk, ok := v.(*dag.Chunk); ok {
		return s.pool.Collect(ctx, chunk)
	}
	return v, nil
}
