package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
)

// Kind identifies the variant of a node.
type Kind string

const (
	KindSource       Kind = "source"
	KindStage        Kind = "stage"
	KindConcurrent   Kind = "concurrent"
	KindErrorChannel Kind = "error_channel"
)

// State is the lifecycle state of a node.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Stats is a snapshot of a node's counters.
type Stats struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Kind        Kind          `json:"kind"`
	State       State         `json:"state"`
	Policy      string        `json:"policy,omitempty"`
	Concurrency int           `json:"concurrency,omitempty"`
	Received    int64         `json:"received"`
	Emitted     int64         `json:"emitted"`
	Skipped     int64         `json:"skipped"`
	Ignored     int64         `json:"ignored"`
	Forwarded   int64         `json:"forwarded"`
	InFlight    int64         `json:"in_flight"`
	Queued      int64         `json:"queued"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at,omitzero"`
	FinishedAt  time.Time     `json:"finished_at,omitzero"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
}

// Node is the untyped view of every stage in a graph.
type Node interface {
	ID() string
	Name() string
	Kind() Kind
	// Done is closed once the node completed or failed.
	Done() <-chan struct{}
	// Err returns the fatal error after Done, or nil.
	Err() error
	// Abort destroys the node with err. It is a no-op once the node finished.
	Abort(err error)
	Stats() Stats
	CheckHealth(ctx context.Context) observability.Health

	core() *node
	errorPort() errorPort
}

// Producer is a node emitting items of type T.
type Producer[T any] interface {
	Node
	output() *emitter[T]
}

// Consumer is a node accepting items of type T.
type Consumer[T any] interface {
	Node
	input() *inlet[T]
}

// inputPort lets the untyped composer connect a producer whose element
// type is only known at run time.
type inputPort interface {
	Node
	accepts(src Node) bool
	linkFrom(src Node, errCh *ErrorChannel) error
}

// errorPort routes a producer's records into an error channel.
type errorPort interface {
	routeErrors(ch *ErrorChannel) (bool, error)
	attachDiscard() error
}

// node holds the lifecycle shared by every kind.
type node struct {
	id     string
	name   string
	kind   Kind
	policy string
	log    *logger.Logger

	concurrency int

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	run   func(ctx context.Context) error
	close func(err error)

	mu         sync.Mutex
	err        error
	upstream   []*node
	onFail     []func(error)
	launched   bool
	startedAt  time.Time
	finishedAt time.Time

	startOnce  sync.Once
	launchOnce sync.Once

	received  atomic.Int64
	emitted   atomic.Int64
	skipped   atomic.Int64
	ignored   atomic.Int64
	forwarded atomic.Int64
	inFlight  atomic.Int64
	queued    atomic.Int64
}

func newNode(kind Kind, s *settings) *node {
	ctx, cancel := context.WithCancelCause(context.Background())
	n := &node{
		id:   uuid.NewString(),
		name: s.name,
		kind: kind,
		ctx:  ctx,
		done: make(chan struct{}),
	}
	n.cancel = cancel
	if kind != KindSource {
		n.policy = s.policy()
	}
	n.log = s.log.WithFields(logger.Fields(
		logger.FieldStage, n.name,
		logger.FieldStageID, n.id,
		logger.FieldKind, string(kind),
	))
	return n
}

func (n *node) ID() string            { return n.id }
func (n *node) Name() string          { return n.name }
func (n *node) Kind() Kind            { return n.kind }
func (n *node) Done() <-chan struct{} { return n.done }
func (n *node) core() *node           { return n }

func (n *node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Abort cancels the node and makes sure its goroutine runs to finish it.
// Upstream producers are not started.
func (n *node) Abort(err error) {
	select {
	case <-n.done:
		return
	default:
	}
	if err == nil {
		err = errors.Aborted(n.name, nil)
	}
	n.cancel(err)
	n.launch()
}

// started reports whether the node's goroutine was launched.
func (n *node) started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.launched
}

func (n *node) addUpstream(up *node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.upstream = append(n.upstream, up)
}

func (n *node) addOnFail(fn func(error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onFail = append(n.onFail, fn)
}

// start launches the node and, recursively, everything feeding it.
func (n *node) start() {
	n.startOnce.Do(func() {
		n.launch()
		n.mu.Lock()
		upstream := append([]*node(nil), n.upstream...)
		n.mu.Unlock()
		for _, up := range upstream {
			up.start()
		}
	})
}

func (n *node) launch() {
	n.launchOnce.Do(func() {
		n.mu.Lock()
		n.launched = true
		n.startedAt = time.Now()
		n.mu.Unlock()
		go n.loop()
	})
}

func (n *node) loop() {
	n.log.Debug("stage started", logger.Fields(logger.FieldPolicy, n.policy))

	err := n.run(n.ctx)
	if err != nil && n.ctx.Err() != nil {
		// An abort from outside explains the failed run. A run that
		// returned nil delivered everything; an abort arriving after it
		// changes nothing.
		err = context.Cause(n.ctx)
	}
	n.cancel(errFinished)

	if err != nil {
		n.mu.Lock()
		hooks := n.onFail
		n.mu.Unlock()
		for _, hook := range hooks {
			hook(err)
		}
	}
	n.finish(err)
	n.close(err)
}

var errFinished = stderrors.New("stage finished")

func (n *node) finish(err error) {
	n.mu.Lock()
	n.err = err
	n.finishedAt = time.Now()
	elapsed := n.finishedAt.Sub(n.startedAt)
	n.mu.Unlock()

	fields := logger.Fields(
		logger.FieldProcessed, n.received.Load(),
		logger.FieldEmitted, n.emitted.Load(),
		logger.FieldDuration, elapsed.Milliseconds(),
	)
	switch {
	case err == nil:
		n.log.Debug("stage completed", fields)
	case ownFailure(err):
		n.log.WithError(err).Error("stage failed", fields)
	default:
		n.log.WithError(err).Debug("stage stopped", fields)
	}
	close(n.done)
}

func (n *node) Stats() Stats {
	n.mu.Lock()
	st := Stats{
		ID:          n.id,
		Name:        n.name,
		Kind:        n.kind,
		Policy:      n.policy,
		Concurrency: n.concurrency,
		StartedAt:   n.startedAt,
		FinishedAt:  n.finishedAt,
	}
	launched, err := n.launched, n.err
	n.mu.Unlock()

	select {
	case <-n.done:
		st.State = StateCompleted
		if err != nil {
			st.State = StateFailed
			st.Error = err.Error()
		}
		st.Duration = st.FinishedAt.Sub(st.StartedAt)
	default:
		st.State = StatePending
		if launched {
			st.State = StateRunning
		}
	}

	st.Received = n.received.Load()
	st.Emitted = n.emitted.Load()
	st.Skipped = n.skipped.Load()
	st.Ignored = n.ignored.Load()
	st.Forwarded = n.forwarded.Load()
	st.InFlight = n.inFlight.Load()
	st.Queued = n.queued.Load()
	return st
}

// CheckHealth reports down for a node that failed on its own, degraded for
// one stopped by its neighbors, and up otherwise.
func (n *node) CheckHealth(_ context.Context) observability.Health {
	st := n.Stats()
	h := observability.Health{
		Name:   n.name,
		Status: observability.HealthStatusUp,
		Details: map[string]string{
			"id":    n.id,
			"kind":  string(n.kind),
			"state": string(st.State),
		},
	}
	if st.State != StateFailed {
		return h
	}
	h.Message = st.Error
	h.Status = observability.HealthStatusDegraded
	if ownFailure(n.Err()) {
		h.Status = observability.HealthStatusDown
	}
	return h
}

// ownFailure reports whether err originated in the node itself rather than
// reaching it from a neighbor.
func ownFailure(err error) bool {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return err != nil
	}
	return appErr.Code == errors.ErrCodeStageFailed || appErr.Code == errors.ErrCodeInternal
}
