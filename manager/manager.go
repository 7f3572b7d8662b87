// Package manager implements the dependency-DAG scheduler: registering
// ParameterProviders with optional dependencies and timeouts, executing
// them per record in (reverse) topological order, scheduling each node
// inline or as a goroutine per the async/live-dependency rule, and
// aggregating the outcome into a Result.
package manager

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Hochfrequenz/bo4e-migration-framework/bind"
	"github.com/Hochfrequenz/bo4e-migration-framework/errid"
	"github.com/Hochfrequenz/bo4e-migration-framework/internal/logx"
	"github.com/Hochfrequenz/bo4e-migration-framework/internal/metrics"
	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/verrors"
)

// ConfigError is raised by Register when a dependency has not been
// registered yet or the same validator is re-registered with a different
// configuration. It is never wrapped into a verrors.ValidationError.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

type registration struct {
	mv        bind.ParameterProvider
	dependsOn []bind.ParameterProvider
	timeout   time.Duration
}

// RegisterOption configures a single Register call.
type RegisterOption func(*registration)

// WithDependsOn declares that the node being registered must not run until
// every dep has finished (successfully or not).
func WithDependsOn(deps ...bind.ParameterProvider) RegisterOption {
	return func(r *registration) { r.dependsOn = append(r.dependsOn, deps...) }
}

// WithTimeout bounds a single invocation of the node's user function.
func WithTimeout(d time.Duration) RegisterOption {
	return func(r *registration) { r.timeout = d }
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogSummary enables a one-line-per-record outcome digest after each
// record finishes, matching the log_summary flag from the original
// implementation.
func WithLogSummary(enabled bool) Option {
	return func(m *Manager) { m.logSummary = enabled }
}

// WithDefaultTimeout sets the timeout applied to nodes registered without
// an explicit WithTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) { m.defaultTimeout = d }
}

// WithMetrics attaches a pre-existing Metrics instance instead of the one
// a Manager creates by default, so callers can share one across Managers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithLogger overrides the Manager's logger.
func WithLogger(l *logx.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns a dependency DAG of ParameterProviders and runs them,
// per record, to produce a Result.
type Manager struct {
	mu    sync.Mutex
	order []bind.ParameterProvider
	nodes map[bind.ParameterProvider]*registration

	logSummary     bool
	defaultTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *logx.Logger
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		nodes:   make(map[bind.ParameterProvider]*registration),
		metrics: metrics.New(),
		logger:  logx.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Metrics returns the Manager's metrics sink.
func (m *Manager) Metrics() *metrics.Metrics { return m.metrics }

// Register adds mv to the dependency DAG. Registering the identical
// (validator, binding spec) pair a second time with an identical
// configuration is a no-op; registering it again with a different
// dependency set or timeout is a *ConfigError.
func (m *Manager) Register(mv bind.ParameterProvider, opts ...RegisterOption) error {
	reg := &registration{mv: mv}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.timeout == 0 {
		reg.timeout = m.defaultTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.order {
		if existing.Equal(mv) {
			prior := m.nodes[existing]
			if sameRegistration(prior, reg) {
				return nil
			}
			return &ConfigError{Reason: fmt.Sprintf(
				"validator %q is already registered with a different configuration", mv.Validator().Name())}
		}
	}

	for _, dep := range reg.dependsOn {
		if _, ok := m.nodes[dep]; !ok {
			return &ConfigError{Reason: fmt.Sprintf(
				"validator %q depends on a validator that is not registered: %s", mv.Validator().Name(), dep.String())}
		}
	}

	m.order = append(m.order, mv)
	m.nodes[mv] = reg
	m.logger.Debug("registered validator %s", mv.String())
	return nil
}

func sameRegistration(a, b *registration) bool {
	if a.timeout != b.timeout || len(a.dependsOn) != len(b.dependsOn) {
		return false
	}
	for i, dep := range a.dependsOn {
		if !dep.Equal(b.dependsOn[i]) {
			return false
		}
	}
	return true
}

// topologicalOrder runs Kahn's algorithm over the dependency DAG
// (dependency -> dependent edges), breaking ties by registration order.
// Registration already rejects any dependency that was not registered
// before its dependent, so the graph is acyclic by construction.
func (m *Manager) topologicalOrder() []bind.ParameterProvider {
	indexOf := make(map[bind.ParameterProvider]int, len(m.order))
	for i, mv := range m.order {
		indexOf[mv] = i
	}

	inDegree := make(map[bind.ParameterProvider]int, len(m.order))
	dependents := make(map[bind.ParameterProvider][]bind.ParameterProvider, len(m.order))
	for _, mv := range m.order {
		reg := m.nodes[mv]
		inDegree[mv] = len(reg.dependsOn)
		for _, dep := range reg.dependsOn {
			dependents[dep] = append(dependents[dep], mv)
		}
	}

	var ready []bind.ParameterProvider
	for _, mv := range m.order {
		if inDegree[mv] == 0 {
			ready = append(ready, mv)
		}
	}

	var out []bind.ParameterProvider
	var next bind.ParameterProvider
	for len(ready) > 0 {
		next, ready = popLowestIndex(ready, indexOf)
		out = append(out, next)
		for _, dependent := range dependents[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return out
}

func popLowestIndex(ready []bind.ParameterProvider, indexOf map[bind.ParameterProvider]int) (bind.ParameterProvider, []bind.ParameterProvider) {
	bestPos := 0
	for i := 1; i < len(ready); i++ {
		if indexOf[ready[i]] < indexOf[ready[bestPos]] {
			bestPos = i
		}
	}
	chosen := ready[bestPos]
	ready = append(ready[:bestPos], ready[bestPos+1:]...)
	return chosen, ready
}

type execState int

const (
	statePending execState = iota
	stateRunning
	stateFinished
)

// runState is the per-record scheduling bookkeeping, rebuilt fresh for
// every record rather than pooled: it closes over record-specific
// goroutines and a verrors.Handler, so reuse across records would leak
// state between runs.
type runState struct {
	mu     sync.Mutex
	states map[bind.ParameterProvider]execState
	done   map[bind.ParameterProvider]chan struct{}
	errs   *verrors.Handler
}

func newRunState(recordID string, logger *logx.Logger) *runState {
	return &runState{
		states: make(map[bind.ParameterProvider]execState),
		done:   make(map[bind.ParameterProvider]chan struct{}),
		errs:   verrors.NewHandler(recordID, logger),
	}
}

func (rs *runState) setState(mv bind.ParameterProvider, s execState) {
	rs.mu.Lock()
	rs.states[mv] = s
	rs.mu.Unlock()
}

// Validate runs every registered node against each record, sequentially
// per record, and returns a Result aggregating all outcomes. Records are
// never processed concurrently with one another; only nodes within a
// single record's run may be scheduled as goroutines.
func (m *Manager) Validate(ctx context.Context, records ...record.Record) *Result {
	m.mu.Lock()
	order := m.topologicalOrder()
	nodes := m.nodes
	m.mu.Unlock()

	handlers := make(map[record.Record]*verrors.Handler, len(records))

	for _, rec := range records {
		start := time.Now()
		rs := newRunState(rec.ID(), m.logger)

		var wg sync.WaitGroup
		for _, mv := range order {
			reg := nodes[mv]
			running := rs.liveDependencies(reg.dependsOn)

			if mv.Validator().IsAsync() || len(running) > 0 {
				rs.setState(mv, stateRunning)
				done := make(chan struct{})
				rs.mu.Lock()
				rs.done[mv] = done
				rs.mu.Unlock()

				wg.Add(1)
				go func(mv bind.ParameterProvider, reg *registration, running []chan struct{}) {
					defer wg.Done()
					defer close(done)
					for _, d := range running {
						<-d
					}
					m.runNode(ctx, rs, mv, reg, rec)
					rs.setState(mv, stateFinished)
				}(mv, reg, running)
				continue
			}

			rs.setState(mv, stateRunning)
			m.runNode(ctx, rs, mv, reg, rec)
			rs.setState(mv, stateFinished)
		}
		wg.Wait()

		handlers[rec] = rs.errs
		clean := len(rs.errs.All()) == 0
		m.metrics.RecordRecord(time.Since(start), clean)
		if m.logSummary {
			m.logger.Info("record %s: %d error(s)", rec.ID(), len(rs.errs.All()))
		}
	}

	return newResult(handlers)
}

// liveDependencies returns the completion channels of deps that are
// currently RUNNING (i.e. were dispatched as a goroutine and have not
// finished yet). Deps that already finished inline, or have not started,
// are not "live" for scheduling purposes.
func (rs *runState) liveDependencies(deps []bind.ParameterProvider) []chan struct{} {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var out []chan struct{}
	for _, dep := range deps {
		if rs.states[dep] == stateRunning {
			out = append(out, rs.done[dep])
		}
	}
	return out
}

// dependencyErrored reports whether any of deps (regardless of how they
// were scheduled) recorded at least one error.
func (rs *runState) dependencyErrored(deps []bind.ParameterProvider) []string {
	var failed []string
	for _, dep := range deps {
		if len(rs.errs.For(dep)) > 0 {
			failed = append(failed, dep.Validator().Name())
		}
	}
	return failed
}

func (m *Manager) runNode(ctx context.Context, rs *runState, mv bind.ParameterProvider, reg *registration, rec record.Record) {
	start := time.Now()
	name := mv.Validator().Name()

	if failed := rs.dependencyErrored(reg.dependsOn); len(failed) > 0 {
		rs.errs.Catch(
			fmt.Sprintf("Execution abandoned due to failing dependent validators: %s", joinNames(failed)),
			fmt.Errorf("errors in depending validators"),
			mv, name, nil, errid.IDDependencyAbandoned,
		)
		m.metrics.RecordAbandoned()
		return
	}

	errsBefore := len(rs.errs.For(mv))

	for _, outcome := range mv.Provide(rec) {
		if outcome.Err != nil {
			rs.errs.Catch(outcome.Err.Error(), outcome.Err, mv, name, nil, errid.IDParameterProviderErrored)
			continue
		}
		m.invoke(ctx, rs, mv, reg, name, outcome.Params)
	}

	m.metrics.RecordNode(name, time.Since(start), len(rs.errs.For(mv))-errsBefore)
}

// invoke builds the declared-order reflect.Value argument list from params
// and calls the validator under reg's timeout (if any), routing any error
// through rs.errs.Guard so a context deadline is tagged as a timeout.
func (m *Manager) invoke(ctx context.Context, rs *runState, mv bind.ParameterProvider, reg *registration, name string, params *bind.Parameters) {
	v := mv.Validator()
	dict := params.ParamDict()
	args := make([]reflect.Value, len(v.ParamNames()))
	for i, pname := range v.ParamNames() {
		decl, _ := v.Param(pname)
		val, ok := dict[pname]
		if !ok {
			val = decl.Default
		}
		if val == nil {
			args[i] = reflect.Zero(decl.Type)
			continue
		}
		valType := reflect.TypeOf(val)
		if !valType.AssignableTo(decl.Type) {
			rs.errs.Catch(
				fmt.Sprintf("parameter %q has type %s but validator declares %s", pname, valType, decl.Type),
				fmt.Errorf("type mismatch for parameter %q", pname),
				mv, name, params, errid.IDTypeMismatch,
			)
			return
		}
		args[i] = reflect.ValueOf(val)
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	var timeoutSeconds float64
	if reg.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, reg.timeout)
		timeoutSeconds = reg.timeout.Seconds()
	}
	defer cancel()

	errsBefore := len(rs.errs.For(mv))
	rs.errs.Guard(mv, name, params, timeoutSeconds, func() error {
		return v.Call(callCtx, args)
	})
	if len(rs.errs.For(mv)) > errsBefore && callCtx.Err() == context.DeadlineExceeded {
		m.metrics.RecordTimeout()
	}
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
