// Package orchestrator supervises the per-source pollers.
// It runs one worker per source, isolates their failures and aggregates
// their counters for the operator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-wallet-ledger/internal/ingestion"
	"solana-wallet-ledger/internal/observability"
)

// Supervisor defaults.
const (
	DefaultStopTimeout  = 30 * time.Second
	DefaultRestartDelay = 5 * time.Second
)

var (
	// ErrNoWorkers is returned by Run when no worker is configured.
	ErrNoWorkers = errors.New("supervisor: no workers")
	// ErrStopTimeout is returned when workers do not finish within the stop timeout.
	ErrStopTimeout = errors.New("supervisor: workers did not stop in time")
)

// Worker is one long-running source loop. *ingestion.Poller implements it.
type Worker interface {
	Name() string
	Run(ctx context.Context, onPoll func(ingestion.PollResult, error)) error
}

// Options contains configuration for creating a Supervisor.
type Options struct {
	Workers      []Worker
	StopTimeout  time.Duration // default 30s
	RestartDelay time.Duration // default 5s
	// Release is called once after all workers stopped or were abandoned.
	// Typically closes the shared storage handles.
	Release func()

	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// SourceStats is the run-time state of one worker.
type SourceStats struct {
	Source              string               `json:"source"`
	Running             bool                 `json:"running"`
	Polls               int                  `json:"polls"`
	Failures            int                  `json:"failures"`
	ConsecutiveFailures int                  `json:"consecutive_failures"`
	StorageFailing      bool                 `json:"storage_failing"`
	Restarts            int                  `json:"restarts"`
	LastError           string               `json:"last_error,omitempty"`
	LastPollAt          int64                `json:"last_poll_at,omitempty"` // ms
	Totals              ingestion.PollResult `json:"totals"`
}

// Stats is a snapshot of the supervisor counters.
type Stats struct {
	RunID     string               `json:"run_id"`
	StartedAt int64                `json:"started_at"` // ms
	Healthy   bool                 `json:"healthy"`
	Sources   []SourceStats        `json:"sources"`
	Total     ingestion.PollResult `json:"total"`
}

// Supervisor runs the workers and collects their results.
type Supervisor struct {
	runID        string
	workers      []Worker
	stopTimeout  time.Duration
	restartDelay time.Duration
	release      func()

	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	sources   map[string]*SourceStats
	running   int
}

// New creates a supervisor.
func New(opts Options) *Supervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	runID := uuid.NewString()
	s := &Supervisor{
		runID:        runID,
		workers:      opts.Workers,
		stopTimeout:  opts.StopTimeout,
		restartDelay: opts.RestartDelay,
		release:      opts.Release,
		log:          opts.Logger.With().Str("component", "supervisor").Str("run_id", runID).Logger(),
		metrics:      opts.Metrics,
		now:          opts.Now,
		sources:      make(map[string]*SourceStats, len(opts.Workers)),
	}
	for _, w := range opts.Workers {
		s.sources[w.Name()] = &SourceStats{Source: w.Name()}
	}
	return s
}

// RunID identifies this supervisor run in logs and stats.
func (s *Supervisor) RunID() string {
	return s.runID
}

// Run starts every worker and blocks until ctx is done. Workers then get
// up to the stop timeout to finish their in-flight poll; stragglers are
// abandoned and ErrStopTimeout is returned. A worker that exits or panics
// while ctx is live is restarted after the restart delay.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.workers) == 0 {
		return ErrNoWorkers
	}
	if s.release != nil {
		defer s.release()
	}

	s.mu.Lock()
	s.startedAt = s.now()
	s.mu.Unlock()

	s.log.Info().Int("workers", len(s.workers)).Msg("supervisor started")

	// Plain group: a failing worker must not cancel its siblings.
	var g errgroup.Group
	for _, w := range s.workers {
		w := w
		g.Go(func() error {
			s.supervise(ctx, w)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("supervisor stopped")
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Dur("timeout", s.stopTimeout).Msg("stopping workers")
	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.log.Info().Msg("supervisor stopped")
		return nil
	case <-timer.C:
		s.log.Error().Strs("running", s.runningWorkers()).Msg("abandoning workers after stop timeout")
		return ErrStopTimeout
	}
}

func (s *Supervisor) supervise(ctx context.Context, w Worker) {
	name := w.Name()
	log := s.log.With().Str("source", name).Logger()

	for {
		s.setRunning(name, true)
		err := s.runWorker(ctx, w)
		s.setRunning(name, false)

		if ctx.Err() != nil {
			return
		}

		if err == nil {
			err = errors.New("worker returned before shutdown")
		}
		log.Error().Err(err).Dur("restart_in", s.restartDelay).Msg("worker exited, restarting")
		s.recordRestart(name, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.restartDelay):
		}
	}
}

// runWorker runs w once, turning a panic into an error.
func (s *Supervisor) runWorker(ctx context.Context, w Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s panicked: %v", w.Name(), r)
		}
	}()
	name := w.Name()
	return w.Run(ctx, func(res ingestion.PollResult, err error) {
		s.record(name, res, err)
	})
}

// record folds one poll outcome into the counters of source.
func (s *Supervisor) record(source string, res ingestion.PollResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats(source)
	st.Polls++
	st.LastPollAt = s.now().UnixMilli()
	st.Totals.Add(res)

	if err != nil {
		st.Failures++
		st.ConsecutiveFailures++
		st.LastError = err.Error()
		st.StorageFailing = ingestion.Classify(err) == ingestion.FailureStorage
		return
	}
	st.ConsecutiveFailures = 0
	// Applies that failed on storage while nothing else got through count
	// as a storage failure even though the poll itself returned no error.
	st.StorageFailing = res.StorageFailed > 0 && res.Applied == 0
}

func (s *Supervisor) recordRestart(source string, err error) {
	s.metrics.RecordWorkerRestart(source)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats(source)
	st.Restarts++
	st.LastError = err.Error()
}

func (s *Supervisor) setRunning(source string, running bool) {
	s.mu.Lock()
	st := s.stats(source)
	if st.Running != running {
		st.Running = running
		if running {
			s.running++
		} else {
			s.running--
		}
	}
	n := s.running
	s.mu.Unlock()

	s.metrics.SetSourcesRunning(n)
}

// stats returns the entry of source, creating it. Caller holds s.mu.
func (s *Supervisor) stats(source string) *SourceStats {
	st, ok := s.sources[source]
	if !ok {
		st = &SourceStats{Source: source}
		s.sources[source] = st
	}
	return st
}

func (s *Supervisor) runningWorkers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name, st := range s.sources {
		if st.Running {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Healthy reports false only when every source is failing on storage.
// Transport trouble on some sources is expected and stays healthy.
func (s *Supervisor) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthyLocked()
}

func (s *Supervisor) healthyLocked() bool {
	if len(s.sources) == 0 {
		return true
	}
	for _, st := range s.sources {
		if !st.StorageFailing {
			return true
		}
	}
	return false
}

// Stats returns a snapshot of all counters, sources ordered by name.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Stats{
		RunID:   s.runID,
		Healthy: s.healthyLocked(),
		Sources: make([]SourceStats, 0, len(s.sources)),
	}
	if !s.startedAt.IsZero() {
		out.StartedAt = s.startedAt.UnixMilli()
	}
	for _, st := range s.sources {
		out.Sources = append(out.Sources, *st)
		out.Total.Add(st.Totals)
	}
	sort.Slice(out.Sources, func(i, j int) bool { return out.Sources[i].Source < out.Sources[j].Source })
	return out
}
