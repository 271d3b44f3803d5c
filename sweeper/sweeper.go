// Package sweeper runs the periodic maintenance passes: resuming runs whose
// delay timers elapsed, timing out runs waiting too long for a reply,
// recovering runs stuck mid-step after a crash and dispatching due scheduled
// actions. Every pass works over a bounded batch and isolates per-item
// failures, one bad run never stalls the sweep.
package sweeper

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/engine"
	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/persistence"
	"github.com/a23comunicacoes/oregon-flow/util"
)

const DEFAULT_BATCH_SIZE = 50
const DEFAULT_STALE_AFTER = 10 * time.Minute

type Sweeper struct {
	runs       persistence.RunStore
	actions    persistence.ScheduledActionStore
	executor   *engine.Engine
	dispatcher *ActionDispatcher
	batchSize  int
	staleAfter time.Duration

	wg      *sync.WaitGroup
	workers []*util.TickWorker
}

func New(runs persistence.RunStore, actions persistence.ScheduledActionStore,
	executor *engine.Engine, dispatcher *ActionDispatcher,
	runInterval time.Duration, actionInterval time.Duration) *Sweeper {
	s := &Sweeper{
		runs:       runs,
		actions:    actions,
		executor:   executor,
		dispatcher: dispatcher,
		batchSize:  DEFAULT_BATCH_SIZE,
		staleAfter: DEFAULT_STALE_AFTER,
		wg:         &sync.WaitGroup{},
	}
	s.workers = []*util.TickWorker{
		util.NewTickWorker("scheduled-flow-sweeper", runInterval, make(chan struct{}), s.CheckScheduledFlows, s.wg),
		util.NewTickWorker("wait-timeout-sweeper", runInterval, make(chan struct{}), s.CheckWaitTimeouts, s.wg),
		util.NewTickWorker("stale-run-sweeper", runInterval, make(chan struct{}), s.CheckTimeouts, s.wg),
		util.NewTickWorker("scheduled-action-sweeper", actionInterval, make(chan struct{}), s.ProcessScheduledActions, s.wg),
	}
	return s
}

func (s *Sweeper) SetBatchSize(n int) {
	s.batchSize = n
}

func (s *Sweeper) Start() {
	for _, w := range s.workers {
		w.Start()
	}
	logger.Info("sweeper started")
}

func (s *Sweeper) Stop() {
	for _, w := range s.workers {
		w.Stop()
	}
	s.wg.Wait()
	logger.Info("sweeper stopped")
}

// CheckScheduledFlows resumes runs parked on an elapsed delay timer.
func (s *Sweeper) CheckScheduledFlows() {
	due, err := s.runs.FindDueTimers(time.Now(), s.batchSize)
	if err != nil {
		logger.Error("scheduled flow sweep query failed", zap.Error(err))
		return
	}
	for _, run := range due {
		if err := s.executor.Advance(run.Id); err != nil && !errors.Is(err, engine.ErrBusy) {
			logger.Error("could not resume timed run", zap.String("runId", run.Id), zap.Error(err))
		}
	}
}

// CheckWaitTimeouts advances runs whose reply deadline has passed, which
// routes them down their timeout edge or into the timeout terminal state.
func (s *Sweeper) CheckWaitTimeouts() {
	due, err := s.runs.FindDueWaits(time.Now(), s.batchSize)
	if err != nil {
		logger.Error("wait timeout sweep query failed", zap.Error(err))
		return
	}
	for _, run := range due {
		if err := s.executor.Advance(run.Id); err != nil && !errors.Is(err, engine.ErrBusy) {
			logger.Error("could not time out waiting run", zap.String("runId", run.Id), zap.Error(err))
		}
	}
}

// CheckTimeouts recovers runs left in running state by a crashed process.
// Their lease has long expired, so Advance re-executes the current node.
func (s *Sweeper) CheckTimeouts() {
	stale, err := s.runs.FindStale(time.Now().Add(-s.staleAfter), s.batchSize)
	if err != nil {
		logger.Error("stale run sweep query failed", zap.Error(err))
		return
	}
	for _, run := range stale {
		logger.Warn("recovering stale run", zap.String("runId", run.Id))
		if err := s.executor.Advance(run.Id); err != nil && !errors.Is(err, engine.ErrBusy) {
			logger.Error("could not recover stale run", zap.String("runId", run.Id), zap.Error(err))
		}
	}
}

// ProcessScheduledActions dispatches due actions. An action is marked
// executed only after its dispatch succeeds; failures stay queued and are
// retried next tick, so delivery is at-least-once.
func (s *Sweeper) ProcessScheduledActions() {
	due, err := s.actions.FindDue(time.Now(), s.batchSize)
	if err != nil {
		logger.Error("scheduled action sweep query failed", zap.Error(err))
		return
	}
	for _, act := range due {
		if err := s.dispatcher.Dispatch(act); err != nil {
			logger.Error("scheduled action dispatch failed", zap.String("actionId", act.Id), zap.String("action", act.Action), zap.Error(err))
			continue
		}
		if err := s.actions.MarkExecuted(act.Id); err != nil {
			logger.Error("could not mark action executed", zap.String("actionId", act.Id), zap.Error(err))
		}
	}
}
