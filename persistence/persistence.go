// Package persistence defines the storage contracts of the flow engine.
// Implementations live in the redis, postgres and inmem subpackages.
package persistence

import (
	"fmt"
	"time"

	"github.com/a23comunicacoes/oregon-flow/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

// GraphStore persists flow definitions and their graphs. ReplaceGraph is
// atomic: readers never observe a half-written node/edge set. Edge order is
// preserved as insertion order, the executor relies on it for first-match
// edge selection.
type GraphStore interface {
	SaveDefinition(def *model.FlowDefinition) error
	GetDefinition(id string) (*model.FlowDefinition, error)
	ListDefinitions() ([]*model.FlowDefinition, error)
	DeleteDefinition(id string) error
	ReplaceGraph(flowId string, nodes []*model.FlowNode, edges []*model.FlowEdge) error
	GetGraph(flowId string) ([]*model.FlowNode, []*model.FlowEdge, error)
}

// RunStore persists run instances and owns the per-run lease that gives
// Executor.Advance mutual exclusion.
type RunStore interface {
	CreateRun(run *model.FlowRun) error
	GetRun(id string) (*model.FlowRun, error)
	SaveRun(run *model.FlowRun) error

	// AcquireLease returns false without error when another caller holds
	// the lease.
	AcquireLease(runId string, ttl time.Duration) (bool, error)
	ReleaseLease(runId string) error

	FindActiveByPhone(phone string) ([]*model.FlowRun, error)
	FindWaitingForPhone(phone string) (*model.FlowRun, error)

	// FindDueTimers returns waiting runs parked on a timer whose next_run_at
	// has passed. FindDueWaits returns runs awaiting a response past their
	// deadline. FindStale returns runs stuck in running since before cutoff,
	// which happens when the process dies mid-step.
	FindDueTimers(now time.Time, limit int) ([]*model.FlowRun, error)
	FindDueWaits(now time.Time, limit int) ([]*model.FlowRun, error)
	FindStale(cutoff time.Time, limit int) ([]*model.FlowRun, error)
}

// ScheduledActionStore persists the one-off deferred action queue. FindDue
// never removes rows; only MarkExecuted does, so a failed dispatch is retried
// on the next sweep.
type ScheduledActionStore interface {
	Save(action *model.ScheduledAction) error
	Get(id string) (*model.ScheduledAction, error)
	FindDue(now time.Time, limit int) ([]*model.ScheduledAction, error)
	MarkExecuted(id string) error
}
