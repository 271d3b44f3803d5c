// Package engine steps flow runs through their graphs: it loads a run,
// executes the current node through the dispatcher, resolves the next node
// along a matching edge and persists the new state, until the run completes,
// parks or fails. Every entry point takes a per-run lease first, so an
// inbound reply racing a timeout tick can never double-execute a node.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/action"
	"github.com/a23comunicacoes/oregon-flow/condition"
	"github.com/a23comunicacoes/oregon-flow/gateway"
	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence"
	"github.com/a23comunicacoes/oregon-flow/trigger"
)

// ErrBusy signals that another caller holds the run's lease. It is a no-op
// outcome, not a failure.
var ErrBusy = errors.New("flow run busy")

const DEFAULT_STEP_LIMIT = 1000
const DEFAULT_LEASE_TTL = 30 * time.Second

const AGENT_WAIT_FLAG = "aguardando_atendente"

type Engine struct {
	graphs     *graph.Service
	runs       persistence.RunStore
	dispatcher *action.Dispatcher
	matcher    *trigger.Matcher
	messenger  gateway.Messenger
	notifier   Notifier
	stepLimit  int
	leaseTTL   time.Duration
}

func New(graphs *graph.Service, runs persistence.RunStore, dispatcher *action.Dispatcher,
	matcher *trigger.Matcher, messenger gateway.Messenger, notifier Notifier) *Engine {
	e := &Engine{
		graphs:     graphs,
		runs:       runs,
		dispatcher: dispatcher,
		matcher:    matcher,
		messenger:  messenger,
		notifier:   notifier,
		stepLimit:  DEFAULT_STEP_LIMIT,
		leaseTTL:   DEFAULT_LEASE_TTL,
	}
	dispatcher.SetSubflowStarter(e)
	return e
}

func (e *Engine) SetStepLimit(limit int) {
	e.stepLimit = limit
}

func (e *Engine) GetRun(runId string) (*model.FlowRun, error) {
	return e.runs.GetRun(runId)
}

// StartRun creates a run for the flow and advances it immediately. An empty
// startNodeId selects the flow's sole start node.
func (e *Engine) StartRun(flowId string, startNodeId string, phone string, clientId string,
	chatId string, initial map[string]any) (string, error) {
	_, nodes, _, err := e.graphs.GetFlow(flowId, false)
	if err != nil {
		return "", err
	}
	if startNodeId == "" {
		start, err := graph.StartNode(nodes)
		if err != nil {
			return "", err
		}
		startNodeId = start.Id
	} else if _, err := graph.NodeById(nodes, startNodeId); err != nil {
		return "", model.Validationf("start node %s not in flow %s", startNodeId, flowId)
	}
	now := time.Now()
	run := &model.FlowRun{
		Id:            uuid.New().String(),
		FlowId:        flowId,
		StartNodeId:   startNodeId,
		CurrentNodeId: startNodeId,
		Status:        model.RUN_STATUS_RUNNING,
		Context: model.RunContext{
			Phone:    phone,
			ClientId: clientId,
			ChatId:   chatId,
			Vars:     initial,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.runs.CreateRun(run); err != nil {
		return "", err
	}
	logger.Info("flow run started", zap.String("flowId", flowId), zap.String("runId", run.Id))
	e.notifier.RunStateChanged(run)
	if err := e.Advance(run.Id); err != nil && !errors.Is(err, ErrBusy) {
		return run.Id, err
	}
	return run.Id, nil
}

// Advance moves a run forward from wherever it stands. Terminal runs are an
// idempotent no-op. A run parked awaiting a response or a timer only moves
// when its deadline has passed; before that Advance returns without side
// effects, which is what makes the manual endpoint and the sweeps safe to
// call at any moment.
func (e *Engine) Advance(runId string) error {
	run, err := e.runs.GetRun(runId)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}
	if run.Status == model.RUN_STATUS_WAITING {
		if run.NextRunAt == nil || run.NextRunAt.After(time.Now()) {
			return nil
		}
		switch run.ParkReason {
		case model.PARK_AWAITING_TIMER:
			return e.resume(runId, "", nil)
		case model.PARK_AWAITING_RESPONSE:
			return e.resume(runId, model.EDGE_LABEL_TIMEOUT, nil)
		default:
			return nil
		}
	}
	return e.withLease(runId, func(run *model.FlowRun, nodes []*model.FlowNode, edges []*model.FlowEdge) error {
		return e.loop(run, nodes, edges)
	})
}

// Resume forces a parked run forward along its default edge regardless of
// park reason. Scheduled resume_flow actions use it.
func (e *Engine) Resume(runId string) error {
	run, err := e.runs.GetRun(runId)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}
	if run.Status != model.RUN_STATUS_WAITING {
		return e.Advance(runId)
	}
	return e.resume(runId, "", nil)
}

// resume transitions a parked run along the edge matching event ("" for the
// default transition, "timeout" for an expired wait) and keeps stepping.
func (e *Engine) resume(runId string, event string, vars map[string]any) error {
	return e.withLease(runId, func(run *model.FlowRun, nodes []*model.FlowNode, edges []*model.FlowEdge) error {
		if run.Status != model.RUN_STATUS_WAITING {
			// someone else resumed between the peek and the lease
			return nil
		}
		run.ClearPark()
		for k, v := range vars {
			run.Context.Set(k, v)
		}
		if event == model.EDGE_LABEL_TIMEOUT {
			edge := edgeLabeled(edges, run.CurrentNodeId, model.EDGE_LABEL_TIMEOUT)
			if edge == nil {
				run.Status = model.RUN_STATUS_TIMEOUT
				if err := e.saveRun(run); err != nil {
					return err
				}
				logger.Info("flow run timed out", zap.String("runId", run.Id))
				e.notifier.RunStateChanged(run)
				return nil
			}
			run.CurrentNodeId = edge.TargetNodeId
		} else {
			edge, found := e.selectEdge(edges, run.CurrentNodeId, run)
			if !found {
				run.Status = model.RUN_STATUS_COMPLETED
				if err := e.saveRun(run); err != nil {
					return err
				}
				e.notifier.RunStateChanged(run)
				return nil
			}
			run.CurrentNodeId = edge.TargetNodeId
		}
		if err := e.saveRun(run); err != nil {
			return err
		}
		return e.loop(run, nodes, edges)
	})
}

func (e *Engine) withLease(runId string, fn func(run *model.FlowRun, nodes []*model.FlowNode, edges []*model.FlowEdge) error) error {
	ok, err := e.runs.AcquireLease(runId, e.leaseTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	defer e.runs.ReleaseLease(runId)
	run, err := e.runs.GetRun(runId)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}
	_, nodes, edges, err := e.graphs.GetFlow(run.FlowId, false)
	if err != nil {
		return e.failRun(run, "flow definition missing: "+err.Error())
	}
	return fn(run, nodes, edges)
}

// loop is the stepping core: execute current node, pick the next edge,
// persist, repeat. The step counter fails cyclic graphs with no suspension
// point instead of hanging.
func (e *Engine) loop(run *model.FlowRun, nodes []*model.FlowNode, edges []*model.FlowEdge) error {
	ctx := context.Background()
	for i := 0; i < e.stepLimit; i++ {
		node, err := graph.NodeById(nodes, run.CurrentNodeId)
		if err != nil {
			return e.failRun(run, err.Error())
		}
		result := e.dispatcher.Execute(ctx, node, run)
		switch result.Outcome {
		case model.STEP_CONTINUE:
			run.Context = result.Context
			outgoing := normalEdges(edges, node.Id)
			if len(outgoing) == 0 {
				run.Status = model.RUN_STATUS_COMPLETED
				if err := e.saveRun(run); err != nil {
					return err
				}
				logger.Info("flow run completed", zap.String("runId", run.Id))
				e.notifier.RunStateChanged(run)
				return nil
			}
			edge, found := e.selectEdge(edges, node.Id, run)
			if !found {
				return e.failRun(run, "no matching edge from node "+node.Id)
			}
			run.CurrentNodeId = edge.TargetNodeId
			if err := e.saveRun(run); err != nil {
				return err
			}
		case model.STEP_PARK:
			run.Park(result.ParkReason, result.ResumeAt)
			if err := e.saveRun(run); err != nil {
				return err
			}
			logger.Info("flow run parked", zap.String("runId", run.Id), zap.String("reason", string(result.ParkReason)))
			e.notifier.RunStateChanged(run)
			return nil
		case model.STEP_COMPLETE:
			run.Status = model.RUN_STATUS_COMPLETED
			if err := e.saveRun(run); err != nil {
				return err
			}
			logger.Info("flow run completed", zap.String("runId", run.Id))
			e.notifier.RunStateChanged(run)
			return nil
		case model.STEP_FAIL:
			if edge := edgeLabeled(edges, node.Id, model.EDGE_LABEL_ERROR); edge != nil {
				logger.Warn("node failed, taking error edge", zap.String("runId", run.Id), zap.String("nodeId", node.Id), zap.String("reason", result.FailReason))
				run.CurrentNodeId = edge.TargetNodeId
				if err := e.saveRun(run); err != nil {
					return err
				}
				continue
			}
			return e.failRun(run, result.FailReason)
		}
	}
	return e.failRun(run, "step limit exceeded")
}

func (e *Engine) saveRun(run *model.FlowRun) error {
	run.UpdatedAt = time.Now()
	return e.runs.SaveRun(run)
}

func (e *Engine) failRun(run *model.FlowRun, reason string) error {
	run.Status = model.RUN_STATUS_ERROR
	run.ErrorReason = reason
	if err := e.saveRun(run); err != nil {
		return err
	}
	logger.Error("flow run failed", zap.String("runId", run.Id), zap.String("reason", reason))
	e.notifier.RunStateChanged(run)
	return nil
}

// selectEdge picks the outgoing transition: the first conditional edge whose
// condition matches, in insertion order, with the single unconditioned edge
// as fallback. Timeout/error labeled edges are reserved for their events. An
// unevaluable condition counts as a non-match.
func (e *Engine) selectEdge(edges []*model.FlowEdge, nodeId string, run *model.FlowRun) (*model.FlowEdge, bool) {
	data := run.Context.AsMap()
	var fallback *model.FlowEdge
	for _, edge := range normalEdges(edges, nodeId) {
		if edge.Condition.Empty() {
			if fallback == nil {
				fallback = edge
			}
			continue
		}
		ok, err := condition.Eval(edge.Condition, data)
		if err != nil {
			logger.Debug("edge condition not evaluable", zap.String("edgeId", edge.Id), zap.Error(err))
			continue
		}
		if ok {
			return edge, true
		}
	}
	if fallback != nil {
		return fallback, true
	}
	return nil, false
}

func normalEdges(edges []*model.FlowEdge, nodeId string) []*model.FlowEdge {
	var out []*model.FlowEdge
	for _, edge := range graph.EdgesFrom(edges, nodeId) {
		if edge.Label == model.EDGE_LABEL_TIMEOUT || edge.Label == model.EDGE_LABEL_ERROR {
			continue
		}
		out = append(out, edge)
	}
	return out
}

func edgeLabeled(edges []*model.FlowEdge, nodeId string, label string) *model.FlowEdge {
	for _, edge := range graph.EdgesFrom(edges, nodeId) {
		if edge.Label == label {
			return edge
		}
	}
	return nil
}
