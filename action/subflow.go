package action

import (
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
)

// startSubflow creates a child run without blocking the parent. A child that
// fails to start is logged; the parent keeps going.
func (d *Dispatcher) startSubflow(node *model.FlowNode, run *model.FlowRun) model.StepResult {
	cfg := node.Config.Subflow
	if cfg == nil {
		return model.FailStep("start_subflow node without subflow config")
	}
	if d.subflows == nil {
		return model.FailStep("subflow starter not configured")
	}
	childId, err := d.subflows.StartSubflow(cfg.FlowId, run.Context.Clone())
	if err != nil {
		logger.Error("error starting subflow", zap.String("runId", run.Id), zap.String("flowId", cfg.FlowId), zap.Error(err))
	} else {
		logger.Info("subflow started", zap.String("parentRunId", run.Id), zap.String("childRunId", childId))
	}
	return model.ContinueStep(run.Context)
}
