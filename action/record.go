package action

import (
	"context"

	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/util"
)

func (d *Dispatcher) createRecord(ctx context.Context, node *model.FlowNode, run *model.FlowRun) model.StepResult {
	cfg := node.Config.Record
	if cfg == nil {
		return model.FailStep("create_record node without record config")
	}
	runCtx := run.Context
	fields := util.ResolveParams(cfg.Fields, runCtx.AsMap())
	id, err := d.records.CreateRecord(ctx, cfg.Entity, fields)
	if err != nil {
		logger.Error("error creating record", zap.String("runId", run.Id), zap.String("entity", cfg.Entity), zap.Error(err))
		return model.FailStep("create record failed: " + err.Error())
	}
	runCtx.Set(cfg.Entity+"Id", id)
	if cfg.Entity == "client" && runCtx.ClientId == "" {
		runCtx.ClientId = id
	}
	return model.ContinueStep(runCtx)
}

func (d *Dispatcher) updateRecord(ctx context.Context, node *model.FlowNode, run *model.FlowRun) model.StepResult {
	cfg := node.Config.Record
	if cfg == nil {
		return model.FailStep("update_record node without record config")
	}
	runCtx := run.Context
	data := runCtx.AsMap()
	recordId := util.ResolveString(cfg.RecordId, data)
	if recordId == "" && cfg.Entity == "client" {
		recordId = runCtx.ClientId
	}
	if recordId == "" {
		return model.FailStep("update_record without a record id")
	}
	fields := util.ResolveParams(cfg.Fields, data)
	if err := d.records.UpdateRecord(ctx, cfg.Entity, recordId, fields); err != nil {
		logger.Error("error updating record", zap.String("runId", run.Id), zap.String("entity", cfg.Entity), zap.Error(err))
		return model.FailStep("update record failed: " + err.Error())
	}
	return model.ContinueStep(runCtx)
}
