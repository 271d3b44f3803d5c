// Package action executes the side effect of one node type and reports the
// resulting step outcome. The set of node kinds is closed: graph validation
// rejects unknown kinds at write time, and a kind reaching Execute without a
// handler fails the run rather than silently no-opping.
package action

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/gateway"
	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/records"
)

// SubflowStarter is implemented by the engine; the indirection keeps the
// dispatcher free of an import cycle.
type SubflowStarter interface {
	StartSubflow(flowId string, parent model.RunContext) (string, error)
}

type Dispatcher struct {
	messenger  gateway.Messenger
	records    records.Store
	httpClient *http.Client
	subflows   SubflowStarter
}

func NewDispatcher(messenger gateway.Messenger, recordStore records.Store) *Dispatcher {
	return &Dispatcher{
		messenger:  messenger,
		records:    recordStore,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (d *Dispatcher) SetSubflowStarter(s SubflowStarter) {
	d.subflows = s
}

// Execute runs one node against the run's context. Failures of outbound side
// effects come back as STEP_FAIL; the executor decides whether an error edge
// absorbs them.
func (d *Dispatcher) Execute(ctx context.Context, node *model.FlowNode, run *model.FlowRun) model.StepResult {
	switch node.Type {
	case model.NODE_TYPE_START, model.NODE_TYPE_CONDITION:
		// branching happens at edge selection
		return model.ContinueStep(run.Context)
	case model.NODE_TYPE_END:
		return model.CompleteStep()
	case model.NODE_TYPE_SEND_MESSAGE:
		return d.sendMessage(ctx, node, run)
	case model.NODE_TYPE_WAIT_RESPONSE:
		return d.waitResponse(node, run)
	case model.NODE_TYPE_DELAY:
		return d.delay(node, run)
	case model.NODE_TYPE_WEBHOOK_CALL:
		return d.webhookCall(ctx, node, run)
	case model.NODE_TYPE_CREATE_RECORD:
		return d.createRecord(ctx, node, run)
	case model.NODE_TYPE_UPDATE_RECORD:
		return d.updateRecord(ctx, node, run)
	case model.NODE_TYPE_START_SUBFLOW:
		return d.startSubflow(node, run)
	}
	logger.Error("no handler for node type", zap.String("type", string(node.Type)), zap.String("nodeId", node.Id))
	return model.FailStep("unknown node type " + string(node.Type))
}
