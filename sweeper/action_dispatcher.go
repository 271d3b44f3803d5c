package sweeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/a23comunicacoes/oregon-flow/engine"
	"github.com/a23comunicacoes/oregon-flow/gateway"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/records"
)

// ActionDispatcher executes one due ScheduledAction by verb. A non-nil error
// means the action stays queued for retry.
type ActionDispatcher struct {
	messenger gateway.Messenger
	records   records.Store
	executor  *engine.Engine
}

func NewActionDispatcher(messenger gateway.Messenger, recordStore records.Store, executor *engine.Engine) *ActionDispatcher {
	return &ActionDispatcher{
		messenger: messenger,
		records:   recordStore,
		executor:  executor,
	}
}

func (d *ActionDispatcher) Dispatch(act *model.ScheduledAction) error {
	ctx := context.Background()
	switch act.Action {
	case model.ACTION_SEND_MESSAGE:
		return d.sendMessage(ctx, act)
	case model.ACTION_UPDATE_CLIENT:
		return d.updateClient(ctx, act)
	case model.ACTION_START_FLOW:
		return d.startFlow(act)
	case model.ACTION_RESUME_FLOW:
		return d.resumeFlow(act)
	default:
		return fmt.Errorf("unknown scheduled action %s", act.Action)
	}
}

func (d *ActionDispatcher) sendMessage(ctx context.Context, act *model.ScheduledAction) error {
	text, _ := act.Parametros["message"].(string)
	if text == "" {
		return errors.New("send_message action without message parameter")
	}
	chatId, _ := act.Parametros["chatId"].(string)
	if chatId == "" {
		resolved, err := d.messenger.ResolveConversationId(ctx, act.Phone)
		if err != nil {
			return err
		}
		chatId = resolved
	}
	return d.messenger.Send(ctx, chatId, text)
}

func (d *ActionDispatcher) updateClient(ctx context.Context, act *model.ScheduledAction) error {
	if act.ClientId == "" {
		return errors.New("update_client action without client id")
	}
	fields, _ := act.Parametros["fields"].(map[string]any)
	if fields == nil {
		fields = act.Parametros
	}
	return d.records.UpdateRecord(ctx, "client", act.ClientId, fields)
}

func (d *ActionDispatcher) startFlow(act *model.ScheduledAction) error {
	flowId, _ := act.Parametros["flowId"].(string)
	if flowId == "" {
		return errors.New("start_flow action without flowId parameter")
	}
	chatId, _ := act.Parametros["chatId"].(string)
	_, err := d.executor.StartRun(flowId, "", act.Phone, act.ClientId, chatId, nil)
	if errors.Is(err, engine.ErrBusy) {
		return nil
	}
	return err
}

func (d *ActionDispatcher) resumeFlow(act *model.ScheduledAction) error {
	if act.FlowRunId == "" {
		return errors.New("resume_flow action without run id")
	}
	err := d.executor.Resume(act.FlowRunId)
	if errors.Is(err, engine.ErrBusy) {
		// another worker is stepping the run, retry next tick
		return engine.ErrBusy
	}
	if model.IsNotFound(err) {
		// run was purged, nothing left to resume
		return nil
	}
	return err
}
