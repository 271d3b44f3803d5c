package action

import (
	"context"

	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/util"
)

func (d *Dispatcher) sendMessage(ctx context.Context, node *model.FlowNode, run *model.FlowRun) model.StepResult {
	cfg := node.Config.Message
	if cfg == nil {
		return model.FailStep("send_message node without message config")
	}
	runCtx := run.Context
	chatId := runCtx.ChatId
	if chatId == "" {
		resolved, err := d.messenger.ResolveConversationId(ctx, runCtx.Phone)
		if err != nil {
			logger.Error("error resolving conversation", zap.String("runId", run.Id), zap.Error(err))
			return model.FailStep("could not resolve conversation: " + err.Error())
		}
		chatId = resolved
		runCtx.ChatId = chatId
	}
	data := runCtx.AsMap()
	var err error
	if cfg.MediaUrl != "" {
		caption := util.ResolveString(cfg.Caption, data)
		err = d.messenger.SendWithMedia(ctx, chatId, util.ResolveString(cfg.MediaUrl, data), caption)
	} else {
		err = d.messenger.Send(ctx, chatId, util.ResolveString(cfg.Template, data))
	}
	if err != nil {
		logger.Error("error sending message", zap.String("runId", run.Id), zap.String("nodeId", node.Id), zap.Error(err))
		return model.FailStep("send failed: " + err.Error())
	}
	return model.ContinueStep(runCtx)
}
