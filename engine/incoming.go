package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
)

// HandleIncomingMessage is the entry point for every inbound chat message.
// A run waiting for a reply from this phone consumes the message and
// resumes; otherwise the message is matched against active triggers and the
// best-ranked flow starts, unless a non-interruptible run blocks this phone.
func (e *Engine) HandleIncomingMessage(phone string, chatId string, clientId string, text string) error {
	waiting, err := e.runs.FindWaitingForPhone(phone)
	if err != nil && !model.IsNotFound(err) {
		return err
	}
	if waiting != nil {
		return e.resumeWithReply(waiting, text)
	}

	matches, err := e.matcher.MatchForMessage(text, phone, chatId)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}
	def := matches[0]

	blocked, cancelable, err := e.matcher.CheckInterruption(phone)
	if err != nil {
		return err
	}
	if blocked {
		logger.Debug("trigger suppressed by non-interruptible run", zap.String("phone", phone), zap.String("flowId", def.Id))
		return nil
	}
	for _, run := range cancelable {
		if err := e.Cancel(run.Id); err != nil {
			logger.Warn("interrupted run not canceled, trigger dropped", zap.String("runId", run.Id), zap.Error(err))
			return err
		}
	}

	_, err = e.StartRun(def.Id, "", phone, clientId, chatId, map[string]any{"text": text})
	return err
}

// resumeWithReply feeds the message text into the run parked on a
// wait_response node and takes the default transition.
func (e *Engine) resumeWithReply(run *model.FlowRun, text string) error {
	saveAs := "last_reply"
	_, nodes, _, err := e.graphs.GetFlow(run.FlowId, false)
	if err == nil {
		if node, nerr := graph.NodeById(nodes, run.CurrentNodeId); nerr == nil {
			if node.Config.Wait != nil && node.Config.Wait.SaveAs != "" {
				saveAs = node.Config.Wait.SaveAs
			}
		}
	}
	return e.resume(run.Id, "", map[string]any{saveAs: text})
}

// Cancel marks a run canceled. Terminal runs are left untouched.
func (e *Engine) Cancel(runId string) error {
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
	run.ClearPark()
	run.Status = model.RUN_STATUS_CANCELED
	if err := e.saveRun(run); err != nil {
		return err
	}
	logger.Info("flow run canceled", zap.String("runId", run.Id))
	e.notifier.RunStateChanged(run)
	return nil
}

// ReleaseAgentBlock completes every run of this phone parked behind a human
// agent handoff and clears the wait marker on the conversation.
func (e *Engine) ReleaseAgentBlock(phone string) error {
	runs, err := e.runs.FindActiveByPhone(phone)
	if err != nil {
		return err
	}
	var lastErr error
	for _, run := range runs {
		if _, held := run.Context.Get(AGENT_WAIT_FLAG); !held {
			continue
		}
		if err := e.completeAgentWait(run.Id); err != nil && !errors.Is(err, ErrBusy) {
			lastErr = err
		}
	}
	e.clearAgentWaitMarker(phone, "")
	return lastErr
}

// ReleaseAgentBlockForRun forces a single run out of its agent handoff:
// the run completes, the wait flag is dropped and the conversation marker
// is cleared.
func (e *Engine) ReleaseAgentBlockForRun(runId string) error {
	run, err := e.runs.GetRun(runId)
	if err != nil {
		return err
	}
	if err := e.completeAgentWait(run.Id); err != nil {
		return err
	}
	e.clearAgentWaitMarker(run.Context.Phone, run.Context.ChatId)
	return nil
}

func (e *Engine) clearAgentWaitMarker(phone string, chatId string) {
	ctx := context.Background()
	if chatId == "" {
		resolved, err := e.messenger.ResolveConversationId(ctx, phone)
		if err != nil {
			logger.Warn("could not resolve conversation for agent release", zap.String("phone", phone), zap.Error(err))
			return
		}
		chatId = resolved
	}
	if err := e.messenger.RemoveAgentWaitMarker(ctx, chatId); err != nil {
		logger.Warn("could not clear agent wait marker", zap.String("phone", phone), zap.Error(err))
	}
}

func (e *Engine) completeAgentWait(runId string) error {
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
	run.Context.Delete(AGENT_WAIT_FLAG)
	run.ClearPark()
	run.Status = model.RUN_STATUS_COMPLETED
	if err := e.saveRun(run); err != nil {
		return err
	}
	logger.Info("agent block released", zap.String("runId", run.Id))
	e.notifier.RunStateChanged(run)
	return nil
}

// StartSubflow launches a child run inheriting the parent's context and
// advances it in the background so the parent keeps stepping without
// waiting for it.
func (e *Engine) StartSubflow(flowId string, parent model.RunContext) (string, error) {
	_, nodes, _, err := e.graphs.GetFlow(flowId, true)
	if err != nil {
		return "", err
	}
	start, err := graph.StartNode(nodes)
	if err != nil {
		return "", err
	}
	now := time.Now()
	run := &model.FlowRun{
		Id:            uuid.New().String(),
		FlowId:        flowId,
		StartNodeId:   start.Id,
		CurrentNodeId: start.Id,
		Status:        model.RUN_STATUS_RUNNING,
		Context:       parent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.runs.CreateRun(run); err != nil {
		return "", err
	}
	e.notifier.RunStateChanged(run)
	go func() {
		if err := e.Advance(run.Id); err != nil && !errors.Is(err, ErrBusy) {
			logger.Error("subflow run failed to advance", zap.String("runId", run.Id), zap.Error(err))
		}
	}()
	return run.Id, nil
}
