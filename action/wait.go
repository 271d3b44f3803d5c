package action

import (
	"time"

	"github.com/a23comunicacoes/oregon-flow/model"
)

func (d *Dispatcher) waitResponse(node *model.FlowNode, run *model.FlowRun) model.StepResult {
	var resumeAt *time.Time
	if cfg := node.Config.Wait; cfg != nil && cfg.TimeoutSeconds > 0 {
		at := time.Now().Add(time.Duration(cfg.TimeoutSeconds) * time.Second)
		resumeAt = &at
	}
	return model.ParkStep(model.PARK_AWAITING_RESPONSE, resumeAt)
}

func (d *Dispatcher) delay(node *model.FlowNode, run *model.FlowRun) model.StepResult {
	cfg := node.Config.Delay
	if cfg == nil || cfg.Seconds <= 0 {
		return model.FailStep("delay node without a positive duration")
	}
	at := time.Now().Add(time.Duration(cfg.Seconds) * time.Second)
	return model.ParkStep(model.PARK_AWAITING_TIMER, &at)
}
