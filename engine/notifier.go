package engine

import "github.com/a23comunicacoes/oregon-flow/model"

// Notifier is the outbound event port invoked after every run state
// transition. The concrete transport (websocket, SSE, nothing) is injected;
// the engine never reaches for global state to announce itself.
type Notifier interface {
	RunStateChanged(run *model.FlowRun)
}

type NoopNotifier struct{}

var _ Notifier = NoopNotifier{}

func (NoopNotifier) RunStateChanged(run *model.FlowRun) {}
