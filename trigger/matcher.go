// Package trigger selects which flows should start for an inbound event and
// applies the one-active-run-per-conversation interruption policy.
package trigger

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/condition"
	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence"
)

type Matcher struct {
	graphs *graph.Service
	runs   persistence.RunStore
}

func NewMatcher(graphs *graph.Service, runs persistence.RunStore) *Matcher {
	return &Matcher{graphs: graphs, runs: runs}
}

// MatchForMessage returns the active message-triggered definitions matching
// the inbound text, ranked by descending priority with ties broken by
// ascending id so the oldest definition wins. A definition with malformed
// trigger conditions is skipped, never allowed to break the matcher.
func (m *Matcher) MatchForMessage(text string, phone string, chatId string) ([]*model.FlowDefinition, error) {
	defs, err := m.graphs.List()
	if err != nil {
		return nil, err
	}
	ctx := map[string]any{
		"text":   text,
		"phone":  phone,
		"chatId": chatId,
	}
	var matched []*model.FlowDefinition
	for _, def := range defs {
		if !def.Active() || def.TriggerType != model.TRIGGER_TYPE_MESSAGE {
			continue
		}
		if matchKeywords(def.GlobalKeywords, text) {
			matched = append(matched, def)
			continue
		}
		if def.TriggerConditions.Empty() {
			continue
		}
		ok, err := condition.Eval(def.TriggerConditions, ctx)
		if err != nil {
			logger.Warn("skipping flow with bad trigger conditions", zap.String("flowId", def.Id), zap.Error(err))
			continue
		}
		if ok {
			matched = append(matched, def)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].Id < matched[j].Id
	})
	return matched, nil
}

// MatchForWebhook resolves a definition by exact webhook key.
func (m *Matcher) MatchForWebhook(key string) (*model.FlowDefinition, error) {
	return m.graphs.FindByWebhookKey(key)
}

// CheckInterruption inspects the active runs for a phone. When any belongs
// to a non-interruptible flow, new starts are blocked for that conversation.
// Otherwise it returns the runs that must be canceled before a new start.
func (m *Matcher) CheckInterruption(phone string) (blocked bool, cancelable []*model.FlowRun, err error) {
	active, err := m.runs.FindActiveByPhone(phone)
	if err != nil {
		return false, nil, err
	}
	for _, run := range active {
		def, err := m.graphs.Get(run.FlowId)
		if err != nil {
			// definition deleted under a live run: treat as interruptible
			cancelable = append(cancelable, run)
			continue
		}
		if !def.Interruptible {
			return true, nil, nil
		}
		cancelable = append(cancelable, run)
	}
	return false, cancelable, nil
}

func matchKeywords(keywords []string, text string) bool {
	if len(keywords) == 0 {
		return false
	}
	folded := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}
