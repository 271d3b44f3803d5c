package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence/inmem"
)

func TestMatcher(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, matcher *Matcher, graphs *graph.Service, store *inmem.Store,
	){
		"test keyword match":                testKeywordMatch,
		"test condition match":              testConditionMatch,
		"test priority ranking":             testPriorityRanking,
		"test malformed conditions skipped": testMalformedSkipped,
		"test inactive flows never match":   testInactiveSkipped,
		"test interruption policy":          testInterruption,
		"test webhook match":                testWebhookMatch,
	} {
		t.Run(scenario, func(t *testing.T) {
			store := inmem.NewStore()
			graphs := graph.NewService(store)
			fn(t, NewMatcher(graphs, store), graphs, store)
		})
	}
}

func messageFlow(t *testing.T, graphs *graph.Service, name string, priority int, mutate func(*graph.DefinitionPayload)) *model.FlowDefinition {
	t.Helper()
	payload := &graph.DefinitionPayload{
		Name:        name,
		Status:      model.FLOW_STATUS_ACTIVE,
		TriggerType: model.TRIGGER_TYPE_MESSAGE,
		Priority:    priority,
		Graph: graph.GraphPayload{
			Nodes: []graph.NodePayload{
				{Ref: "start", Type: model.NODE_TYPE_START},
				{Ref: "end", Type: model.NODE_TYPE_END},
			},
			Edges: []graph.EdgePayload{{SourceRef: "start", TargetRef: "end"}},
		},
	}
	if mutate != nil {
		mutate(payload)
	}
	def, err := graphs.Create(payload)
	require.NoError(t, err)
	return def
}

func testKeywordMatch(t *testing.T, matcher *Matcher, graphs *graph.Service, store *inmem.Store) {
	def := messageFlow(t, graphs, "pricing", 0, func(p *graph.DefinitionPayload) {
		p.GlobalKeywords = []string{"preço", "orçamento"}
	})

	matched, err := matcher.MatchForMessage("Qual o PREÇO do serviço?", "5511", "c1")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, def.Id, matched[0].Id)

	matched, err = matcher.MatchForMessage("bom dia", "5511", "c1")
	require.NoError(t, err)
	require.Empty(t, matched)
}

func testConditionMatch(t *testing.T, matcher *Matcher, graphs *graph.Service, store *inmem.Store) {
	def := messageFlow(t, graphs, "greeting", 0, func(p *graph.DefinitionPayload) {
		p.TriggerConditions = &model.ConditionGroup{
			Predicates: []model.Predicate{{Field: "text", Operator: model.OP_CONTAINS, Value: "oi"}},
		}
	})

	matched, err := matcher.MatchForMessage("oi, tudo bem?", "5511", "c1")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, def.Id, matched[0].Id)
}

func testPriorityRanking(t *testing.T, matcher *Matcher, graphs *graph.Service, store *inmem.Store) {
	kw := func(p *graph.DefinitionPayload) { p.GlobalKeywords = []string{"ajuda"} }
	low := messageFlow(t, graphs, "low", 1, kw)
	high := messageFlow(t, graphs, "high", 10, kw)
	alsoHigh := messageFlow(t, graphs, "also high", 10, kw)

	matched, err := matcher.MatchForMessage("ajuda por favor", "5511", "c1")
	require.NoError(t, err)
	require.Len(t, matched, 3)
	require.Equal(t, low.Id, matched[2].Id)
	// priority ties broken by ascending id
	first, second := high.Id, alsoHigh.Id
	if second < first {
		first, second = second, first
	}
	require.Equal(t, first, matched[0].Id)
	require.Equal(t, second, matched[1].Id)
}

func testMalformedSkipped(t *testing.T, matcher *Matcher, graphs *graph.Service, store *inmem.Store) {
	// bypass write-time validation to simulate a legacy malformed definition
	bad := messageFlow(t, graphs, "bad", 5, nil)
	bad.TriggerConditions = &model.ConditionGroup{
		Predicates: []model.Predicate{{Field: "missing_field", Operator: model.OP_GT, Value: 1}},
	}
	require.NoError(t, store.SaveDefinition(bad))

	good := messageFlow(t, graphs, "good", 0, func(p *graph.DefinitionPayload) {
		p.GlobalKeywords = []string{"oi"}
	})

	matched, err := matcher.MatchForMessage("oi", "5511", "c1")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, good.Id, matched[0].Id)
}

func testInactiveSkipped(t *testing.T, matcher *Matcher, graphs *graph.Service, store *inmem.Store) {
	def := messageFlow(t, graphs, "sleeping", 0, func(p *graph.DefinitionPayload) {
		p.GlobalKeywords = []string{"oi"}
	})
	_, err := graphs.ToggleStatus(def.Id)
	require.NoError(t, err)

	matched, err := matcher.MatchForMessage("oi", "5511", "c1")
	require.NoError(t, err)
	require.Empty(t, matched)
}

func testInterruption(t *testing.T, matcher *Matcher, graphs *graph.Service, store *inmem.Store) {
	interruptible := messageFlow(t, graphs, "soft", 0, nil)
	now := time.Now()
	run := &model.FlowRun{
		Id: "r1", FlowId: interruptible.Id, Status: model.RUN_STATUS_RUNNING,
		Context: model.RunContext{Phone: "5511"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateRun(run))

	blocked, cancelable, err := matcher.CheckInterruption("5511")
	require.NoError(t, err)
	require.False(t, blocked)
	require.Len(t, cancelable, 1)
	require.Equal(t, "r1", cancelable[0].Id)

	no := false
	hard := messageFlow(t, graphs, "hard", 0, func(p *graph.DefinitionPayload) {
		p.Interruptible = &no
	})
	run2 := &model.FlowRun{
		Id: "r2", FlowId: hard.Id, Status: model.RUN_STATUS_RUNNING,
		Context: model.RunContext{Phone: "5522"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateRun(run2))

	blocked, _, err = matcher.CheckInterruption("5522")
	require.NoError(t, err)
	require.True(t, blocked)

	// no active runs, nothing to do
	blocked, cancelable, err = matcher.CheckInterruption("5533")
	require.NoError(t, err)
	require.False(t, blocked)
	require.Empty(t, cancelable)
}

func testWebhookMatch(t *testing.T, matcher *Matcher, graphs *graph.Service, store *inmem.Store) {
	def := messageFlow(t, graphs, "hooked", 0, func(p *graph.DefinitionPayload) {
		p.TriggerType = model.TRIGGER_TYPE_WEBHOOK
		p.WebhookKey = "lead-form"
	})

	found, err := matcher.MatchForWebhook("lead-form")
	require.NoError(t, err)
	require.Equal(t, def.Id, found.Id)

	_, err = matcher.MatchForWebhook("ghost")
	require.True(t, model.IsNotFound(err))
}
