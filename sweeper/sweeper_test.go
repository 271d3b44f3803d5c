package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/a23comunicacoes/oregon-flow/action"
	"github.com/a23comunicacoes/oregon-flow/engine"
	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence/inmem"
	"github.com/a23comunicacoes/oregon-flow/records"
	"github.com/a23comunicacoes/oregon-flow/trigger"
)

type captureMessenger struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (m *captureMessenger) Send(ctx context.Context, chatId string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return context.DeadlineExceeded
	}
	m.sent = append(m.sent, text)
	return nil
}

func (m *captureMessenger) SendWithMedia(ctx context.Context, chatId string, mediaUrl string, caption string) error {
	return nil
}

func (m *captureMessenger) RemoveAgentWaitMarker(ctx context.Context, chatId string) error {
	return nil
}

func (m *captureMessenger) ResolveConversationId(ctx context.Context, phone string) (string, error) {
	return "chat-" + phone, nil
}

type fixture struct {
	store     *inmem.Store
	graphs    *graph.Service
	executor  *engine.Engine
	sweeper   *Sweeper
	messenger *captureMessenger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := inmem.NewStore()
	graphs := graph.NewService(store)
	messenger := &captureMessenger{}
	dispatcher := action.NewDispatcher(messenger, records.NoopStore{})
	matcher := trigger.NewMatcher(graphs, store)
	executor := engine.New(graphs, store, dispatcher, matcher, messenger, engine.NoopNotifier{})
	actionDispatcher := NewActionDispatcher(messenger, records.NoopStore{}, executor)
	sw := New(store, store, executor, actionDispatcher, time.Minute, time.Second)
	return &fixture{store: store, graphs: graphs, executor: executor, sweeper: sw, messenger: messenger}
}

func delayFlow(t *testing.T, graphs *graph.Service) *model.FlowDefinition {
	t.Helper()
	def, err := graphs.Create(&graph.DefinitionPayload{
		Name:        "delayed hello",
		Status:      model.FLOW_STATUS_ACTIVE,
		TriggerType: model.TRIGGER_TYPE_MANUAL,
		Graph: graph.GraphPayload{
			Nodes: []graph.NodePayload{
				{Ref: "start", Type: model.NODE_TYPE_START},
				{Ref: "pause", Type: model.NODE_TYPE_DELAY, Config: model.NodeConfig{
					Delay: &model.DelayConfig{Seconds: 60},
				}},
				{Ref: "msg", Type: model.NODE_TYPE_SEND_MESSAGE, Config: model.NodeConfig{
					Message: &model.MessageConfig{Template: "acordei"},
				}},
				{Ref: "end", Type: model.NODE_TYPE_END},
			},
			Edges: []graph.EdgePayload{
				{SourceRef: "start", TargetRef: "pause"},
				{SourceRef: "pause", TargetRef: "msg"},
				{SourceRef: "msg", TargetRef: "end"},
			},
		},
	})
	require.NoError(t, err)
	return def
}

func TestCheckScheduledFlows(t *testing.T) {
	f := newFixture(t)
	def := delayFlow(t, f.graphs)

	runId, err := f.executor.StartRun(def.Id, "", "5511", "", "c1", nil)
	require.NoError(t, err)

	run, err := f.store.GetRun(runId)
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_WAITING, run.Status)
	require.Equal(t, model.PARK_AWAITING_TIMER, run.ParkReason)

	// timer not due, sweep leaves the run parked
	f.sweeper.CheckScheduledFlows()
	still, err := f.store.GetRun(runId)
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_WAITING, still.Status)

	past := time.Now().Add(-time.Minute)
	still.NextRunAt = &past
	require.NoError(t, f.store.SaveRun(still))

	f.sweeper.CheckScheduledFlows()
	done, err := f.store.GetRun(runId)
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_COMPLETED, done.Status)
	require.Equal(t, []string{"acordei"}, f.messenger.sent)
}

func TestCheckWaitTimeouts(t *testing.T) {
	f := newFixture(t)
	def, err := f.graphs.Create(&graph.DefinitionPayload{
		Name:        "waiting",
		Status:      model.FLOW_STATUS_ACTIVE,
		TriggerType: model.TRIGGER_TYPE_MANUAL,
		Graph: graph.GraphPayload{
			Nodes: []graph.NodePayload{
				{Ref: "start", Type: model.NODE_TYPE_START},
				{Ref: "wait", Type: model.NODE_TYPE_WAIT_RESPONSE, Config: model.NodeConfig{
					Wait: &model.WaitConfig{TimeoutSeconds: 30},
				}},
				{Ref: "end", Type: model.NODE_TYPE_END},
			},
			Edges: []graph.EdgePayload{
				{SourceRef: "start", TargetRef: "wait"},
				{SourceRef: "wait", TargetRef: "end"},
			},
		},
	})
	require.NoError(t, err)

	runId, err := f.executor.StartRun(def.Id, "", "5511", "", "c1", nil)
	require.NoError(t, err)

	run, err := f.store.GetRun(runId)
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	run.NextRunAt = &past
	require.NoError(t, f.store.SaveRun(run))

	f.sweeper.CheckWaitTimeouts()
	done, err := f.store.GetRun(runId)
	require.NoError(t, err)
	// no timeout edge configured, the run times out terminally
	require.Equal(t, model.RUN_STATUS_TIMEOUT, done.Status)
}

func TestProcessScheduledActionsRetries(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	require.NoError(t, f.store.Save(&model.ScheduledAction{
		Id:         "a1",
		Action:     model.ACTION_SEND_MESSAGE,
		Parametros: map[string]any{"message": "lembrete"},
		Phone:      "5511",
		ExecutarEm: now.Add(-time.Minute),
	}))

	f.messenger.fail = true
	f.sweeper.ProcessScheduledActions()

	// failed dispatch stays queued
	act, err := f.store.Get("a1")
	require.NoError(t, err)
	require.False(t, act.Executado)

	f.messenger.fail = false
	f.sweeper.ProcessScheduledActions()

	act, err = f.store.Get("a1")
	require.NoError(t, err)
	require.True(t, act.Executado)
	require.Equal(t, []string{"lembrete"}, f.messenger.sent)

	// executed actions never fire twice
	f.sweeper.ProcessScheduledActions()
	require.Equal(t, []string{"lembrete"}, f.messenger.sent)
}

func TestScheduledActionIsolation(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	// unknown verb fails forever but never blocks the rest of the batch
	require.NoError(t, f.store.Save(&model.ScheduledAction{
		Id: "bad", Action: "explode", ExecutarEm: now.Add(-time.Minute),
	}))
	require.NoError(t, f.store.Save(&model.ScheduledAction{
		Id:         "good",
		Action:     model.ACTION_SEND_MESSAGE,
		Parametros: map[string]any{"message": "oi"},
		Phone:      "5511",
		ExecutarEm: now.Add(-time.Minute),
	}))

	f.sweeper.ProcessScheduledActions()

	bad, err := f.store.Get("bad")
	require.NoError(t, err)
	require.False(t, bad.Executado)
	good, err := f.store.Get("good")
	require.NoError(t, err)
	require.True(t, good.Executado)
}

func TestScheduledResumeFlow(t *testing.T) {
	f := newFixture(t)
	def := delayFlow(t, f.graphs)

	runId, err := f.executor.StartRun(def.Id, "", "5511", "", "c1", nil)
	require.NoError(t, err)

	require.NoError(t, f.store.Save(&model.ScheduledAction{
		Id:         "resume",
		Action:     model.ACTION_RESUME_FLOW,
		FlowRunId:  runId,
		ExecutarEm: time.Now().Add(-time.Second),
	}))

	f.sweeper.ProcessScheduledActions()

	// resume_flow forces the parked run forward regardless of its timer
	run, err := f.store.GetRun(runId)
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_COMPLETED, run.Status)
	require.Equal(t, []string{"acordei"}, f.messenger.sent)
}

func TestCheckTimeoutsRecoversStaleRuns(t *testing.T) {
	f := newFixture(t)
	def, err := f.graphs.Create(&graph.DefinitionPayload{
		Name:        "simple",
		Status:      model.FLOW_STATUS_ACTIVE,
		TriggerType: model.TRIGGER_TYPE_MANUAL,
		Graph: graph.GraphPayload{
			Nodes: []graph.NodePayload{
				{Ref: "start", Type: model.NODE_TYPE_START},
				{Ref: "end", Type: model.NODE_TYPE_END},
			},
			Edges: []graph.EdgePayload{{SourceRef: "start", TargetRef: "end"}},
		},
	})
	require.NoError(t, err)

	_, nodes, _, err := f.graphs.GetFlow(def.Id, false)
	require.NoError(t, err)
	start, err := graph.StartNode(nodes)
	require.NoError(t, err)

	// a run stuck in running since before the cutoff, as after a crash
	old := time.Now().Add(-time.Hour)
	stuck := &model.FlowRun{
		Id:            "stuck",
		FlowId:        def.Id,
		StartNodeId:   start.Id,
		CurrentNodeId: start.Id,
		Status:        model.RUN_STATUS_RUNNING,
		Context:       model.RunContext{Phone: "5511"},
		CreatedAt:     old,
		UpdatedAt:     old,
	}
	require.NoError(t, f.store.CreateRun(stuck))

	f.sweeper.CheckTimeouts()
	run, err := f.store.GetRun("stuck")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_COMPLETED, run.Status)
}
