package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/a23comunicacoes/oregon-flow/action"
	"github.com/a23comunicacoes/oregon-flow/engine"
	"github.com/a23comunicacoes/oregon-flow/gateway"
	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence/inmem"
	"github.com/a23comunicacoes/oregon-flow/records"
	"github.com/a23comunicacoes/oregon-flow/trigger"
)

func newTestServer(t *testing.T) (*Server, *graph.Service, *engine.Engine, *inmem.Store) {
	t.Helper()
	store := inmem.NewStore()
	graphs := graph.NewService(store)
	dispatcher := action.NewDispatcher(gateway.NoopMessenger{}, records.NoopStore{})
	matcher := trigger.NewMatcher(graphs, store)
	executor := engine.New(graphs, store, dispatcher, matcher, gateway.NoopMessenger{}, engine.NoopNotifier{})
	srv, err := NewServer(0, graphs, executor, matcher)
	require.NoError(t, err)
	return srv, graphs, executor, store
}

func flowPayload(name string) *graph.DefinitionPayload {
	return &graph.DefinitionPayload{
		Name:        name,
		Status:      model.FLOW_STATUS_ACTIVE,
		TriggerType: model.TRIGGER_TYPE_MANUAL,
		Graph: graph.GraphPayload{
			Nodes: []graph.NodePayload{
				{Ref: "start", Type: model.NODE_TYPE_START},
				{Ref: "end", Type: model.NODE_TYPE_END},
			},
			Edges: []graph.EdgePayload{
				{SourceRef: "start", TargetRef: "end"},
			},
		},
	}
}

func TestToggleStatusRoute(t *testing.T) {
	srv, graphs, _, _ := newTestServer(t)
	def, err := graphs.Create(flowPayload("toggler"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/flows/toggle-status/"+def.Id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), string(model.FLOW_STATUS_INACTIVE))
}

func TestAdvanceRunRoute(t *testing.T) {
	srv, graphs, executor, _ := newTestServer(t)
	def, err := graphs.Create(flowPayload("runner"))
	require.NoError(t, err)
	runId, err := executor.StartRun(def.Id, "", "5511", "", "c1", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/flows/run/"+runId+"/advance", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"advanced":true`)
}

func TestReleaseAgentBlockRoute(t *testing.T) {
	srv, graphs, _, store := newTestServer(t)
	def, err := graphs.Create(flowPayload("handoff"))
	require.NoError(t, err)

	now := time.Now()
	run := &model.FlowRun{
		Id:            "held",
		FlowId:        def.Id,
		StartNodeId:   "x",
		CurrentNodeId: "x",
		Status:        model.RUN_STATUS_WAITING,
		ParkReason:    model.PARK_AWAITING_EXTERNAL,
		Context:       model.RunContext{Phone: "5511", ChatId: "c1", Vars: map[string]any{engine.AGENT_WAIT_FLAG: true}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.CreateRun(run))

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/flows/run/held/release-agent-block", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := store.GetRun("held")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_COMPLETED, got.Status)
}

func TestWebhookRouteAcceptsAnyMethod(t *testing.T) {
	srv, graphs, _, _ := newTestServer(t)
	payload := flowPayload("hooked")
	payload.TriggerType = model.TRIGGER_TYPE_WEBHOOK
	payload.WebhookKey = "k1"
	_, err := graphs.Create(payload)
	require.NoError(t, err)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut} {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(method, "/flows/webhook/k1", nil))
		require.Equal(t, http.StatusOK, rec.Code, method)
		require.Contains(t, rec.Body.String(), "runId")
	}
}
