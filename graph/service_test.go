package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/persistence/inmem"
)

func TestService(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, service *Service,
	){
		"test create and get flow":           testCreateGet,
		"test validation rejects bad graphs": testValidation,
		"test unknown edge ref is an error":  testUnknownEdgeRef,
		"test toggle status":                 testToggle,
		"test duplicate flow":                testDuplicate,
		"test webhook key lookup":            testWebhookLookup,
		"test webhook key is unique":         testWebhookKeyUnique,
		"test update replaces graph":         testUpdateReplace,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewService(inmem.NewStore()))
		})
	}
}

func simplePayload(name string) *DefinitionPayload {
	return &DefinitionPayload{
		Name:        name,
		Status:      model.FLOW_STATUS_ACTIVE,
		TriggerType: model.TRIGGER_TYPE_MESSAGE,
		Graph: GraphPayload{
			Nodes: []NodePayload{
				{Ref: "start", Type: model.NODE_TYPE_START},
				{Ref: "msg", Type: model.NODE_TYPE_SEND_MESSAGE, Config: model.NodeConfig{
					Message: &model.MessageConfig{Template: "Oi {$.name}"},
				}},
				{Ref: "end", Type: model.NODE_TYPE_END},
			},
			Edges: []EdgePayload{
				{SourceRef: "start", TargetRef: "msg"},
				{SourceRef: "msg", TargetRef: "end"},
			},
		},
	}
}

func testCreateGet(t *testing.T, service *Service) {
	def, err := service.Create(simplePayload("welcome"))
	require.NoError(t, err)
	require.NotEmpty(t, def.Id)
	require.Equal(t, "welcome", def.Name)
	require.True(t, def.Interruptible)

	got, nodes, edges, err := service.GetFlow(def.Id, true)
	require.NoError(t, err)
	require.Equal(t, def.Id, got.Id)
	require.Len(t, nodes, 3)
	require.Len(t, edges, 2)

	// edges rewired from refs to stable ids
	start, err := StartNode(nodes)
	require.NoError(t, err)
	out := EdgesFrom(edges, start.Id)
	require.Len(t, out, 1)
}

func testValidation(t *testing.T, service *Service) {
	payload := simplePayload("bad")
	payload.Name = ""
	_, err := service.Create(payload)
	require.True(t, model.IsValidation(err))

	payload = simplePayload("two starts")
	payload.Graph.Nodes = append(payload.Graph.Nodes, NodePayload{Ref: "start2", Type: model.NODE_TYPE_START})
	_, err = service.Create(payload)
	require.True(t, model.IsValidation(err))

	payload = simplePayload("bad node")
	payload.Graph.Nodes[1].Config.Message = nil
	_, err = service.Create(payload)
	require.True(t, model.IsValidation(err))

	payload = simplePayload("bad type")
	payload.Graph.Nodes[1].Type = "teleport"
	_, err = service.Create(payload)
	require.True(t, model.IsValidation(err))

	payload = simplePayload("webhook without key")
	payload.TriggerType = model.TRIGGER_TYPE_WEBHOOK
	_, err = service.Create(payload)
	require.True(t, model.IsValidation(err))

	payload = simplePayload("bad condition")
	payload.TriggerConditions = &model.ConditionGroup{
		Predicates: []model.Predicate{{Field: "x", Operator: "regex"}},
	}
	_, err = service.Create(payload)
	require.True(t, model.IsValidation(err))

	// nothing was persisted by any failed create
	defs, err := service.List()
	require.NoError(t, err)
	require.Empty(t, defs)
}

func testUnknownEdgeRef(t *testing.T, service *Service) {
	payload := simplePayload("dangling")
	payload.Graph.Edges = append(payload.Graph.Edges, EdgePayload{SourceRef: "msg", TargetRef: "ghost"})
	_, err := service.Create(payload)
	require.True(t, model.IsValidation(err))
}

func testToggle(t *testing.T, service *Service) {
	def, err := service.Create(simplePayload("toggle me"))
	require.NoError(t, err)
	require.Equal(t, model.FLOW_STATUS_ACTIVE, def.Status)

	status, err := service.ToggleStatus(def.Id)
	require.NoError(t, err)
	require.Equal(t, model.FLOW_STATUS_INACTIVE, status)

	// inactive flow is invisible through the trigger path
	_, _, _, err = service.GetFlow(def.Id, true)
	require.True(t, model.IsNotFound(err))

	status, err = service.ToggleStatus(def.Id)
	require.NoError(t, err)
	require.Equal(t, model.FLOW_STATUS_ACTIVE, status)
}

func testDuplicate(t *testing.T, service *Service) {
	payload := simplePayload("original")
	payload.TriggerType = model.TRIGGER_TYPE_WEBHOOK
	payload.WebhookKey = "hook-1"
	def, err := service.Create(payload)
	require.NoError(t, err)

	copied, err := service.Duplicate(def.Id)
	require.NoError(t, err)
	require.NotEqual(t, def.Id, copied.Id)
	require.Equal(t, "original (copy)", copied.Name)
	require.Equal(t, model.FLOW_STATUS_INACTIVE, copied.Status)
	require.Empty(t, copied.WebhookKey)

	_, origNodes, _, err := service.GetFlow(def.Id, false)
	require.NoError(t, err)
	_, copyNodes, copyEdges, err := service.GetFlow(copied.Id, false)
	require.NoError(t, err)
	require.Len(t, copyNodes, len(origNodes))

	// copied edges point at the copied nodes, not the originals
	ids := make(map[string]bool, len(copyNodes))
	for _, n := range copyNodes {
		ids[n.Id] = true
	}
	for _, e := range copyEdges {
		require.True(t, ids[e.SourceNodeId])
		require.True(t, ids[e.TargetNodeId])
	}
}

func testWebhookLookup(t *testing.T, service *Service) {
	payload := simplePayload("hooked")
	payload.TriggerType = model.TRIGGER_TYPE_WEBHOOK
	payload.WebhookKey = "abc123"
	def, err := service.Create(payload)
	require.NoError(t, err)

	found, err := service.FindByWebhookKey("abc123")
	require.NoError(t, err)
	require.Equal(t, def.Id, found.Id)

	_, err = service.FindByWebhookKey("nope")
	require.True(t, model.IsNotFound(err))

	_, err = service.ToggleStatus(def.Id)
	require.NoError(t, err)
	_, err = service.FindByWebhookKey("abc123")
	require.True(t, model.IsNotFound(err))
}

func testWebhookKeyUnique(t *testing.T, service *Service) {
	first := simplePayload("hook one")
	first.TriggerType = model.TRIGGER_TYPE_WEBHOOK
	first.WebhookKey = "k1"
	def, err := service.Create(first)
	require.NoError(t, err)

	second := simplePayload("hook two")
	second.TriggerType = model.TRIGGER_TYPE_WEBHOOK
	second.WebhookKey = "k1"
	_, err = service.Create(second)
	require.True(t, model.IsValidation(err))

	// the owner keeps its own key across updates
	first.Name = "hook one v2"
	_, err = service.Update(def.Id, first)
	require.NoError(t, err)

	second.WebhookKey = "k2"
	_, err = service.Create(second)
	require.NoError(t, err)
}

func testUpdateReplace(t *testing.T, service *Service) {
	def, err := service.Create(simplePayload("evolving"))
	require.NoError(t, err)

	updated := simplePayload("evolving v2")
	updated.Graph.Nodes = []NodePayload{
		{Ref: "start", Type: model.NODE_TYPE_START},
		{Ref: "end", Type: model.NODE_TYPE_END},
	}
	updated.Graph.Edges = []EdgePayload{{SourceRef: "start", TargetRef: "end"}}

	got, err := service.Update(def.Id, updated)
	require.NoError(t, err)
	require.Equal(t, def.Id, got.Id)
	require.Equal(t, "evolving v2", got.Name)

	_, nodes, edges, err := service.GetFlow(def.Id, false)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Len(t, edges, 1)

	_, err = service.Update("missing", updated)
	require.True(t, model.IsNotFound(err))
}
