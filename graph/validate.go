package graph

import (
	"github.com/google/uuid"

	"github.com/a23comunicacoes/oregon-flow/condition"
	"github.com/a23comunicacoes/oregon-flow/model"
)

var nodeTypes = map[model.NodeType]bool{
	model.NODE_TYPE_START:         true,
	model.NODE_TYPE_END:           true,
	model.NODE_TYPE_SEND_MESSAGE:  true,
	model.NODE_TYPE_CONDITION:     true,
	model.NODE_TYPE_WAIT_RESPONSE: true,
	model.NODE_TYPE_DELAY:         true,
	model.NODE_TYPE_WEBHOOK_CALL:  true,
	model.NODE_TYPE_UPDATE_RECORD: true,
	model.NODE_TYPE_CREATE_RECORD: true,
	model.NODE_TYPE_START_SUBFLOW: true,
}

// resolve validates the payload in one pass and materializes it with stable
// ids. An edge referencing an unknown node ref is a hard validation error,
// never a silently dropped edge.
func resolve(flowId string, payload *DefinitionPayload) (*model.FlowDefinition, []*model.FlowNode, []*model.FlowEdge, error) {
	if payload.Name == "" {
		return nil, nil, nil, model.Validationf("flow name is required")
	}
	switch payload.TriggerType {
	case model.TRIGGER_TYPE_MESSAGE, model.TRIGGER_TYPE_WEBHOOK, model.TRIGGER_TYPE_SCHEDULE, model.TRIGGER_TYPE_MANUAL:
	default:
		return nil, nil, nil, model.Validationf("unknown trigger type %q", payload.TriggerType)
	}
	if payload.TriggerType == model.TRIGGER_TYPE_WEBHOOK && payload.WebhookKey == "" {
		return nil, nil, nil, model.Validationf("webhook flow needs a webhook_key")
	}
	if payload.TriggerConditions != nil {
		if err := condition.Validate(payload.TriggerConditions); err != nil {
			return nil, nil, nil, err
		}
	}

	status := payload.Status
	if status == "" {
		status = model.FLOW_STATUS_INACTIVE
	}
	interruptible := true
	if payload.Interruptible != nil {
		interruptible = *payload.Interruptible
	}
	def := &model.FlowDefinition{
		Id:                flowId,
		Name:              payload.Name,
		Status:            status,
		TriggerType:       payload.TriggerType,
		WebhookKey:        payload.WebhookKey,
		TriggerConditions: payload.TriggerConditions,
		Priority:          payload.Priority,
		Interruptible:     interruptible,
		GlobalKeywords:    payload.GlobalKeywords,
	}

	refs := make(map[string]string, len(payload.Graph.Nodes))
	nodes := make([]*model.FlowNode, 0, len(payload.Graph.Nodes))
	startCount := 0
	for i, np := range payload.Graph.Nodes {
		if np.Ref == "" {
			return nil, nil, nil, model.Validationf("node #%d has no ref", i)
		}
		if _, dup := refs[np.Ref]; dup {
			return nil, nil, nil, model.Validationf("duplicate node ref %q", np.Ref)
		}
		if !nodeTypes[np.Type] {
			return nil, nil, nil, model.Validationf("unknown node type %q", np.Type)
		}
		if err := validateConfig(np); err != nil {
			return nil, nil, nil, err
		}
		if np.Type == model.NODE_TYPE_START {
			startCount++
		}
		id := uuid.New().String()
		refs[np.Ref] = id
		nodes = append(nodes, &model.FlowNode{
			Id:       id,
			FlowId:   flowId,
			Type:     np.Type,
			Label:    np.Label,
			Config:   np.Config,
			Position: np.Position,
		})
	}
	if startCount != 1 {
		return nil, nil, nil, model.Validationf("flow must have exactly one start node, found %d", startCount)
	}

	edges := make([]*model.FlowEdge, 0, len(payload.Graph.Edges))
	for i, ep := range payload.Graph.Edges {
		source, ok := refs[ep.SourceRef]
		if !ok {
			return nil, nil, nil, model.Validationf("edge #%d references unknown source node %q", i, ep.SourceRef)
		}
		target, ok := refs[ep.TargetRef]
		if !ok {
			return nil, nil, nil, model.Validationf("edge #%d references unknown target node %q", i, ep.TargetRef)
		}
		if ep.Condition != nil {
			if err := condition.Validate(ep.Condition); err != nil {
				return nil, nil, nil, err
			}
		}
		edges = append(edges, &model.FlowEdge{
			Id:           uuid.New().String(),
			FlowId:       flowId,
			SourceNodeId: source,
			TargetNodeId: target,
			Label:        ep.Label,
			Condition:    ep.Condition,
		})
	}
	return def, nodes, edges, nil
}

func validateConfig(np NodePayload) error {
	switch np.Type {
	case model.NODE_TYPE_SEND_MESSAGE:
		if np.Config.Message == nil || (np.Config.Message.Template == "" && np.Config.Message.MediaUrl == "") {
			return model.Validationf("send_message node %q needs a message template or media", np.Ref)
		}
	case model.NODE_TYPE_DELAY:
		if np.Config.Delay == nil || np.Config.Delay.Seconds <= 0 {
			return model.Validationf("delay node %q needs a positive duration", np.Ref)
		}
	case model.NODE_TYPE_WEBHOOK_CALL:
		if np.Config.Webhook == nil || np.Config.Webhook.Url == "" {
			return model.Validationf("webhook_call node %q needs a url", np.Ref)
		}
	case model.NODE_TYPE_UPDATE_RECORD, model.NODE_TYPE_CREATE_RECORD:
		if np.Config.Record == nil || np.Config.Record.Entity == "" {
			return model.Validationf("record node %q needs an entity", np.Ref)
		}
	case model.NODE_TYPE_START_SUBFLOW:
		if np.Config.Subflow == nil || np.Config.Subflow.FlowId == "" {
			return model.Validationf("start_subflow node %q needs a target flow id", np.Ref)
		}
	}
	return nil
}
