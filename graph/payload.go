package graph

import "github.com/a23comunicacoes/oregon-flow/model"

// GraphPayload is the edit form of a flow graph. Nodes carry a caller-chosen
// Ref; edges reference nodes by those refs. Stable ids are assigned during
// validation, before anything is written.
type GraphPayload struct {
	Nodes []NodePayload `json:"nodes"`
	Edges []EdgePayload `json:"edges"`
}

type NodePayload struct {
	Ref      string           `json:"ref"`
	Type     model.NodeType   `json:"type"`
	Label    string           `json:"label,omitempty"`
	Config   model.NodeConfig `json:"config"`
	Position model.Position   `json:"position"`
}

type EdgePayload struct {
	SourceRef string                `json:"source_ref"`
	TargetRef string                `json:"target_ref"`
	Label     string                `json:"label,omitempty"`
	Condition *model.ConditionGroup `json:"condition,omitempty"`
}

// DefinitionPayload is the create/update form of a flow definition.
type DefinitionPayload struct {
	Name              string                `json:"name"`
	Status            model.FlowStatus      `json:"status,omitempty"`
	TriggerType       model.TriggerType     `json:"trigger_type"`
	WebhookKey        string                `json:"webhook_key,omitempty"`
	TriggerConditions *model.ConditionGroup `json:"trigger_conditions,omitempty"`
	Priority          int                   `json:"priority"`
	Interruptible     *bool                 `json:"interruptible,omitempty"`
	GlobalKeywords    []string              `json:"global_keywords,omitempty"`
	Graph             GraphPayload          `json:"graph"`
}
