package model

import "time"

type FlowStatus string

const FLOW_STATUS_ACTIVE FlowStatus = "active"
const FLOW_STATUS_INACTIVE FlowStatus = "inactive"

type TriggerType string

const TRIGGER_TYPE_MESSAGE TriggerType = "message"
const TRIGGER_TYPE_WEBHOOK TriggerType = "webhook"
const TRIGGER_TYPE_SCHEDULE TriggerType = "schedule"
const TRIGGER_TYPE_MANUAL TriggerType = "manual"

// FlowDefinition is a named directed graph of nodes and edges describing an
// automated conversation. Nodes and edges are owned by the definition and are
// replaced wholesale on edit.
type FlowDefinition struct {
	Id                string          `json:"id"`
	Name              string          `json:"name"`
	Status            FlowStatus      `json:"status"`
	TriggerType       TriggerType     `json:"trigger_type"`
	WebhookKey        string          `json:"webhook_key,omitempty"`
	TriggerConditions *ConditionGroup `json:"trigger_conditions,omitempty"`
	Priority          int             `json:"priority"`
	Interruptible     bool            `json:"interruptible"`
	GlobalKeywords    []string        `json:"global_keywords,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (d *FlowDefinition) Active() bool {
	return d.Status == FLOW_STATUS_ACTIVE
}

type NodeType string

const NODE_TYPE_START NodeType = "start"
const NODE_TYPE_END NodeType = "end"
const NODE_TYPE_SEND_MESSAGE NodeType = "send_message"
const NODE_TYPE_CONDITION NodeType = "condition"
const NODE_TYPE_WAIT_RESPONSE NodeType = "wait_response"
const NODE_TYPE_DELAY NodeType = "delay"
const NODE_TYPE_WEBHOOK_CALL NodeType = "webhook_call"
const NODE_TYPE_UPDATE_RECORD NodeType = "update_record"
const NODE_TYPE_CREATE_RECORD NodeType = "create_record"
const NODE_TYPE_START_SUBFLOW NodeType = "start_subflow"

type FlowNode struct {
	Id       string     `json:"id"`
	FlowId   string     `json:"flow_id"`
	Type     NodeType   `json:"type"`
	Label    string     `json:"label,omitempty"`
	Config   NodeConfig `json:"config"`
	Position Position   `json:"position"`
}

// Position carries layout coordinates for the editor, it has no behavior.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeConfig is the typed payload of a node, keyed by node type. Only the
// section matching the node type is consulted at execution time.
type NodeConfig struct {
	Message *MessageConfig `json:"message,omitempty"`
	Wait    *WaitConfig    `json:"wait,omitempty"`
	Delay   *DelayConfig   `json:"delay,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty"`
	Record  *RecordConfig  `json:"record,omitempty"`
	Subflow *SubflowConfig `json:"subflow,omitempty"`
}

type MessageConfig struct {
	Template string `json:"template"`
	MediaUrl string `json:"media_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type WaitConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	SaveAs         string `json:"save_as,omitempty"`
}

type DelayConfig struct {
	Seconds int `json:"seconds"`
}

type WebhookConfig struct {
	Url     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
	SaveAs  string            `json:"save_as,omitempty"`
}

type RecordConfig struct {
	Entity   string         `json:"entity"`
	RecordId string         `json:"record_id,omitempty"`
	Fields   map[string]any `json:"fields"`
}

type SubflowConfig struct {
	FlowId string `json:"flow_id"`
}

const EDGE_LABEL_TIMEOUT = "timeout"
const EDGE_LABEL_ERROR = "error"

type FlowEdge struct {
	Id           string          `json:"id"`
	FlowId       string          `json:"flow_id"`
	SourceNodeId string          `json:"source_node_id"`
	TargetNodeId string          `json:"target_node_id"`
	Label        string          `json:"label,omitempty"`
	Condition    *ConditionGroup `json:"condition,omitempty"`
}

// Unconditioned reports whether the edge is a default transition. Edges
// labeled timeout or error are reserved for their events and never taken as
// a default.
func (e *FlowEdge) Unconditioned() bool {
	return e.Condition == nil && e.Label != EDGE_LABEL_TIMEOUT && e.Label != EDGE_LABEL_ERROR
}
