package model

import "time"

type RunStatus string

const RUN_STATUS_RUNNING RunStatus = "running"
const RUN_STATUS_WAITING RunStatus = "waiting"
const RUN_STATUS_COMPLETED RunStatus = "completed"
const RUN_STATUS_CANCELED RunStatus = "canceled"
const RUN_STATUS_TIMEOUT RunStatus = "timeout"
const RUN_STATUS_ERROR RunStatus = "error"

type ParkReason string

const PARK_NONE ParkReason = ""
const PARK_AWAITING_RESPONSE ParkReason = "awaiting_response"
const PARK_AWAITING_TIMER ParkReason = "awaiting_timer"
const PARK_AWAITING_EXTERNAL ParkReason = "awaiting_external"

// RunContext carries the conversation identity plus flow-local variables
// accumulated by nodes. The identity fields are fixed, everything else lives
// in Vars.
type RunContext struct {
	Phone    string         `json:"phone"`
	ClientId string         `json:"clientId"`
	ChatId   string         `json:"chatId"`
	Vars     map[string]any `json:"vars,omitempty"`
}

func (c *RunContext) Set(key string, value any) {
	if c.Vars == nil {
		c.Vars = make(map[string]any)
	}
	c.Vars[key] = value
}

func (c *RunContext) Get(key string) (any, bool) {
	switch key {
	case "phone":
		return c.Phone, true
	case "clientId":
		return c.ClientId, true
	case "chatId":
		return c.ChatId, true
	}
	v, ok := c.Vars[key]
	return v, ok
}

func (c *RunContext) Delete(key string) {
	delete(c.Vars, key)
}

// AsMap flattens the context for jsonpath lookups and script evaluation.
func (c *RunContext) AsMap() map[string]any {
	m := make(map[string]any, len(c.Vars)+3)
	for k, v := range c.Vars {
		m[k] = v
	}
	m["phone"] = c.Phone
	m["clientId"] = c.ClientId
	m["chatId"] = c.ChatId
	return m
}

func (c *RunContext) Clone() RunContext {
	out := RunContext{Phone: c.Phone, ClientId: c.ClientId, ChatId: c.ChatId}
	if c.Vars != nil {
		out.Vars = make(map[string]any, len(c.Vars))
		for k, v := range c.Vars {
			out.Vars[k] = v
		}
	}
	return out
}

// FlowRun is one execution instance of a flow for one conversation.
// WaitingForResponse and NextRunAt are the persisted contract fields other
// subsystems read; they are derived from ParkReason through Park/ClearPark,
// which are the only mutation paths keeping the three consistent.
type FlowRun struct {
	Id                 string     `json:"id"`
	FlowId             string     `json:"flow_id"`
	StartNodeId        string     `json:"start_node_id"`
	CurrentNodeId      string     `json:"current_node_id"`
	Status             RunStatus  `json:"status"`
	Context            RunContext `json:"context"`
	ParkReason         ParkReason `json:"park_reason,omitempty"`
	WaitingForResponse bool       `json:"waiting_for_response"`
	NextRunAt          *time.Time `json:"next_run_at,omitempty"`
	ErrorReason        string     `json:"error_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (r *FlowRun) Terminal() bool {
	switch r.Status {
	case RUN_STATUS_COMPLETED, RUN_STATUS_CANCELED, RUN_STATUS_TIMEOUT, RUN_STATUS_ERROR:
		return true
	}
	return false
}

func (r *FlowRun) Park(reason ParkReason, resumeAt *time.Time) {
	r.Status = RUN_STATUS_WAITING
	r.ParkReason = reason
	r.WaitingForResponse = reason == PARK_AWAITING_RESPONSE
	r.NextRunAt = resumeAt
}

func (r *FlowRun) ClearPark() {
	r.Status = RUN_STATUS_RUNNING
	r.ParkReason = PARK_NONE
	r.WaitingForResponse = false
	r.NextRunAt = nil
}
