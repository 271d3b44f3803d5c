package model

import "time"

const ACTION_SEND_MESSAGE = "send_message"
const ACTION_UPDATE_CLIENT = "update_client"
const ACTION_START_FLOW = "start_flow"
const ACTION_RESUME_FLOW = "resume_flow"

// ScheduledAction is a one-off deferred side effect queued to fire at a
// specific time, outside the graph-stepping loop. Executado flips true only
// after a successful dispatch; a failed dispatch leaves it false so the next
// sweep retries. The portuguese field names are the persisted contract the
// rest of the system reads.
type ScheduledAction struct {
	Id         string         `json:"id"`
	Action     string         `json:"action"`
	Parametros map[string]any `json:"parametros,omitempty"`
	ExecutarEm time.Time      `json:"executarEm"`
	Executado  bool           `json:"executado"`
	ClientId   string         `json:"clientId,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	FlowRunId  string         `json:"flowRunId,omitempty"`
}
