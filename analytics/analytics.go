// Package analytics records run lifecycle events for offline analysis.
// The log file collector appends one JSON document per state change.
package analytics

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
)

type RunEvent struct {
	RunId       string    `json:"runId"`
	FlowId      string    `json:"flowId"`
	Status      string    `json:"status"`
	CurrentNode string    `json:"currentNode"`
	ParkReason  string    `json:"parkReason,omitempty"`
	ErrorReason string    `json:"errorReason,omitempty"`
	At          time.Time `json:"at"`
}

// LogFileCollector implements engine.Notifier by appending run state
// changes to a local file.
type LogFileCollector struct {
	mu   sync.Mutex
	file *os.File
}

func NewLogFileCollector(fileName string) (*LogFileCollector, error) {
	f, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &LogFileCollector{file: f}, nil
}

func (c *LogFileCollector) RunStateChanged(run *model.FlowRun) {
	event := RunEvent{
		RunId:       run.Id,
		FlowId:      run.FlowId,
		Status:      string(run.Status),
		CurrentNode: run.CurrentNodeId,
		ParkReason:  string(run.ParkReason),
		ErrorReason: run.ErrorReason,
		At:          time.Now(),
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.file.Write(line); err != nil {
		logger.Warn("could not record run event", zap.String("runId", run.Id), zap.Error(err))
	}
}

func (c *LogFileCollector) Close() error {
	return c.file.Close()
}
