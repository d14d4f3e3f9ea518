package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypePoolSweep    = "pool:sweep"
	TypeProcessCheck = "health:process_check"
	TypeEventsPrune  = "events:prune"
)

// PoolSweepPayload is the payload for janitor sweep tasks.
type PoolSweepPayload struct {
	TriggeredBy string `json:"triggered_by"` // "scheduler", "manual"
}

func (p *PoolSweepPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func (p *PoolSweepPayload) Unmarshal(data []byte) error {
	return json.Unmarshal(data, p)
}

// NewPoolSweepTask creates a new janitor sweep task.
func NewPoolSweepTask(payload PoolSweepPayload) (*asynq.Task, error) {
	data, err := payload.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypePoolSweep, data), nil
}

// ProcessCheckPayload is the payload for the browser process watchdog.
type ProcessCheckPayload struct {
	WarnThreshold int `json:"warn_threshold"`
}

func (p *ProcessCheckPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func (p *ProcessCheckPayload) Unmarshal(data []byte) error {
	return json.Unmarshal(data, p)
}

// NewProcessCheckTask creates a new process watchdog task.
func NewProcessCheckTask(payload ProcessCheckPayload) (*asynq.Task, error) {
	data, err := payload.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeProcessCheck, data), nil
}

// EventsPrunePayload is the payload for event log pruning.
type EventsPrunePayload struct {
	MaxAgeHours int `json:"max_age_hours"`
}

func (p *EventsPrunePayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func (p *EventsPrunePayload) Unmarshal(data []byte) error {
	return json.Unmarshal(data, p)
}

// NewEventsPruneTask creates a new event pruning task.
func NewEventsPruneTask(payload EventsPrunePayload) (*asynq.Task, error) {
	data, err := payload.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeEventsPrune, data), nil
}

// GetQueueForTask returns the appropriate queue name for a task type.
func GetQueueForTask(taskType string) string {
	switch taskType {
	case TypeProcessCheck:
		return "default"
	case TypePoolSweep, TypeEventsPrune:
		return "low"
	default:
		return "default"
	}
}
