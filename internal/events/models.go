package events

import (
	"time"

	"github.com/google/uuid"
)

// SweepEvent records one janitor pass across all worker pools.
type SweepEvent struct {
	ID            uuid.UUID `json:"id" gorm:"primaryKey"`
	CreatedAt     time.Time `json:"created_at"`
	WorkersSwept  int       `json:"workers_swept"`
	Retired       int       `json:"retired"`
	DurationMS    int64     `json:"duration_ms"`
	TriggeredBy   string    `json:"triggered_by"` // "ticker", "scheduler", "manual"
	ActiveAfter   int       `json:"active_after"`
	IdleAfter     int       `json:"idle_after"`
}

func (SweepEvent) TableName() string {
	return "sweep_events"
}

// ProcessCheckEvent records one OS-level browser process count cross-check.
type ProcessCheckEvent struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	Observed  int       `json:"observed"`
	Accounted int       `json:"accounted"`
	Leaked    bool      `json:"leaked"`
	Degraded  bool      `json:"degraded"`
}

func (ProcessCheckEvent) TableName() string {
	return "process_check_events"
}
