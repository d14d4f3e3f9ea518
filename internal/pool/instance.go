package pool

import (
	"time"

	"github.com/google/uuid"

	"github.com/newswatch/browserpool/internal/engine"
)

// State tracks an instance through its lifecycle:
// launching → idle ⇄ active → retiring → terminated.
// A retired instance is never revived.
type State string

const (
	StateLaunching  State = "launching"
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateRetiring   State = "retiring"
	StateTerminated State = "terminated"
)

// Instance is one live browser process plus the bookkeeping the pool needs
// to decide when to retire it. All mutable fields are guarded by the owning
// WorkerPool's mutex.
type Instance struct {
	id         uuid.UUID
	eng        engine.Engine
	createdAt  time.Time
	lastUsed   time.Time
	usageCount int
	state      State
}

func newInstance(eng engine.Engine) *Instance {
	now := time.Now()
	return &Instance{
		id:        uuid.New(),
		eng:       eng,
		createdAt: now,
		lastUsed:  now,
		state:     StateLaunching,
	}
}

func (i *Instance) ID() uuid.UUID { return i.id }

// Engine returns the live browser handle. It must only be used by the worker
// that acquired the instance, between Acquire and Release.
func (i *Instance) Engine() engine.Engine { return i.eng }

func (i *Instance) CreatedAt() time.Time { return i.createdAt }

func (i *Instance) UsageCount() int { return i.usageCount }

func (i *Instance) Age(now time.Time) time.Duration { return now.Sub(i.createdAt) }

// expired reports whether the instance has crossed either retirement
// threshold. Both conditions are terminal; there is no preference ordering.
func (i *Instance) expired(now time.Time, maxAge time.Duration, maxUsage int) bool {
	if maxAge > 0 && now.Sub(i.createdAt) >= maxAge {
		return true
	}
	if maxUsage > 0 && i.usageCount >= maxUsage {
		return true
	}
	return false
}
