package interact

import (
	"time"

	"github.com/officeverse/roomcore/internal/geom"
	"github.com/officeverse/roomcore/internal/world"
)

// EventType names an interaction lifecycle event.
type EventType string

const (
	EventAvailable EventType = "available"
	EventLost      EventType = "lost"
	EventTriggered EventType = "triggered"
)

// Event is delivered to subscribers. Object and Position are set for
// available and triggered events; lost events carry the id only when the
// object no longer resolves.
type Event struct {
	Type     EventType
	ObjectID string
	Object   *world.Object
	Position *geom.Point
}

// Snapshot is a copy of the engine state handed to the state callback.
type Snapshot struct {
	Nearby         []string
	LastInteracted string // empty when nothing was triggered yet
	CooldownUntil  time.Time
	LastPosition   *geom.Point
}
