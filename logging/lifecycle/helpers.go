package lifecycle

import (
	"context"

	"intersection/server/logging"
)

const (
	// EventRespawned is emitted when a connection spawns or replaces its entity.
	EventRespawned logging.EventType = "lifecycle.respawned"
	// EventDisconnected is emitted when a connection leaves the world.
	EventDisconnected logging.EventType = "lifecycle.disconnected"
	// EventHeartbeatStale is emitted once when an entity's heartbeat lapses
	// and the integrator starts freezing it.
	EventHeartbeatStale logging.EventType = "lifecycle.heartbeat_stale"
)

// RespawnedPayload captures spawn placement for a new or replaced entity.
type RespawnedPayload struct {
	SpawnX float64 `json:"spawnX"`
	SpawnY float64 `json:"spawnY"`
	Rejoin bool    `json:"rejoin"`
	Name   string  `json:"name,omitempty"`
}

// DisconnectedPayload captures why a connection left.
type DisconnectedPayload struct {
	Reason   string `json:"reason"`
	Contacts int    `json:"contactsPurged"`
}

// Respawned publishes an entity (re)spawn event.
func Respawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RespawnedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRespawned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// Disconnected publishes a connection removal event.
func Disconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DisconnectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// HeartbeatStale publishes a freeze notice for a silent entity.
func HeartbeatStale(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHeartbeatStale,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryLifecycle,
	})
}
