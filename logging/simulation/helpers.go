package simulation

import (
	"context"

	"intersection/server/logging"
)

const (
	// EventCollisionBatch is emitted when a broadcast firing drains new
	// collision events.
	EventCollisionBatch logging.EventType = "simulation.collision_batch"
	// EventClusterRefresh is emitted after a cluster recompute.
	EventClusterRefresh logging.EventType = "simulation.cluster_refresh"
)

// CollisionBatchPayload summarizes one drained event batch.
type CollisionBatchPayload struct {
	Events   int `json:"events"`
	Contacts int `json:"contacts"`
}

// ClusterRefreshPayload summarizes the cluster set after a recompute.
type ClusterRefreshPayload struct {
	Clusters    int `json:"clusters"`
	LargestSize int `json:"largestSize"`
	Entities    int `json:"entities"`
}

// CollisionBatch publishes a debug event for a drained collision batch.
func CollisionBatch(ctx context.Context, pub logging.Publisher, tick uint64, payload CollisionBatchPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCollisionBatch,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// ClusterRefresh publishes a debug event after clusters are rebuilt.
func ClusterRefresh(ctx context.Context, pub logging.Publisher, tick uint64, payload ClusterRefreshPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClusterRefresh,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}
