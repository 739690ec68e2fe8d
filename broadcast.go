package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"intersection/server/logging"
	loggingNetwork "intersection/server/logging/network"
	loggingSim "intersection/server/logging/simulation"
)

// recipientView is the per-connection slice of a broadcast frame, captured
// under the hub lock and consumed after it is released.
type recipientView struct {
	sess        *session
	role        Role
	self        Entity
	hasEntity   bool
	gravity     GravityPayload
	isColliding bool
	cluster     int
}

// broadcastFrame is everything one full-broadcast firing needs, snapshotted
// in a single critical section so every recipient of the firing sees the
// same world and the same collision-event batch.
type broadcastFrame struct {
	recipients []recipientView
	all        []Entity
	lines      []CollisionLine
	events     []CollisionEvent
	clusters   ClusterSet
	rebuilt    bool
	players    int
	spectators int
}

// captureFrame refreshes collisions (every firing) and clusters (on the
// detector's own coarser timer) and snapshots per-recipient state.
func (h *Hub) captureFrame(now time.Time) broadcastFrame {
	h.mu.Lock()
	defer h.mu.Unlock()

	states := h.registry.All()
	lines := h.collisions.Detect(states, now)
	events := h.collisions.DrainEvents()
	set, rebuilt := h.clusters.Recompute(states, now, false)

	frame := broadcastFrame{
		lines:    lines,
		events:   events,
		clusters: set,
		rebuilt:  rebuilt,
		all:      make([]Entity, 0, len(states)),
		players:  h.registry.Len(),
	}
	for _, state := range states {
		frame.all = append(frame.all, state.snapshot())
	}

	for _, sess := range h.sessions {
		view := recipientView{sess: sess, role: sess.role, cluster: -1}
		if sess.role == RoleSpectator {
			frame.spectators++
			view.self = h.centeredView()
			frame.recipients = append(frame.recipients, view)
			continue
		}
		state, ok := h.registry.Get(sess.id)
		if !ok {
			// Connected but not yet respawned; nothing to send.
			continue
		}
		view.self = state.snapshot()
		view.hasEntity = true
		view.gravity = state.gravity.payload()
		view.isColliding = h.collisions.IsColliding(sess.id)
		if id, ok := set.Membership[sess.id]; ok {
			view.cluster = id
		}
		frame.recipients = append(frame.recipients, view)
	}
	return frame
}

// centeredView is the synthetic self a spectator renders from: a massless
// marker at the world center.
func (h *Hub) centeredView() Entity {
	return Entity{
		ID: "spectator",
		X:  h.cfg.WorldWidth / 2,
		Y:  h.cfg.WorldHeight / 2,
	}
}

// BroadcastFull runs one full-broadcast firing: per-recipient snapshots,
// the leaderboard, and — when the cluster detector actually rebuilt — the
// derived audio signals.
func (h *Hub) BroadcastFull(now time.Time) {
	frame := h.captureFrame(now)

	if len(frame.events) > 0 {
		h.telemetry.AddCollisionEvents(len(frame.events))
		loggingSim.CollisionBatch(context.Background(), h.publisher, h.tick.Load(),
			loggingSim.CollisionBatchPayload{Events: len(frame.events), Contacts: len(frame.lines)})
	}
	if frame.rebuilt {
		h.telemetry.IncrementClusterRecompute()
		largest := 0
		if frame.clusters.Largest >= 0 {
			largest = len(frame.clusters.Clusters[frame.clusters.Largest].Members)
		}
		loggingSim.ClusterRefresh(context.Background(), h.publisher, h.tick.Load(),
			loggingSim.ClusterRefreshPayload{
				Clusters:    len(frame.clusters.Clusters),
				LargestSize: largest,
				Entities:    len(frame.all),
			})
	}

	totalBytes := 0
	totalEntities := 0
	for _, view := range frame.recipients {
		msg := StateMessage{
			Ver:  ProtocolVersion,
			Type: TypePlayerMove,
			Self: view.self,
			Meta: BroadcastMeta{
				Collisions:      frame.lines,
				CollisionEvents: frame.events,
				Gravity:         view.gravity,
				IsColliding:     view.isColliding,
			},
		}
		if view.role == RoleSpectator {
			msg.Others = frame.all
			msg.Meta.Population = frame.players
		} else {
			msg.Others = othersFor(frame.all, view.self.ID)
		}
		if n, ok := h.send(view.sess, msg); ok {
			totalBytes += n
			totalEntities += len(msg.Others) + 1
		}
	}
	h.telemetry.RecordBroadcast(totalBytes, totalEntities)

	leaderboard := LeaderboardMessage{
		Ver:        ProtocolVersion,
		Type:       TypeLeaderboard,
		Players:    frame.players,
		Spectators: frame.spectators,
	}
	for _, view := range frame.recipients {
		h.send(view.sess, leaderboard)
	}

	h.sendAudio(frame)
}

// sendAudio fans the derived audio signals out: per-player gravity, the
// member's own cluster chord, and the largest cluster for spectators. The
// cluster-derived messages fire only when the detector rebuilt, matching
// the audio layer's refresh rate.
func (h *Hub) sendAudio(frame broadcastFrame) {
	for _, view := range frame.recipients {
		if !view.hasEntity {
			continue
		}
		h.send(view.sess, AudioSelfMessage{
			Ver:     ProtocolVersion,
			Type:    TypeAudioSelf,
			Gravity: view.gravity,
		})
	}

	if !frame.rebuilt {
		return
	}

	for _, view := range frame.recipients {
		switch {
		case view.role == RoleSpectator && frame.clusters.Largest >= 0:
			cluster := frame.clusters.Clusters[frame.clusters.Largest]
			h.send(view.sess, AudioGlobalMessage{
				Ver:        ProtocolVersion,
				Type:       TypeAudioGlobal,
				Gain:       cluster.Gain,
				Chord:      cluster.Chord,
				Population: frame.players,
			})
		case view.hasEntity && view.cluster >= 0:
			cluster := frame.clusters.Clusters[view.cluster]
			h.send(view.sess, AudioClusterMessage{
				Ver:     ProtocolVersion,
				Type:    TypeAudioCluster,
				Cluster: cluster.ID,
				Gain:    cluster.Gain,
				Chord:   cluster.Chord,
			})
		}
	}
}

// BroadcastFast runs one self fast-path firing: each player's own state
// plus gravity and contact flag, tagged fast so clients use it purely for
// interpolation smoothing and never replace their entity list with it.
func (h *Hub) BroadcastFast(now time.Time) {
	h.mu.Lock()
	views := make([]recipientView, 0, len(h.sessions))
	for _, sess := range h.sessions {
		if sess.role != RolePlayer {
			continue
		}
		state, ok := h.registry.Get(sess.id)
		if !ok {
			continue
		}
		views = append(views, recipientView{
			sess:        sess,
			self:        state.snapshot(),
			gravity:     state.gravity.payload(),
			isColliding: h.collisions.IsColliding(sess.id),
		})
	}
	h.mu.Unlock()

	for _, view := range views {
		msg := StateMessage{
			Ver:  ProtocolVersion,
			Type: TypePlayerMove,
			Self: view.self,
			Meta: BroadcastMeta{
				Fast:        true,
				Gravity:     view.gravity,
				IsColliding: view.isColliding,
			},
		}
		if _, ok := h.send(view.sess, msg); ok {
			h.telemetry.IncrementFastPath()
		}
	}
}

// othersFor filters the shared snapshot down to everyone but self.
func othersFor(all []Entity, selfID string) []Entity {
	others := make([]Entity, 0, len(all))
	for _, entity := range all {
		if entity.ID == selfID {
			continue
		}
		others = append(others, entity)
	}
	return others
}

// send marshals and writes one message to one session. Failures are
// swallowed per recipient: the broadcast continues, the broken connection
// is torn down.
func (h *Hub) send(sess *session, msg any) (int, bool) {
	if sess == nil {
		return 0, false
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("failed to marshal message for %s: %v", sess.id, err)
		return 0, false
	}
	if err := sess.write(data, websocket.TextMessage); err != nil {
		kind := logging.EntityKindPlayer
		if sess.role == RoleSpectator {
			kind = logging.EntityKindSpectator
		}
		loggingNetwork.SendFailure(context.Background(), h.publisher, h.tick.Load(),
			logging.EntityRef{ID: sess.id, Kind: kind},
			loggingNetwork.SendFailurePayload{Message: messageType(msg), Error: err.Error()})
		h.Disconnect(sess.id)
		return 0, false
	}
	return len(data), true
}

// broadcastToAll sends one message to every connection, player and
// spectator alike.
func (h *Hub) broadcastToAll(msg any) {
	h.mu.Lock()
	targets := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		targets = append(targets, sess)
	}
	h.mu.Unlock()

	for _, sess := range targets {
		h.send(sess, msg)
	}
}

func messageType(msg any) string {
	switch m := msg.(type) {
	case StateMessage:
		return m.Type
	case WelcomeMessage:
		return m.Type
	case LeaderboardMessage:
		return m.Type
	case AudioSelfMessage:
		return m.Type
	case AudioClusterMessage:
		return m.Type
	case AudioGlobalMessage:
		return m.Type
	case NoiseSlotsMessage:
		return m.Type
	case ParamMessage:
		return m.Type
	case HeartbeatAckMessage:
		return m.Type
	default:
		return "unknown"
	}
}
