package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"intersection/server/logging"
	"intersection/server/logging/lifecycle"
	loggingNetwork "intersection/server/logging/network"
)

// Role classifies a connection for its whole lifetime. It is fixed at
// connect time and never changes.
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// ParseRole maps the connection-time query parameter onto a role,
// defaulting to player.
func ParseRole(value string) Role {
	if value == string(RoleSpectator) {
		return RoleSpectator
	}
	return RolePlayer
}

const writeWait = 10 * time.Second

// sessionConn is the slice of a websocket connection the hub needs; tests
// substitute recording stubs.
type sessionConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// session is one connected client: its role, its socket, and a write mutex
// so concurrent loops never interleave frames.
type session struct {
	id   string
	role Role
	conn sessionConn
	mu   sync.Mutex
}

func (s *session) ID() string { return s.id }
func (s *session) Role() Role { return s.role }

// WriteJSON marshals and writes one message on behalf of the read loop.
// The caller owns the error: a failed write means the connection is dead.
func (s *session) WriteJSON(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", msg, err)
	}
	return s.write(data, websocket.TextMessage)
}

// write sends one prepared frame with a deadline. Errors are returned for
// the caller to decide between logging and disconnecting.
func (s *session) write(data []byte, messageType int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// Hub owns every piece of shared mutable state: the entity registry, the
// session table, the noise slots, and the cluster/collision detectors. All
// three scheduler loops and every websocket read loop are callers into the
// hub; h.mu is the single writer gate.
type Hub struct {
	mu         sync.Mutex
	cfg        Config
	registry   *Registry
	sessions   map[string]*session
	clusters   *ClusterDetector
	collisions *CollisionDetector
	noise      *NoiseSlots

	nextID    atomic.Uint64
	tick      atomic.Uint64
	telemetry *telemetryCounters
	publisher logging.Publisher
	rng       *rand.Rand

	// staleLogged tracks which entities already produced a heartbeat_stale
	// event so freezing is reported once per lapse, not once per tick.
	staleLogged map[string]bool
}

func NewHub(cfg Config, publisher logging.Publisher) *Hub {
	cfg = cfg.normalized()
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Hub{
		cfg:         cfg,
		registry:    NewRegistry(),
		sessions:    make(map[string]*session),
		clusters:    NewClusterDetector(cfg.ClusterRadius, cfg.ClusterMinInterval),
		collisions:  NewCollisionDetector(cfg.CollisionDist, cfg.CollisionVisualR, cfg.EventCooldown),
		noise:       NewNoiseSlots(cfg.NoiseSlotCount),
		telemetry:   newTelemetryCounters(),
		publisher:   publisher,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		staleLogged: make(map[string]bool),
	}
}

func (h *Hub) Config() Config { return h.cfg }

// Tick returns the current physics tick number.
func (h *Hub) Tick() uint64 { return h.tick.Load() }

// Connect registers a websocket under a fresh connection id. The entity, if
// the role gets one, is created later by Respawn.
func (h *Hub) Connect(role Role, conn sessionConn) (*session, NoiseSlotsMessage) {
	id := fmt.Sprintf("conn-%d", h.nextID.Add(1))
	sess := &session{id: id, role: role, conn: conn}

	h.mu.Lock()
	h.sessions[id] = sess
	slots := h.noise.Snapshot()
	h.mu.Unlock()

	init := NoiseSlotsMessage{Ver: ProtocolVersion, Type: TypeNoiseSlotsInit, Slots: slots}
	return sess, init
}

// Respawn creates or replaces the entity for a player session at a random
// spawn point. Display name and screen metadata survive a re-respawn. For
// spectator sessions it is a no-op.
func (h *Hub) Respawn(sessionID string) (WelcomeMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[sessionID]
	if !ok || sess.role != RolePlayer {
		return WelcomeMessage{}, false
	}

	margin := h.cfg.DefaultRadius
	entity := Entity{
		ID:     sessionID,
		X:      margin + h.rng.Float64()*(h.cfg.WorldWidth-2*margin),
		Y:      margin + h.rng.Float64()*(h.cfg.WorldHeight-2*margin),
		Z:      h.rng.Float64() * 100,
		Radius: h.cfg.DefaultRadius,
		Mass:   h.cfg.DefaultMass,
		Hue:    h.rng.Float64() * 360,
	}

	rejoin := false
	if prev, ok := h.registry.Get(sessionID); ok {
		rejoin = true
		entity.Name = prev.Name
		entity.ScreenWidth = prev.ScreenWidth
		entity.ScreenHeight = prev.ScreenHeight
		entity.Hue = prev.Hue
	}

	state := &entityState{
		Entity:        entity,
		gravity:       GravityVector{Dist: math.Inf(1)},
		lastHeartbeat: time.Now(),
	}
	h.registry.Upsert(state)
	delete(h.staleLogged, sessionID)

	lifecycle.Respawned(context.Background(), h.publisher, h.tick.Load(),
		logging.EntityRef{ID: sessionID, Kind: logging.EntityKindPlayer},
		lifecycle.RespawnedPayload{SpawnX: entity.X, SpawnY: entity.Y, Rejoin: rejoin, Name: entity.Name})

	welcome := WelcomeMessage{
		Ver:        ProtocolVersion,
		Type:       TypeWelcome,
		Self:       state.snapshot(),
		World:      WorldInfo{Width: h.cfg.WorldWidth, Height: h.cfg.WorldHeight},
		NoiseSlots: h.noise.Snapshot(),
	}
	return welcome, true
}

// SetDisplay stores the client-reported name and screen size.
func (h *Hub) SetDisplay(sessionID, name string, screenW, screenH float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.registry.Get(sessionID)
	if !ok {
		return false
	}
	if name != "" {
		state.Name = name
	}
	if screenW > 0 {
		state.ScreenWidth = screenW
	}
	if screenH > 0 {
		state.ScreenHeight = screenH
	}
	return true
}

// Resize updates the stored screen dimensions.
func (h *Hub) Resize(sessionID string, screenW, screenH float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.registry.Get(sessionID)
	if !ok {
		return false
	}
	if screenW > 0 {
		state.ScreenWidth = screenW
	}
	if screenH > 0 {
		state.ScreenHeight = screenH
	}
	return true
}

// UpdateIntent stores the clamped desired velocity and refreshes the
// heartbeat; control input never touches position directly.
func (h *Hub) UpdateIntent(sessionID string, vx, vy float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.registry.Get(sessionID)
	if !ok {
		return false
	}
	state.desiredVX, state.desiredVY = clampMagnitude(vx, vy, h.cfg.MaxSpeed)
	state.lastHeartbeat = time.Now()
	delete(h.staleLogged, sessionID)
	return true
}

// UpdateHeartbeat records the most recent heartbeat time and RTT.
func (h *Hub) UpdateHeartbeat(sessionID string, receivedAt time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.registry.Get(sessionID)
	if !ok {
		return 0, false
	}

	state.lastHeartbeat = receivedAt
	delete(h.staleLogged, sessionID)

	var rtt time.Duration
	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt = receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			state.lastRTT = rtt
		}
	}
	return state.lastRTT, true
}

// SetNoiseSlot mutates one slot and returns the updated array for
// rebroadcast. Invalid slot indices report false and change nothing.
func (h *Hub) SetNoiseSlot(sessionID string, slot int, nodeIDs []string) ([][]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.noise.Set(slot, nodeIDs) {
		loggingNetwork.Malformed(context.Background(), h.publisher, h.tick.Load(),
			logging.EntityRef{ID: sessionID, Kind: logging.EntityKindPlayer},
			loggingNetwork.MalformedPayload{EventType: "noiseSlots:set", Detail: fmt.Sprintf("slot %d out of range", slot)})
		return nil, false
	}
	return h.noise.Snapshot(), true
}

// ClearNoiseSlot empties one slot and returns the updated array.
func (h *Hub) ClearNoiseSlot(sessionID string, slot int) ([][]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.noise.Clear(slot) {
		loggingNetwork.Malformed(context.Background(), h.publisher, h.tick.Load(),
			logging.EntityRef{ID: sessionID, Kind: logging.EntityKindPlayer},
			loggingNetwork.MalformedPayload{EventType: "noiseSlots:clear", Detail: fmt.Sprintf("slot %d out of range", slot)})
		return nil, false
	}
	return h.noise.Snapshot(), true
}

// BroadcastNoiseSlots fans a noiseSlots:update out to every connection.
func (h *Hub) BroadcastNoiseSlots(slots [][]string) {
	msg := NoiseSlotsMessage{Ver: ProtocolVersion, Type: TypeNoiseSlotsUpdate, Slots: slots}
	h.broadcastToAll(msg)
}

// BroadcastParam rebroadcasts an opaque client payload to every connection
// unchanged.
func (h *Hub) BroadcastParam(value json.RawMessage) {
	msg := ParamMessage{Ver: ProtocolVersion, Type: TypeParam, Value: value}
	h.broadcastToAll(msg)
}

// Disconnect removes the session, its entity, and its contact records in
// one critical section so no scheduler firing observes a half-removed
// connection. Double-disconnect is a no-op.
func (h *Hub) Disconnect(sessionID string) bool {
	h.mu.Lock()
	sess, sessOK := h.sessions[sessionID]
	if sessOK {
		delete(h.sessions, sessionID)
	}
	before := h.collisions.ContactCount()
	h.collisions.RemoveEntity(sessionID)
	purged := before - h.collisions.ContactCount()
	entityOK := h.registry.Remove(sessionID)
	delete(h.staleLogged, sessionID)
	h.mu.Unlock()

	if sessOK && sess.conn != nil {
		sess.conn.Close()
	}
	if !sessOK && !entityOK {
		return false
	}

	kind := logging.EntityKindSpectator
	if entityOK {
		kind = logging.EntityKindPlayer
	}
	lifecycle.Disconnected(context.Background(), h.publisher, h.tick.Load(),
		logging.EntityRef{ID: sessionID, Kind: kind},
		lifecycle.DisconnectedPayload{Reason: "disconnect", Contacts: purged})
	return true
}

// advance runs one physics tick over the registry.
func (h *Hub) advance(now time.Time, dt float64) {
	h.mu.Lock()
	states := h.registry.All()
	for _, state := range states {
		if state.stale(now, h.cfg.HeartbeatTimeout) && !h.staleLogged[state.ID] {
			h.staleLogged[state.ID] = true
			lifecycle.HeartbeatStale(context.Background(), h.publisher, h.tick.Load(),
				logging.EntityRef{ID: state.ID, Kind: logging.EntityKindPlayer})
		}
	}
	stepEntities(states, now, dt, h.cfg)
	h.mu.Unlock()
}

// RunSimulation drives the fixed-rate physics tick until stop closes. A
// lapsed heartbeat freezes an entity but never removes it; removal happens
// only on explicit disconnect.
func (h *Hub) RunSimulation(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.TickRate))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			if dt <= 0 {
				dt = 1.0 / float64(h.cfg.TickRate)
			}
			last = now

			started := time.Now()
			h.advance(now, dt)
			h.tick.Add(1)
			h.telemetry.RecordTickDuration(time.Since(started))
		}
	}
}

// RunBroadcast drives the full snapshot fan-out until stop closes.
func (h *Hub) RunBroadcast(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.BroadcastRate))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			h.BroadcastFull(now)
		}
	}
}

// RunFastPath drives the low-latency self snapshot until stop closes. It is
// deliberately an independent ticker: its payload must stay small and its
// cadence must not couple to the full broadcast.
func (h *Hub) RunFastPath(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.FastPathRate))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			h.BroadcastFast(now)
		}
	}
}

// DiagnosticsSnapshot exposes per-connection heartbeat data plus telemetry
// counters for the diagnostics endpoint.
func (h *Hub) DiagnosticsSnapshot() DiagnosticsReport {
	h.mu.Lock()
	report := DiagnosticsReport{
		Players:    make([]DiagnosticsEntity, 0, h.registry.Len()),
		Spectators: 0,
		Contacts:   h.collisions.ContactCount(),
		Clusters:   len(h.clusters.Cached().Clusters),
	}
	for _, state := range h.registry.All() {
		report.Players = append(report.Players, DiagnosticsEntity{
			ID:            state.ID,
			LastHeartbeat: state.lastHeartbeat.UnixMilli(),
			RTTMillis:     state.lastRTT.Milliseconds(),
		})
	}
	for _, sess := range h.sessions {
		if sess.role == RoleSpectator {
			report.Spectators++
		}
	}
	h.mu.Unlock()

	report.Tick = h.tick.Load()
	report.Telemetry = h.telemetry.Snapshot()
	return report
}

// DiagnosticsEntity is one row of the diagnostics endpoint.
type DiagnosticsEntity struct {
	ID            string `json:"id"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
}

// DiagnosticsReport aggregates hub state for operators.
type DiagnosticsReport struct {
	Tick       uint64              `json:"tick"`
	Players    []DiagnosticsEntity `json:"players"`
	Spectators int                 `json:"spectators"`
	Contacts   int                 `json:"contacts"`
	Clusters   int                 `json:"clusters"`
	Telemetry  telemetrySnapshot   `json:"telemetry"`
}
