package server

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"intersection/server/logging"
)

// recordingConn captures frames instead of writing to a socket.
type recordingConn struct {
	mu        sync.Mutex
	frames    [][]byte
	failWrite bool
	closed    bool
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errors.New("write failed")
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	c.frames = append(c.frames, frame)
	return nil
}

func (c *recordingConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// framesByType decodes every captured frame and groups it by message type.
func (c *recordingConn) framesByType(t *testing.T) map[string][]json.RawMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]json.RawMessage)
	for _, frame := range c.frames {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(frame, &head); err != nil {
			t.Fatalf("undecodable frame %q: %v", frame, err)
		}
		out[head.Type] = append(out[head.Type], json.RawMessage(frame))
	}
	return out
}

func newTestHub() *Hub {
	return NewHub(DefaultConfig(), logging.NopPublisher())
}

func TestConnectAssignsUniqueIDsAndInitialSlots(t *testing.T) {
	hub := newTestHub()

	first, init := hub.Connect(RolePlayer, &recordingConn{})
	second, _ := hub.Connect(RoleSpectator, &recordingConn{})

	if first.ID() == second.ID() {
		t.Fatalf("connection ids must be unique, both %q", first.ID())
	}
	if first.Role() != RolePlayer || second.Role() != RoleSpectator {
		t.Fatalf("roles not preserved: %v %v", first.Role(), second.Role())
	}
	if init.Type != TypeNoiseSlotsInit {
		t.Fatalf("init message type wrong: %q", init.Type)
	}
	if len(init.Slots) != hub.Config().NoiseSlotCount {
		t.Fatalf("init slot count wrong: %d", len(init.Slots))
	}
	for i, ids := range init.Slots {
		if ids == nil {
			t.Fatalf("init slot %d must not be nil", i)
		}
	}
}

func TestRespawnCreatesEntityInsideWorld(t *testing.T) {
	hub := newTestHub()
	cfg := hub.Config()
	sess, _ := hub.Connect(RolePlayer, &recordingConn{})

	welcome, ok := hub.Respawn(sess.ID())
	if !ok {
		t.Fatalf("player respawn should succeed")
	}
	if welcome.Type != TypeWelcome || welcome.Ver != ProtocolVersion {
		t.Fatalf("welcome envelope wrong: %+v", welcome)
	}
	if welcome.Self.ID != sess.ID() {
		t.Fatalf("welcome self id wrong: %q", welcome.Self.ID)
	}
	if welcome.Self.X < 0 || welcome.Self.X > cfg.WorldWidth ||
		welcome.Self.Y < 0 || welcome.Self.Y > cfg.WorldHeight {
		t.Fatalf("spawn outside world: (%v,%v)", welcome.Self.X, welcome.Self.Y)
	}
	if welcome.Self.Radius != cfg.DefaultRadius || welcome.Self.Mass != cfg.DefaultMass {
		t.Fatalf("spawned entity physical params wrong: %+v", welcome.Self)
	}
	if welcome.World.Width != cfg.WorldWidth || welcome.World.Height != cfg.WorldHeight {
		t.Fatalf("welcome world bounds wrong: %+v", welcome.World)
	}

	if _, ok := hub.registry.Get(sess.ID()); !ok {
		t.Fatalf("respawn should register the entity")
	}
}

func TestRespawnSpectatorIsNoOp(t *testing.T) {
	hub := newTestHub()
	sess, _ := hub.Connect(RoleSpectator, &recordingConn{})

	if _, ok := hub.Respawn(sess.ID()); ok {
		t.Fatalf("spectator respawn must fail")
	}
	if hub.registry.Len() != 0 {
		t.Fatalf("spectator respawn must not create an entity")
	}
}

func TestRespawnPreservesDisplayMetadata(t *testing.T) {
	hub := newTestHub()
	sess, _ := hub.Connect(RolePlayer, &recordingConn{})

	hub.Respawn(sess.ID())
	if !hub.SetDisplay(sess.ID(), "quark", 1920, 1080) {
		t.Fatalf("SetDisplay should succeed for a live entity")
	}
	firstHue := mustGet(t, hub, sess.ID()).Hue

	welcome, ok := hub.Respawn(sess.ID())
	if !ok {
		t.Fatalf("re-respawn should succeed")
	}
	if welcome.Self.Name != "quark" {
		t.Fatalf("name lost on re-respawn: %q", welcome.Self.Name)
	}
	if welcome.Self.ScreenWidth != 1920 || welcome.Self.ScreenHeight != 1080 {
		t.Fatalf("screen metadata lost: %vx%v", welcome.Self.ScreenWidth, welcome.Self.ScreenHeight)
	}
	if welcome.Self.Hue != firstHue {
		t.Fatalf("hue should be stable across respawns: %v vs %v", welcome.Self.Hue, firstHue)
	}
}

func TestResizeUpdatesScreenDimensions(t *testing.T) {
	hub := newTestHub()
	sess, _ := hub.Connect(RolePlayer, &recordingConn{})
	hub.Respawn(sess.ID())

	if !hub.Resize(sess.ID(), 800, 600) {
		t.Fatalf("resize should succeed")
	}
	state := mustGet(t, hub, sess.ID())
	if state.ScreenWidth != 800 || state.ScreenHeight != 600 {
		t.Fatalf("resize not stored: %vx%v", state.ScreenWidth, state.ScreenHeight)
	}

	// Zero dimensions keep the previous values.
	hub.Resize(sess.ID(), 0, 0)
	state = mustGet(t, hub, sess.ID())
	if state.ScreenWidth != 800 {
		t.Fatalf("zero resize should be ignored, got %v", state.ScreenWidth)
	}

	if hub.Resize("conn-missing", 800, 600) {
		t.Fatalf("resize without an entity should report false")
	}
}

func TestUpdateIntentClampsAndRefreshesHeartbeat(t *testing.T) {
	hub := newTestHub()
	cfg := hub.Config()
	sess, _ := hub.Connect(RolePlayer, &recordingConn{})
	hub.Respawn(sess.ID())

	state := mustGet(t, hub, sess.ID())
	state.lastHeartbeat = time.Now().Add(-time.Hour)
	posX, posY := state.X, state.Y

	if !hub.UpdateIntent(sess.ID(), cfg.MaxSpeed*10, 0) {
		t.Fatalf("intent update should succeed")
	}
	if state.desiredVX > cfg.MaxSpeed+1e-9 {
		t.Fatalf("desired velocity not clamped: %v", state.desiredVX)
	}
	if state.X != posX || state.Y != posY {
		t.Fatalf("intent must never move the entity directly")
	}
	if time.Since(state.lastHeartbeat) > time.Second {
		t.Fatalf("intent should refresh the heartbeat")
	}

	if hub.UpdateIntent("conn-missing", 1, 1) {
		t.Fatalf("intent without an entity should report false")
	}
}

func TestUpdateHeartbeatComputesRTT(t *testing.T) {
	hub := newTestHub()
	sess, _ := hub.Connect(RolePlayer, &recordingConn{})
	hub.Respawn(sess.ID())

	receivedAt := time.Now()
	sentAt := receivedAt.Add(-40 * time.Millisecond).UnixMilli()
	rtt, ok := hub.UpdateHeartbeat(sess.ID(), receivedAt, sentAt)
	if !ok {
		t.Fatalf("heartbeat should succeed for a live entity")
	}
	if rtt < 30*time.Millisecond || rtt > 50*time.Millisecond {
		t.Fatalf("rtt out of range: %v", rtt)
	}

	state := mustGet(t, hub, sess.ID())
	if !state.lastHeartbeat.Equal(receivedAt) {
		t.Fatalf("heartbeat time not stored")
	}

	// A client clock ahead of the server clamps to zero rather than going
	// negative.
	future := receivedAt.Add(2 * time.Second).UnixMilli()
	rtt, _ = hub.UpdateHeartbeat(sess.ID(), receivedAt, future)
	if rtt < 0 {
		t.Fatalf("rtt must never be negative, got %v", rtt)
	}

	if _, ok := hub.UpdateHeartbeat("conn-missing", receivedAt, sentAt); ok {
		t.Fatalf("heartbeat without an entity should report false")
	}
}

func TestNoiseSlotMutationAndRejection(t *testing.T) {
	hub := newTestHub()
	sess, _ := hub.Connect(RolePlayer, &recordingConn{})

	slots, ok := hub.SetNoiseSlot(sess.ID(), 2, []string{"osc-a"})
	if !ok || len(slots[2]) != 1 || slots[2][0] != "osc-a" {
		t.Fatalf("slot set failed: ok=%v slots=%v", ok, slots)
	}

	if _, ok := hub.SetNoiseSlot(sess.ID(), 99, []string{"x"}); ok {
		t.Fatalf("out-of-range set must be rejected")
	}

	slots, ok = hub.ClearNoiseSlot(sess.ID(), 2)
	if !ok || len(slots[2]) != 0 {
		t.Fatalf("slot clear failed: ok=%v slots=%v", ok, slots)
	}
	if _, ok := hub.ClearNoiseSlot(sess.ID(), -1); ok {
		t.Fatalf("out-of-range clear must be rejected")
	}
}

func TestDisconnectRemovesEverythingOnce(t *testing.T) {
	hub := newTestHub()
	conn := &recordingConn{}
	sess, _ := hub.Connect(RolePlayer, conn)
	other, _ := hub.Connect(RolePlayer, &recordingConn{})
	hub.Respawn(sess.ID())
	hub.Respawn(other.ID())

	// Force a contact so disconnect has records to purge.
	a := mustGet(t, hub, sess.ID())
	b := mustGet(t, hub, other.ID())
	a.X, a.Y = 100, 100
	b.X, b.Y = 150, 100
	hub.collisions.Detect(hub.registry.All(), time.Now())
	if hub.collisions.ContactCount() != 1 {
		t.Fatalf("expected one contact record, got %d", hub.collisions.ContactCount())
	}

	if !hub.Disconnect(sess.ID()) {
		t.Fatalf("first disconnect should report true")
	}
	if !conn.closed {
		t.Fatalf("disconnect should close the socket")
	}
	if _, ok := hub.registry.Get(sess.ID()); ok {
		t.Fatalf("entity should be removed")
	}
	if hub.collisions.ContactCount() != 0 {
		t.Fatalf("contact records should be purged, got %d", hub.collisions.ContactCount())
	}
	if _, ok := hub.registry.Get(other.ID()); !ok {
		t.Fatalf("other entity must survive")
	}

	if hub.Disconnect(sess.ID()) {
		t.Fatalf("double disconnect must be a no-op")
	}
}

func TestDiagnosticsSnapshotCounts(t *testing.T) {
	hub := newTestHub()
	player, _ := hub.Connect(RolePlayer, &recordingConn{})
	hub.Connect(RoleSpectator, &recordingConn{})
	hub.Respawn(player.ID())

	report := hub.DiagnosticsSnapshot()
	if len(report.Players) != 1 {
		t.Fatalf("expected 1 player row, got %d", len(report.Players))
	}
	if report.Spectators != 1 {
		t.Fatalf("expected 1 spectator, got %d", report.Spectators)
	}
	if report.Players[0].ID != player.ID() {
		t.Fatalf("player row id wrong: %q", report.Players[0].ID)
	}
}

func TestParseRole(t *testing.T) {
	if ParseRole("spectator") != RoleSpectator {
		t.Fatalf("spectator query should map to spectator")
	}
	for _, raw := range []string{"", "player", "admin", "SPECTATOR"} {
		if ParseRole(raw) != RolePlayer {
			t.Fatalf("%q should default to player", raw)
		}
	}
}

func mustGet(t *testing.T, hub *Hub, id string) *entityState {
	t.Helper()
	state, ok := hub.registry.Get(id)
	if !ok {
		t.Fatalf("entity %q not in registry", id)
	}
	return state
}
