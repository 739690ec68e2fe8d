package server

import (
	"math"
	"testing"
	"time"
)

func testConfig() Config {
	return DefaultConfig()
}

func liveEntity(id string, x, y float64, now time.Time) *entityState {
	return &entityState{
		Entity:        Entity{ID: id, X: x, Y: y, Radius: 14, Mass: 10},
		gravity:       GravityVector{Dist: math.Inf(1)},
		lastHeartbeat: now,
	}
}

func TestClampMagnitude(t *testing.T) {
	x, y := clampMagnitude(300, 400, 100)
	if got := math.Hypot(x, y); math.Abs(got-100) > 1e-9 {
		t.Fatalf("expected clamped length 100, got %v", got)
	}
	if x <= 0 || y <= 0 || math.Abs(y/x-400.0/300.0) > 1e-9 {
		t.Fatalf("direction not preserved: (%v,%v)", x, y)
	}

	x, y = clampMagnitude(3, 4, 100)
	if x != 3 || y != 4 {
		t.Fatalf("short vector should be untouched, got (%v,%v)", x, y)
	}

	x, y = clampMagnitude(0, 0, 100)
	if x != 0 || y != 0 {
		t.Fatalf("zero vector should stay zero, got (%v,%v)", x, y)
	}
}

func TestGravityWithNoNeighborCachesInfinity(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	solo := liveEntity("a", 100, 100, now)
	solo.VX, solo.VY = 5, -3

	applyGravity(solo, []*entityState{solo}, now, 1.0/float64(cfg.TickRate), cfg)

	if !solo.gravity.IsInfinite() {
		t.Fatalf("expected infinite gravity distance, got %v", solo.gravity.Dist)
	}
	if solo.gravity.DX != 0 || solo.gravity.DY != 0 {
		t.Fatalf("expected zero direction, got (%v,%v)", solo.gravity.DX, solo.gravity.DY)
	}
	if solo.VX != 5 || solo.VY != -3 {
		t.Fatalf("velocity must be unchanged by gravity, got (%v,%v)", solo.VX, solo.VY)
	}
}

func TestGravityCachesDirectionAndDistance(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	a := liveEntity("a", 100, 100, now)
	b := liveEntity("b", 200, 100, now)

	applyGravity(a, []*entityState{a, b}, now, 1.0/float64(cfg.TickRate), cfg)

	if a.gravity.Dist != 100 {
		t.Fatalf("expected cached distance 100, got %v", a.gravity.Dist)
	}
	if a.gravity.DX != 1 || a.gravity.DY != 0 {
		t.Fatalf("expected unit direction (1,0), got (%v,%v)", a.gravity.DX, a.gravity.DY)
	}
	if a.VX <= 0 {
		t.Fatalf("expected acceleration toward the neighbor, vx=%v", a.VX)
	}
}

// gravityAccel measures the velocity change applyGravity produces on a
// fresh entity at the given separation.
func gravityAccel(t *testing.T, dist float64, cfg Config) float64 {
	t.Helper()
	now := time.Now()
	a := liveEntity("a", 0, 0, now)
	b := liveEntity("b", dist, 0, now)
	dt := 1.0
	applyGravity(a, []*entityState{a, b}, now, dt, cfg)
	return math.Hypot(a.VX, a.VY)
}

func TestGravityMonotonicInDistance(t *testing.T) {
	cfg := testConfig()
	distances := []float64{10, 30, 50, 100, 200, 400, 800}
	prev := math.Inf(1)
	for _, dist := range distances {
		accel := gravityAccel(t, dist, cfg)
		if accel > prev+1e-9 {
			t.Fatalf("acceleration increased with distance at %v: %v > %v", dist, accel, prev)
		}
		prev = accel
	}

	// Inside the distance floor every separation clamps to the same pull.
	near := gravityAccel(t, 5, cfg)
	floor := gravityAccel(t, cfg.GravityMinDist, cfg)
	if math.Abs(near-floor) > 1e-9 {
		t.Fatalf("expected clamped acceleration below minDist: %v vs %v", near, floor)
	}

	// The accel cap holds even with an extreme mass.
	heavy := cfg
	heavy.GravityConstant *= 1e6
	capped := gravityAccel(t, heavy.GravityMinDist, heavy)
	if capped > heavy.GravityMaxAccel*heavy.GravityDamping+1e-9 {
		t.Fatalf("acceleration exceeded cap: %v", capped)
	}
}

func TestIntegrateClampsSpeedAndBounds(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	state := liveEntity("a", cfg.WorldWidth-1, 1, now)
	state.VX = cfg.MaxSpeed * 10
	state.VY = -cfg.MaxSpeed * 10

	integrate(state, 1.0, cfg)

	if speed := math.Hypot(state.VX, state.VY); speed > cfg.MaxSpeed+1e-9 {
		t.Fatalf("speed cap violated: %v", speed)
	}
	if state.X > cfg.WorldWidth || state.X < 0 || state.Y > cfg.WorldHeight || state.Y < 0 {
		t.Fatalf("position escaped bounds: (%v,%v)", state.X, state.Y)
	}
	if state.X != cfg.WorldWidth {
		t.Fatalf("expected clamp at right edge, got %v", state.X)
	}
	if state.Y != 0 {
		t.Fatalf("expected clamp at top edge, got %v", state.Y)
	}
}

func TestFollowIntentConvergesOnDesiredVelocity(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	state := liveEntity("a", 100, 100, now)
	state.desiredVX = 100
	state.desiredVY = 0

	for i := 0; i < 600; i++ {
		followIntent(state, cfg)
	}
	if math.Abs(state.VX-100) > 1 {
		t.Fatalf("velocity did not converge on intent: %v", state.VX)
	}

	state.desiredVX = cfg.MaxSpeed * 5
	for i := 0; i < 600; i++ {
		followIntent(state, cfg)
	}
	if state.VX > cfg.MaxSpeed+1e-6 {
		t.Fatalf("intent clamp failed: %v", state.VX)
	}
}

func TestStepEntitiesFreezesStaleEntities(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	fresh := liveEntity("fresh", 100, 100, now)
	fresh.desiredVX = 100

	stale := liveEntity("stale", 500, 500, now.Add(-cfg.HeartbeatTimeout-time.Second))
	stale.VX, stale.VY = 50, 50
	staleX, staleY := stale.X, stale.Y

	dt := 1.0 / float64(cfg.TickRate)
	for i := 0; i < cfg.TickRate; i++ {
		stepEntities([]*entityState{fresh, stale}, now, dt, cfg)
	}

	if stale.X != staleX || stale.Y != staleY {
		t.Fatalf("stale entity moved: (%v,%v)", stale.X, stale.Y)
	}
	if stale.VX != 50 || stale.VY != 50 {
		t.Fatalf("stale entity velocity touched: (%v,%v)", stale.VX, stale.VY)
	}
	if fresh.X == 100 {
		t.Fatalf("fresh entity should have moved")
	}
}

func TestStepEntitiesIgnoresStaleNeighborsForGravity(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	a := liveEntity("a", 100, 100, now)
	ghost := liveEntity("ghost", 150, 100, now.Add(-cfg.HeartbeatTimeout-time.Second))

	stepEntities([]*entityState{a, ghost}, now, 1.0/float64(cfg.TickRate), cfg)

	if !a.gravity.IsInfinite() {
		t.Fatalf("stale neighbor must not attract, cached dist %v", a.gravity.Dist)
	}
}
