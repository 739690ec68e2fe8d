package server

import (
	"math"
	"time"
)

func clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}

// clampMagnitude scales the vector down to length max, leaving shorter
// vectors untouched.
func clampMagnitude(x, y, max float64) (float64, float64) {
	length := math.Hypot(x, y)
	if length <= max || length == 0 {
		return x, y
	}
	scale := max / length
	return x * scale, y * scale
}

// nearestNeighbor returns the closest live entity other than self, or nil
// when self is the only live entity.
func nearestNeighbor(self *entityState, states []*entityState, now time.Time, timeout time.Duration) (*entityState, float64) {
	var nearest *entityState
	best := math.Inf(1)
	for _, other := range states {
		if other == self || other.stale(now, timeout) {
			continue
		}
		dist := math.Hypot(other.X-self.X, other.Y-self.Y)
		if dist < best {
			best = dist
			nearest = other
		}
	}
	return nearest, best
}

// applyGravity accelerates the entity toward its nearest live neighbor and
// caches the direction and distance for downstream consumers. The cache is
// refreshed even when the resulting acceleration is zero; with no neighbor
// the distance is cached as +Inf and the direction as zero.
func applyGravity(state *entityState, states []*entityState, now time.Time, dt float64, cfg Config) {
	nearest, dist := nearestNeighbor(state, states, now, cfg.HeartbeatTimeout)
	if nearest == nil {
		state.gravity = GravityVector{Dist: math.Inf(1)}
		return
	}

	var dirX, dirY float64
	if dist > 0 {
		dirX = (nearest.X - state.X) / dist
		dirY = (nearest.Y - state.Y) / dist
	}
	state.gravity = GravityVector{DX: dirX, DY: dirY, Dist: dist}

	effective := math.Max(dist, cfg.GravityMinDist)
	accel := cfg.GravityConstant * nearest.Mass / (effective * effective)
	if accel > cfg.GravityMaxAccel {
		accel = cfg.GravityMaxAccel
	}
	accel *= cfg.GravityDamping

	state.VX += accel * dirX * dt
	state.VY += accel * dirY * dt
}

// followIntent exponentially smooths the velocity toward the clamped
// desired velocity so direction changes feel responsive without snapping.
func followIntent(state *entityState, cfg Config) {
	targetX, targetY := clampMagnitude(state.desiredVX, state.desiredVY, cfg.MaxSpeed)
	state.VX += (targetX - state.VX) * cfg.IntentSmoothing
	state.VY += (targetY - state.VY) * cfg.IntentSmoothing
}

// integrate advances the position and clamps it into world bounds; there is
// no wraparound, entities stop at the edge.
func integrate(state *entityState, dt float64, cfg Config) {
	state.VX, state.VY = clampMagnitude(state.VX, state.VY, cfg.MaxSpeed)
	state.X = clamp(state.X+state.VX*dt, 0, cfg.WorldWidth)
	state.Y = clamp(state.Y+state.VY*dt, 0, cfg.WorldHeight)
}

// stepEntities runs one fixed-Δt physics tick over every entity. Entities
// with a stale heartbeat are frozen in place for the tick but keep their
// registry row; removal only happens on explicit disconnect.
func stepEntities(states []*entityState, now time.Time, dt float64, cfg Config) {
	for _, state := range states {
		if state.stale(now, cfg.HeartbeatTimeout) {
			continue
		}
		applyGravity(state, states, now, dt, cfg)
		followIntent(state, cfg)
		integrate(state, dt, cfg)
	}
}
