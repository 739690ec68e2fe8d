package server

import (
	"math"
	"time"
)

// Entity is the wire-visible simulated body for one player connection.
type Entity struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"` // cosmetic depth, never integrated
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Radius float64 `json:"radius"`
	Mass   float64 `json:"mass"`
	Hue    float64 `json:"hue"`

	ScreenWidth  float64 `json:"screenWidth,omitempty"`
	ScreenHeight float64 `json:"screenHeight,omitempty"`
}

// GravityVector is the cached pull toward the nearest other entity, kept on
// the entity so renderers and the audio layer can consume it without
// recomputing neighbor distances. Dist is +Inf when no other entity is live.
type GravityVector struct {
	DX   float64
	DY   float64
	Dist float64
}

// IsInfinite reports whether the vector was cached with no neighbor present.
func (g GravityVector) IsInfinite() bool {
	return math.IsInf(g.Dist, 1)
}

// payload converts the vector into a JSON-safe wire shape; encoding/json
// rejects +Inf, so the no-neighbor case travels as an explicit flag.
func (g GravityVector) payload() GravityPayload {
	p := GravityPayload{DX: g.DX, DY: g.DY, Dist: g.Dist}
	if g.IsInfinite() {
		p.Dist = 0
		p.Infinite = true
	}
	return p
}

type GravityPayload struct {
	DX       float64 `json:"dx"`
	DY       float64 `json:"dy"`
	Dist     float64 `json:"dist"`
	Infinite bool    `json:"infinite,omitempty"`
}

type entityState struct {
	Entity
	desiredVX     float64
	desiredVY     float64
	gravity       GravityVector
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

func (s *entityState) snapshot() Entity {
	return s.Entity
}

// stale reports whether the entity's heartbeat has lapsed. Stale entities
// are frozen by the integrator, not removed.
func (s *entityState) stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.lastHeartbeat) > timeout
}
