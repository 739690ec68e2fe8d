package server

import "time"

// Config captures every tunable the simulation and its schedulers read.
// Defaults describe one internally consistent world: a non-wrapped plane
// where entities stop at the edges.
type Config struct {
	WorldWidth  float64 `json:"width"`
	WorldHeight float64 `json:"height"`

	// Physics.
	MaxSpeed         float64 // hard cap on |velocity|, units/second
	IntentSmoothing  float64 // per-tick blend toward the desired velocity
	GravityConstant  float64
	GravityMinDist   float64 // distance floor for the inverse-square law
	GravityMaxAccel  float64
	GravityDamping   float64 // keeps gravity subordinate to player intent
	DefaultRadius    float64
	DefaultMass      float64
	ClusterRadius    float64
	CollisionDist    float64
	CollisionVisualR float64 // radius reported on collision events
	EventCooldown    time.Duration

	// Scheduling.
	TickRate           int // physics ticks per second
	BroadcastRate      int // full snapshot broadcasts per second
	FastPathRate       int // self fast-path sends per second
	ClusterMinInterval time.Duration

	// Sessions.
	HeartbeatTimeout time.Duration

	NoiseSlotCount int
}

// DefaultConfig returns the reference configuration. Callers override
// individual fields from the environment or a tuning file before handing
// the config to NewHub.
func DefaultConfig() Config {
	return Config{
		WorldWidth:  1600,
		WorldHeight: 900,

		MaxSpeed:         280,
		IntentSmoothing:  0.02,
		GravityConstant:  24000,
		GravityMinDist:   40,
		GravityMaxAccel:  180,
		GravityDamping:   0.6,
		DefaultRadius:    14,
		DefaultMass:      10,
		ClusterRadius:    150,
		CollisionDist:    80,
		CollisionVisualR: 80,
		EventCooldown:    600 * time.Millisecond,

		TickRate:           60,
		BroadcastRate:      30,
		FastPathRate:       30,
		ClusterMinInterval: 400 * time.Millisecond,

		HeartbeatTimeout: 6 * time.Second,

		NoiseSlotCount: 8,
	}
}

// normalized applies defaults for zero or nonsensical values so a partially
// filled config cannot stall a ticker or divide by zero.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.WorldWidth <= 0 {
		c.WorldWidth = def.WorldWidth
	}
	if c.WorldHeight <= 0 {
		c.WorldHeight = def.WorldHeight
	}
	if c.MaxSpeed <= 0 {
		c.MaxSpeed = def.MaxSpeed
	}
	if c.IntentSmoothing <= 0 || c.IntentSmoothing > 1 {
		c.IntentSmoothing = def.IntentSmoothing
	}
	if c.GravityConstant <= 0 {
		c.GravityConstant = def.GravityConstant
	}
	if c.GravityMinDist <= 0 {
		c.GravityMinDist = def.GravityMinDist
	}
	if c.GravityMaxAccel <= 0 {
		c.GravityMaxAccel = def.GravityMaxAccel
	}
	if c.GravityDamping <= 0 || c.GravityDamping > 1 {
		c.GravityDamping = def.GravityDamping
	}
	if c.DefaultRadius <= 0 {
		c.DefaultRadius = def.DefaultRadius
	}
	if c.DefaultMass <= 0 {
		c.DefaultMass = def.DefaultMass
	}
	if c.ClusterRadius <= 0 {
		c.ClusterRadius = def.ClusterRadius
	}
	if c.CollisionDist <= 0 {
		c.CollisionDist = def.CollisionDist
	}
	if c.CollisionVisualR <= 0 {
		c.CollisionVisualR = c.CollisionDist
	}
	if c.EventCooldown <= 0 {
		c.EventCooldown = def.EventCooldown
	}
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.BroadcastRate <= 0 {
		c.BroadcastRate = def.BroadcastRate
	}
	if c.FastPathRate <= 0 {
		c.FastPathRate = def.FastPathRate
	}
	if c.ClusterMinInterval <= 0 {
		c.ClusterMinInterval = def.ClusterMinInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.NoiseSlotCount <= 0 {
		c.NoiseSlotCount = def.NoiseSlotCount
	}
	return c
}
