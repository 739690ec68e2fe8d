package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"intersection/server"
)

// Tuning is the optional on-disk override file for physics and scheduling
// constants. Zero-valued fields leave the compiled-in defaults alone, so a
// tuning file only needs to name what it changes.
type Tuning struct {
	WorldWidth  float64 `yaml:"world_width"`
	WorldHeight float64 `yaml:"world_height"`

	MaxSpeed        float64 `yaml:"max_speed"`
	IntentSmoothing float64 `yaml:"intent_smoothing"`
	GravityConstant float64 `yaml:"gravity_constant"`
	GravityMinDist  float64 `yaml:"gravity_min_dist"`
	GravityMaxAccel float64 `yaml:"gravity_max_accel"`
	GravityDamping  float64 `yaml:"gravity_damping"`
	DefaultRadius   float64 `yaml:"default_radius"`
	DefaultMass     float64 `yaml:"default_mass"`

	ClusterRadius   float64 `yaml:"cluster_radius"`
	CollisionDist   float64 `yaml:"collision_dist"`
	EventCooldownMs int     `yaml:"event_cooldown_ms"`

	TickRateHz           int `yaml:"tick_rate_hz"`
	BroadcastRateHz      int `yaml:"broadcast_rate_hz"`
	FastPathRateHz       int `yaml:"fastpath_rate_hz"`
	ClusterMinIntervalMs int `yaml:"cluster_min_interval_ms"`
	HeartbeatTimeoutMs   int `yaml:"heartbeat_timeout_ms"`
	NoiseSlotCount       int `yaml:"noise_slots"`
}

// Load reads a tuning file. A missing file is the caller's error to
// interpret; a present but unparsable file is always an error.
func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return t, nil
}

// Apply overlays the tuning's non-zero fields onto cfg.
func (t Tuning) Apply(cfg server.Config) server.Config {
	if t.WorldWidth > 0 {
		cfg.WorldWidth = t.WorldWidth
	}
	if t.WorldHeight > 0 {
		cfg.WorldHeight = t.WorldHeight
	}
	if t.MaxSpeed > 0 {
		cfg.MaxSpeed = t.MaxSpeed
	}
	if t.IntentSmoothing > 0 {
		cfg.IntentSmoothing = t.IntentSmoothing
	}
	if t.GravityConstant > 0 {
		cfg.GravityConstant = t.GravityConstant
	}
	if t.GravityMinDist > 0 {
		cfg.GravityMinDist = t.GravityMinDist
	}
	if t.GravityMaxAccel > 0 {
		cfg.GravityMaxAccel = t.GravityMaxAccel
	}
	if t.GravityDamping > 0 {
		cfg.GravityDamping = t.GravityDamping
	}
	if t.DefaultRadius > 0 {
		cfg.DefaultRadius = t.DefaultRadius
	}
	if t.DefaultMass > 0 {
		cfg.DefaultMass = t.DefaultMass
	}
	if t.ClusterRadius > 0 {
		cfg.ClusterRadius = t.ClusterRadius
	}
	if t.CollisionDist > 0 {
		cfg.CollisionDist = t.CollisionDist
	}
	if t.EventCooldownMs > 0 {
		cfg.EventCooldown = time.Duration(t.EventCooldownMs) * time.Millisecond
	}
	if t.TickRateHz > 0 {
		cfg.TickRate = t.TickRateHz
	}
	if t.BroadcastRateHz > 0 {
		cfg.BroadcastRate = t.BroadcastRateHz
	}
	if t.FastPathRateHz > 0 {
		cfg.FastPathRate = t.FastPathRateHz
	}
	if t.ClusterMinIntervalMs > 0 {
		cfg.ClusterMinInterval = time.Duration(t.ClusterMinIntervalMs) * time.Millisecond
	}
	if t.HeartbeatTimeoutMs > 0 {
		cfg.HeartbeatTimeout = time.Duration(t.HeartbeatTimeoutMs) * time.Millisecond
	}
	if t.NoiseSlotCount > 0 {
		cfg.NoiseSlotCount = t.NoiseSlotCount
	}
	return cfg
}
