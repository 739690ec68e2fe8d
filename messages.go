package server

import "encoding/json"

// ProtocolVersion is stamped on every server→client message so clients can
// reject snapshots from an incompatible server build.
const ProtocolVersion = 1

// Message type tags, shared by the broadcast path and the schema tool.
const (
	TypeWelcome          = "welcome"
	TypePlayerMove       = "serverTellPlayerMove"
	TypeLeaderboard      = "leaderboard"
	TypeAudioSelf        = "audioSelf"
	TypeAudioCluster     = "audioCluster"
	TypeAudioGlobal      = "audioGlobal"
	TypeNoiseSlotsInit   = "noiseSlots:init"
	TypeNoiseSlotsUpdate = "noiseSlots:update"
	TypeHeartbeat        = "heartbeat"
	TypeParam            = "param"
)

// WorldInfo tells a client the bounds it should render.
type WorldInfo struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// WelcomeMessage is sent on every (re)spawn.
type WelcomeMessage struct {
	Ver        int        `json:"ver"`
	Type       string     `json:"type"`
	Self       Entity     `json:"self"`
	World      WorldInfo  `json:"world"`
	NoiseSlots [][]string `json:"noiseSlots"`
}

// BroadcastMeta rides along with every serverTellPlayerMove. Full snapshots
// carry collision lines and the drained event batch; the fast path carries
// only the flag, gravity, and contact bit.
type BroadcastMeta struct {
	Fast            bool             `json:"fast,omitempty"`
	Collisions      []CollisionLine  `json:"collisions,omitempty"`
	CollisionEvents []CollisionEvent `json:"collisionEvents,omitempty"`
	Gravity         GravityPayload   `json:"gravity"`
	IsColliding     bool             `json:"isCollidingSelf"`
	Population      int              `json:"population,omitempty"`
}

// StateMessage is the per-recipient snapshot, shaped differently for
// players, spectators, and the fast path.
type StateMessage struct {
	Ver    int           `json:"ver"`
	Type   string        `json:"type"`
	Self   Entity        `json:"self"`
	Others []Entity      `json:"others,omitempty"`
	Meta   BroadcastMeta `json:"meta"`
}

// LeaderboardMessage carries the live population counts.
type LeaderboardMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	Players    int    `json:"players"`
	Spectators int    `json:"spectators"`
}

// AudioSelfMessage feeds the per-player audio mapper with the cached
// gravity vector.
type AudioSelfMessage struct {
	Ver     int            `json:"ver"`
	Type    string         `json:"type"`
	Gravity GravityPayload `json:"gravity"`
}

// AudioClusterMessage is sent to the members of a cluster.
type AudioClusterMessage struct {
	Ver     int         `json:"ver"`
	Type    string      `json:"type"`
	Cluster int         `json:"cluster"`
	Gain    float64     `json:"gain"`
	Chord   []ChordTone `json:"chord"`
}

// AudioGlobalMessage gives spectators the largest cluster's chord without
// per-spectator computation.
type AudioGlobalMessage struct {
	Ver        int         `json:"ver"`
	Type       string      `json:"type"`
	Gain       float64     `json:"gain"`
	Chord      []ChordTone `json:"chord"`
	Population int         `json:"population"`
}

// NoiseSlotsMessage carries the full slot array, both for the initial sync
// and after every mutation.
type NoiseSlotsMessage struct {
	Ver   int        `json:"ver"`
	Type  string     `json:"type"`
	Slots [][]string `json:"slots"`
}

// HeartbeatAckMessage answers a client heartbeat with the measured RTT.
type HeartbeatAckMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

// ParamMessage rebroadcasts an opaque client payload to every connection
// unchanged, bridging external parameter control.
type ParamMessage struct {
	Ver   int             `json:"ver"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ClientMessage is the union of every client→server event. Fields are
// decoded permissively; handlers pick the ones their type uses and ignore
// the rest, so a malformed payload degrades to a no-op.
type ClientMessage struct {
	Type         string          `json:"type"`
	Name         string          `json:"name,omitempty"`
	ScreenWidth  float64         `json:"screenWidth,omitempty"`
	ScreenHeight float64         `json:"screenHeight,omitempty"`
	VX           float64         `json:"vx,omitempty"`
	VY           float64         `json:"vy,omitempty"`
	SentAt       int64           `json:"sentAt,omitempty"`
	Slot         *int            `json:"slot,omitempty"`
	NodeIDs      []string        `json:"nodeIds,omitempty"`
	Value        json.RawMessage `json:"value,omitempty"`
}
