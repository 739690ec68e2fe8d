package server

import (
	"math"
	"time"
)

// pairKey identifies an unordered entity pair; A is always the smaller id.
type pairKey struct {
	A string
	B string
}

func makePairKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{A: a, B: b}
}

// contactRecord remembers that a pair has collided. Records deliberately
// survive separation: they are event memory for the cooldown, not a live
// overlap flag. They are only purged when either member disconnects.
type contactRecord struct {
	created   time.Time
	lastEvent time.Time
}

// CollisionLine is a standing link between two currently touching entities,
// kept in every full broadcast for persistent visualization.
type CollisionLine struct {
	A  string  `json:"a"`
	B  string  `json:"b"`
	AX float64 `json:"ax"`
	AY float64 `json:"ay"`
	BX float64 `json:"bx"`
	BY float64 `json:"by"`
}

// CollisionEvent is a discrete impact, emitted at most once per cooldown
// window per pair and delivered exactly once across all recipients of a
// broadcast firing.
type CollisionEvent struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Time   int64   `json:"time"`
}

// CollisionDetector runs the pairwise distance scan and throttles discrete
// events through per-pair contact records.
type CollisionDetector struct {
	threshold    float64
	visualRadius float64
	cooldown     time.Duration

	contacts map[pairKey]*contactRecord
	pending  []CollisionEvent

	lastLines     []CollisionLine
	lastColliding map[string]bool
}

func NewCollisionDetector(threshold, visualRadius float64, cooldown time.Duration) *CollisionDetector {
	return &CollisionDetector{
		threshold:     threshold,
		visualRadius:  visualRadius,
		cooldown:      cooldown,
		contacts:      make(map[pairKey]*contactRecord),
		lastColliding: make(map[string]bool),
	}
}

// Detect scans every pair, refreshes the standing lines and per-entity
// contact flags, and queues new events subject to the cooldown.
func (d *CollisionDetector) Detect(states []*entityState, now time.Time) []CollisionLine {
	lines := make([]CollisionLine, 0)
	colliding := make(map[string]bool, len(states))

	for i := 0; i < len(states); i++ {
		for j := i + 1; j < len(states); j++ {
			a, b := states[i], states[j]
			dist := math.Hypot(b.X-a.X, b.Y-a.Y)
			if dist > d.threshold {
				continue
			}

			lines = append(lines, CollisionLine{
				A: a.ID, B: b.ID,
				AX: a.X, AY: a.Y,
				BX: b.X, BY: b.Y,
			})
			colliding[a.ID] = true
			colliding[b.ID] = true

			key := makePairKey(a.ID, b.ID)
			record, ok := d.contacts[key]
			if !ok {
				d.contacts[key] = &contactRecord{created: now, lastEvent: now}
				d.queueEvent(a, b, now)
				continue
			}
			if now.Sub(record.lastEvent) > d.cooldown {
				record.lastEvent = now
				d.queueEvent(a, b, now)
			}
		}
	}

	d.lastLines = lines
	d.lastColliding = colliding
	return lines
}

func (d *CollisionDetector) queueEvent(a, b *entityState, now time.Time) {
	d.pending = append(d.pending, CollisionEvent{
		A:      a.ID,
		B:      b.ID,
		X:      (a.X + b.X) / 2,
		Y:      (a.Y + b.Y) / 2,
		Radius: d.visualRadius,
		Time:   now.UnixMilli(),
	})
}

// DrainEvents hands out the queued events and clears the queue. The full
// broadcast calls this once per firing so every recipient of that firing
// sees the same batch.
func (d *CollisionDetector) DrainEvents() []CollisionEvent {
	events := d.pending
	d.pending = nil
	return events
}

// Lines returns the standing lines from the most recent scan.
func (d *CollisionDetector) Lines() []CollisionLine {
	return d.lastLines
}

// IsColliding reports whether the entity was touching anyone at the most
// recent scan.
func (d *CollisionDetector) IsColliding(id string) bool {
	return d.lastColliding[id]
}

// RemoveEntity purges every contact record involving id. Pending events
// referencing the entity stay queued; they describe an impact that really
// happened.
func (d *CollisionDetector) RemoveEntity(id string) {
	for key := range d.contacts {
		if key.A == id || key.B == id {
			delete(d.contacts, key)
		}
	}
	delete(d.lastColliding, id)
}

// ContactCount reports the number of live contact records, for diagnostics.
func (d *CollisionDetector) ContactCount() int {
	return len(d.contacts)
}
