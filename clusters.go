package server

import (
	"math"
	"sort"
	"time"
)

// ChordTone is one note of a cluster's synthesized chord: a pitch value and
// a mixing weight. The audio layer maps these onto synth nodes; the server
// only guarantees the shape and determinism.
type ChordTone struct {
	Value  int     `json:"value"`
	Weight float64 `json:"weight"`
}

// Cluster is a connected component of entities under the clustering radius.
// Clusters are derived data, rebuilt wholesale on every recompute.
type Cluster struct {
	ID        int         `json:"id"`
	Members   []string    `json:"members"`
	CentroidX float64     `json:"cx"`
	CentroidY float64     `json:"cy"`
	Gain      float64     `json:"gain"`
	Chord     []ChordTone `json:"chord"`
}

// ClusterSet is the output of one recompute: the clusters, a reverse index
// from entity id to cluster id, and the id of the largest cluster (-1 when
// the world is empty).
type ClusterSet struct {
	Clusters   []Cluster
	Membership map[string]int
	Largest    int
}

// ClusterDetector rebuilds the proximity components on demand. Recomputing
// is O(n²), so callers run it at UI/audio refresh rates rather than every
// physics tick; a minimum-interval guard absorbs overeager callers.
type ClusterDetector struct {
	radius      float64
	minInterval time.Duration
	lastRun     time.Time
	cached      ClusterSet
}

func NewClusterDetector(radius float64, minInterval time.Duration) *ClusterDetector {
	return &ClusterDetector{
		radius:      radius,
		minInterval: minInterval,
		cached:      ClusterSet{Membership: map[string]int{}, Largest: -1},
	}
}

// Recompute returns the current cluster set, rebuilding it when the guard
// interval has elapsed or force is true. The second return reports whether
// a rebuild actually ran, so callers can gate refresh-driven side effects.
func (d *ClusterDetector) Recompute(states []*entityState, now time.Time, force bool) (ClusterSet, bool) {
	if !force && !d.lastRun.IsZero() && now.Sub(d.lastRun) < d.minInterval {
		return d.cached, false
	}
	d.lastRun = now
	d.cached = buildClusters(states, d.radius)
	return d.cached, true
}

// Cached returns the last computed set without triggering a rebuild.
func (d *ClusterDetector) Cached() ClusterSet {
	return d.cached
}

// buildClusters finds connected components with an iterative stack-based
// flood fill; recursion depth would otherwise scale with cluster size.
func buildClusters(states []*entityState, radius float64) ClusterSet {
	set := ClusterSet{Membership: make(map[string]int, len(states)), Largest: -1}
	if len(states) == 0 {
		return set
	}

	// Stable ordering keeps cluster ids and chords deterministic for a
	// given registry snapshot.
	ordered := make([]*entityState, len(states))
	copy(ordered, states)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	visited := make([]bool, len(ordered))
	largestSize := 0

	for i := range ordered {
		if visited[i] {
			continue
		}

		component := make([]int, 0, 4)
		stack := []int{i}
		visited[i] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, cur)
			for j := range ordered {
				if visited[j] {
					continue
				}
				dist := math.Hypot(ordered[j].X-ordered[cur].X, ordered[j].Y-ordered[cur].Y)
				if dist <= radius {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}

		id := len(set.Clusters)
		cluster := Cluster{ID: id, Members: make([]string, 0, len(component))}
		var sumX, sumY float64
		for _, idx := range component {
			cluster.Members = append(cluster.Members, ordered[idx].ID)
			sumX += ordered[idx].X
			sumY += ordered[idx].Y
			set.Membership[ordered[idx].ID] = id
		}
		sort.Strings(cluster.Members)
		count := len(component)
		cluster.CentroidX = sumX / float64(count)
		cluster.CentroidY = sumY / float64(count)
		cluster.Gain = clamp(float64(count)/4, 0.1, 1)
		cluster.Chord = synthChord(count, cluster.Gain)
		set.Clusters = append(set.Clusters, cluster)

		if count > largestSize {
			largestSize = count
			set.Largest = id
		}
	}
	return set
}

// chordIntervals are stacked thirds over a fixed root; one tone joins the
// chord per cluster member up to the interval count.
var chordIntervals = []int{0, 4, 7, 11, 14, 17}

const chordRoot = 52

// synthChord derives the chord for a cluster of the given size. The result
// depends only on the member count, so equally sized clusters sound alike.
func synthChord(count int, gain float64) []ChordTone {
	n := count
	if n > len(chordIntervals) {
		n = len(chordIntervals)
	}
	if n <= 0 {
		return nil
	}
	tones := make([]ChordTone, 0, n)
	for i := 0; i < n; i++ {
		tones = append(tones, ChordTone{
			Value:  chordRoot + chordIntervals[i],
			Weight: gain / float64(i+1),
		})
	}
	return tones
}
