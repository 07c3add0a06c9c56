// Package fusion merges the dense-vector and sparse-keyword channels of one
// namespace into a single ranking: per-channel min-max normalization, a
// weighted sum, deterministic tie-breaking, and degradation paths when a
// channel is unavailable.
package fusion

// Scored is one (chunk ID, raw score) pair emitted by a search channel.
// Channels agree on orientation: higher is better. Distance-oriented
// primitives convert before emitting.
type Scored struct {
	ID    string
	Score float64
}

// Normalize rescales scores into [0, 1] with min-max, preserving order and
// IDs. All-equal input maps to all 1.0 so a single-hit channel still carries
// full weight. Empty input stays empty.
func Normalize(in []Scored) []Scored {
	if len(in) == 0 {
		return nil
	}

	minScore, maxScore := in[0].Score, in[0].Score
	for _, s := range in[1:] {
		if s.Score < minScore {
			minScore = s.Score
		}
		if s.Score > maxScore {
			maxScore = s.Score
		}
	}

	out := make([]Scored, len(in))
	if maxScore == minScore {
		for i, s := range in {
			out[i] = Scored{ID: s.ID, Score: 1.0}
		}
		return out
	}

	span := maxScore - minScore
	for i, s := range in {
		out[i] = Scored{ID: s.ID, Score: (s.Score - minScore) / span}
	}
	return out
}
