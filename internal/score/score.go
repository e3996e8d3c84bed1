// Package score defines tagged similarity scores and thresholds.
//
// Embedding providers disagree about what a "good" score looks like: cosine
// similarity is bounded and higher means closer, while distance metrics are
// unbounded and lower means closer. Every score in this codebase carries its
// metric kind so comparison code cannot mix the two conventions.
package score

import "fmt"

// Kind identifies the similarity convention of a score or threshold.
type Kind string

const (
	// Similarity is a bounded metric where higher means more similar
	// (e.g. cosine similarity in [-1, 1]).
	Similarity Kind = "similarity"
	// Distance is an unbounded metric where lower means more similar
	// (e.g. negative inner product).
	Distance Kind = "distance"
)

// ParseKind parses a metric kind from its configuration spelling.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Similarity, Distance:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown metric kind %q (want %q or %q)", s, Similarity, Distance)
	}
}

// Score is a raw score tagged with its metric kind.
type Score struct {
	Raw  float64
	Kind Kind
}

// Threshold is a cutoff value declared against one metric kind.
type Threshold struct {
	Value float64
	Kind  Kind
}

// Passes reports whether the score clears the threshold. For Similarity
// metrics a score passes when raw >= threshold; for Distance metrics when
// raw <= threshold. Comparing across metric kinds is always an error:
// configuration validation guarantees this never happens for configured
// thresholds, so a mismatch here indicates a wiring bug.
func (s Score) Passes(t Threshold) (bool, error) {
	if s.Kind != t.Kind {
		return false, fmt.Errorf("cannot compare %s score against %s threshold", s.Kind, t.Kind)
	}
	if s.Kind == Distance {
		return s.Raw <= t.Value, nil
	}
	return s.Raw >= t.Value, nil
}

// Better reports whether s ranks ahead of o. Both scores must share a kind.
func (s Score) Better(o Score) (bool, error) {
	if s.Kind != o.Kind {
		return false, fmt.Errorf("cannot order %s score against %s score", s.Kind, o.Kind)
	}
	if s.Kind == Distance {
		return s.Raw < o.Raw, nil
	}
	return s.Raw > o.Raw, nil
}

func (s Score) String() string {
	return fmt.Sprintf("%.4f (%s)", s.Raw, s.Kind)
}
