package detection

import "fmt"

// Entity represents a detected entity span in one input text. Offsets are
// half-open byte indices into the source text. Entities are plain values;
// two entities with identical fields are interchangeable.
type Entity struct {
	Start    int     `json:"start"`
	End      int     `json:"end"`
	Text     string  `json:"text"`
	Label    string  `json:"label"`
	Score    float64 `json:"score"`
	Detector string  `json:"detector,omitempty"`
}

// Length returns the span length in bytes.
func (e Entity) Length() int {
	return e.End - e.Start
}

// Overlaps reports whether the two half-open spans intersect. Spans that
// only touch at a boundary do not overlap.
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && e.End > other.Start
}

// SameSpan reports whether both entities cover exactly the same offsets.
func (e Entity) SameSpan(other Entity) bool {
	return e.Start == other.Start && e.End == other.End
}

// validate checks the detector-output contract: sane offsets within the
// source text and a score in [0, 1].
func (e Entity) validate(textLen int) error {
	if e.Start < 0 {
		return &ValidationError{Field: "entity.start", Reason: fmt.Sprintf("must not be negative (got %d)", e.Start)}
	}
	if e.End <= e.Start {
		return &ValidationError{Field: "entity.end", Reason: fmt.Sprintf("must be greater than start (got start=%d end=%d)", e.Start, e.End)}
	}
	if e.End > textLen {
		return &ValidationError{Field: "entity.end", Reason: fmt.Sprintf("exceeds text length %d (got %d)", textLen, e.End)}
	}
	if e.Score < 0 || e.Score > 1 {
		return &ValidationError{Field: "entity.score", Reason: fmt.Sprintf("must be between 0 and 1 (got %g)", e.Score)}
	}
	return nil
}
