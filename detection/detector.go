package detection

import "context"

// Detector is a named detection capability. Predict returns the raw entity
// spans found in text for the requested labels, filtered by the given
// confidence threshold. Implementations may be expensive (model inference)
// and must honor context cancellation.
type Detector interface {
	GetName() string
	Predict(ctx context.Context, text string, labels []string, threshold float64) ([]Entity, error)
	Close() error
}
