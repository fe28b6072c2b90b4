package detection

import "time"

// Observer receives timing and count signals from detector invocations.
// The boundary layer may plug in a metrics-backed implementation; the core
// itself never inspects the values.
type Observer interface {
	ObservePredict(detector string, elapsed time.Duration, entities int, err error)
}

type nopObserver struct{}

func (nopObserver) ObservePredict(string, time.Duration, int, error) {}

// NopObserver discards all observations.
var NopObserver Observer = nopObserver{}
