package detection

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultBatchWorkers = 4

// Orchestrator runs the detection pipeline: it fans one text out to the
// requested detectors, tags and validates their raw spans, and resolves
// the combined candidate set into the final entity list.
type Orchestrator struct {
	registry     *Registry
	observer     Observer
	batchWorkers int
}

// NewOrchestrator creates an orchestrator over the given registry. A nil
// observer disables observation; batchWorkers <= 0 selects the default
// pool size for batch requests.
func NewOrchestrator(registry *Registry, observer Observer, batchWorkers int) *Orchestrator {
	if observer == nil {
		observer = NopObserver
	}
	if batchWorkers <= 0 {
		batchWorkers = defaultBatchWorkers
	}
	return &Orchestrator{
		registry:     registry,
		observer:     observer,
		batchWorkers: batchWorkers,
	}
}

// Detect runs the requested detectors against text and returns the resolved
// entity list. labels and threshold override the per-detector defaults when
// set. Any unknown detector name aborts the request before inference starts.
func (o *Orchestrator) Detect(ctx context.Context, text string, detectorNames []string, labels []string, threshold *float64) ([]Entity, error) {
	names, entries, err := o.resolveRequest(detectorNames, threshold)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Detectors are independent; accumulation order does not matter because
	// Resolve re-sorts the candidate set.
	results := make([][]Entity, len(entries))
	errs := make([]error, len(entries))
	var wg sync.WaitGroup
	for i := range entries {
		wg.Add(1)
		go func(i int, name string, entry Registered) {
			defer wg.Done()
			spans, err := o.predict(ctx, text, name, entry, labels, threshold)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			results[i] = spans
		}(i, names[i], entries[i])
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var candidates []Entity
	for _, spans := range results {
		candidates = append(candidates, spans...)
	}
	return Resolve(candidates), nil
}

// predict invokes a single detector with the effective labels and threshold
// and validates its output against the detector contract.
func (o *Orchestrator) predict(ctx context.Context, text, name string, entry Registered, labels []string, threshold *float64) ([]Entity, error) {
	effLabels := entry.DefaultLabels
	if len(labels) > 0 {
		effLabels = labels
	}
	effThreshold := entry.DefaultThreshold
	if threshold != nil {
		effThreshold = *threshold
	}

	start := time.Now()
	spans, err := entry.Detector.Predict(ctx, text, effLabels, effThreshold)
	o.observer.ObservePredict(name, time.Since(start), len(spans), err)
	if err != nil {
		return nil, &ProviderError{Detector: name, Err: err}
	}

	for i := range spans {
		if err := spans[i].validate(len(text)); err != nil {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("detector %s", name),
				Reason: err.Error(),
			}
		}
		spans[i].Detector = name
	}
	return spans, nil
}

// resolveRequest validates the request parameters and resolves every
// detector name, failing fast before any inference runs.
func (o *Orchestrator) resolveRequest(detectorNames []string, threshold *float64) ([]string, []Registered, error) {
	if len(detectorNames) == 0 {
		return nil, nil, &ValidationError{Field: "detectors", Reason: "at least one detector is required"}
	}
	if threshold != nil && (*threshold < 0 || *threshold > 1) {
		return nil, nil, &ValidationError{Field: "threshold", Reason: fmt.Sprintf("must be between 0 and 1 (got %g)", *threshold)}
	}

	names := make([]string, 0, len(detectorNames))
	entries := make([]Registered, 0, len(detectorNames))
	for _, name := range detectorNames {
		entry, ok := o.registry.Lookup(name)
		if !ok {
			return nil, nil, &ConfigurationError{Detector: name}
		}
		names = append(names, name)
		entries = append(entries, entry)
	}
	return names, entries, nil
}
