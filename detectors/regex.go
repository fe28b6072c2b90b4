// Package detectors provides the detection.Detector implementations the
// service can register: an in-process ONNX token-classification model, an
// HTTP client for a remote inference sidecar, and a regex pattern matcher.
package detectors

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hannes/gliner-gate/detection"
)

// RegexDetector matches a fixed label -> pattern table against the input.
// Matches carry score 1.0, so they survive any threshold.
type RegexDetector struct {
	name     string
	patterns map[string]*regexp.Regexp
}

// NewRegexDetector compiles the given patterns. Pattern labels double as
// entity labels.
func NewRegexDetector(name string, patterns map[string]string) (*RegexDetector, error) {
	compiled := make(map[string]*regexp.Regexp, len(patterns))
	for label, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern for label %s: %w", label, err)
		}
		compiled[label] = re
	}
	return &RegexDetector{name: name, patterns: compiled}, nil
}

// GetName returns the configured detector name.
func (d *RegexDetector) GetName() string {
	return d.name
}

// Predict scans the text with every requested pattern. An empty label set
// runs all configured patterns.
func (d *RegexDetector) Predict(ctx context.Context, text string, labels []string, threshold float64) ([]detection.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requested := labelSet(labels)
	var entities []detection.Entity
	for label, pattern := range d.patterns {
		if requested != nil && !requested[strings.ToLower(label)] {
			continue
		}
		for _, match := range pattern.FindAllStringIndex(text, -1) {
			entities = append(entities, detection.Entity{
				Start: match[0],
				End:   match[1],
				Text:  text[match[0]:match[1]],
				Label: label,
				Score: 1.0,
			})
		}
	}
	return entities, nil
}

// Close implements detection.Detector. There is nothing to release.
func (d *RegexDetector) Close() error {
	return nil
}

// labelSet returns a lowercase membership set, or nil for an empty list.
func labelSet(labels []string) map[string]bool {
	if len(labels) == 0 {
		return nil
	}
	set := make(map[string]bool, len(labels))
	for _, label := range labels {
		set[strings.ToLower(label)] = true
	}
	return set
}
