package detectors

import (
	"context"
	"testing"
)

func TestRegexDetector_Predict(t *testing.T) {
	d, err := NewRegexDetector("structured", map[string]string{
		"ssn": `\b\d{3}-\d{2}-\d{4}\b`,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	entities, err := d.Predict(context.Background(), "My SSN is 123-45-6789 and another is 987-65-4321.", nil, 0.5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(entities))
	}

	first := entities[0]
	if first.Text != "123-45-6789" {
		t.Errorf("Expected first match '123-45-6789', got %q", first.Text)
	}
	if first.Start != 10 || first.End != 21 {
		t.Errorf("Expected offsets [10:21], got [%d:%d]", first.Start, first.End)
	}
	if first.Label != "ssn" {
		t.Errorf("Expected label 'ssn', got %q", first.Label)
	}
	if first.Score != 1.0 {
		t.Errorf("Expected score 1.0, got %g", first.Score)
	}
}

func TestRegexDetector_LabelFilter(t *testing.T) {
	d, err := NewRegexDetector("structured", map[string]string{
		"ssn":   `\b\d{3}-\d{2}-\d{4}\b`,
		"email": `\b\S+@\S+\.\S+\b`,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	entities, err := d.Predict(context.Background(), "Reach sam@example.com or 123-45-6789.", []string{"EMAIL"}, 0.5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(entities))
	}
	if entities[0].Label != "email" {
		t.Errorf("Expected only the requested label, got %q", entities[0].Label)
	}
}

func TestRegexDetector_NoMatches(t *testing.T) {
	d, err := NewRegexDetector("structured", map[string]string{
		"ssn": `\b\d{3}-\d{2}-\d{4}\b`,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	entities, err := d.Predict(context.Background(), "no identifiers here", nil, 0.5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("Expected 0 entities, got %d", len(entities))
	}
}

func TestRegexDetector_InvalidPattern(t *testing.T) {
	if _, err := NewRegexDetector("structured", map[string]string{"bad": `(`}); err == nil {
		t.Error("Expected an error for an invalid pattern")
	}
}

func TestRegexDetector_GetName(t *testing.T) {
	d, err := NewRegexDetector("structured", nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if d.GetName() != "structured" {
		t.Errorf("Expected name 'structured', got %q", d.GetName())
	}
}
