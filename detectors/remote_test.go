package detectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemoteDetector_Predict(t *testing.T) {
	var gotBody predictRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("Expected POST /predict, got %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Expected decodable body, got %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"entities":[{"start":0,"end":10,"text":"Sam Altman","label":"person","score":0.95}]}`)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	defer ts.Close()

	d := NewRemoteDetector("pii", ts.URL, 2*time.Second)
	entities, err := d.Predict(context.Background(), "Sam Altman works at OpenAI.", []string{"person"}, 0.4)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(entities))
	}
	if entities[0].Text != "Sam Altman" || entities[0].Label != "person" || entities[0].Score != 0.95 {
		t.Errorf("Unexpected entity: %+v", entities[0])
	}

	if gotBody.Text != "Sam Altman works at OpenAI." {
		t.Errorf("Expected text forwarded to sidecar, got %q", gotBody.Text)
	}
	if len(gotBody.Labels) != 1 || gotBody.Labels[0] != "person" {
		t.Errorf("Expected labels forwarded, got %v", gotBody.Labels)
	}
	if gotBody.Threshold != 0.4 {
		t.Errorf("Expected threshold forwarded, got %g", gotBody.Threshold)
	}
}

func TestRemoteDetector_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	d := NewRemoteDetector("pii", ts.URL, 2*time.Second)
	if _, err := d.Predict(context.Background(), "text", nil, 0.5); err == nil {
		t.Error("Expected an error for a non-200 response")
	}
}

func TestRemoteDetector_Unreachable(t *testing.T) {
	d := NewRemoteDetector("pii", "http://127.0.0.1:1", 500*time.Millisecond)
	if _, err := d.Predict(context.Background(), "text", nil, 0.5); err == nil {
		t.Error("Expected an error when the sidecar is unreachable")
	}
}

func TestRemoteDetector_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	d := NewRemoteDetector("pii", ts.URL, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := d.Predict(ctx, "text", nil, 0.5); err == nil {
		t.Error("Expected an error when the context is cancelled")
	}
}
