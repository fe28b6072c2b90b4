package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hannes/gliner-gate/detection"
)

const defaultRemoteTimeout = 10 * time.Second

// RemoteDetector calls an inference sidecar over HTTP. The sidecar exposes
// POST /predict taking {text, labels, threshold} and returning the detected
// entities. Unlike an in-process model, a sidecar failure is a hard error;
// the request must not silently lose coverage.
type RemoteDetector struct {
	name   string
	url    string
	client *http.Client
}

// NewRemoteDetector creates a detector calling the sidecar at baseURL
// (e.g. "http://gliner-sidecar:8001"). A non-positive timeout selects the
// default.
func NewRemoteDetector(name, baseURL string, timeout time.Duration) *RemoteDetector {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &RemoteDetector{
		name: name,
		url:  baseURL + "/predict",
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type predictRequest struct {
	Text      string   `json:"text"`
	Labels    []string `json:"labels"`
	Threshold float64  `json:"threshold"`
}

type predictResponse struct {
	Entities []struct {
		Start int     `json:"start"`
		End   int     `json:"end"`
		Text  string  `json:"text"`
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"entities"`
}

// GetName returns the configured detector name.
func (d *RemoteDetector) GetName() string {
	return d.name
}

// Predict sends the text to the sidecar and returns its spans. It is safe
// for concurrent use.
func (d *RemoteDetector) Predict(ctx context.Context, text string, labels []string, threshold float64) ([]detection.Entity, error) {
	body, err := json.Marshal(predictRequest{Text: text, Labels: labels, Threshold: threshold})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call sidecar: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sidecar returned status %d", resp.StatusCode)
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	entities := make([]detection.Entity, 0, len(result.Entities))
	for _, e := range result.Entities {
		entities = append(entities, detection.Entity{
			Start: e.Start,
			End:   e.End,
			Text:  e.Text,
			Label: e.Label,
			Score: e.Score,
		})
	}
	return entities, nil
}

// Close releases idle connections held by the HTTP client.
func (d *RemoteDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
