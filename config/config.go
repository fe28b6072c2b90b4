package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DetectorConfig describes one named detector. Type selects the
// implementation; the remaining fields apply per type.
type DetectorConfig struct {
	Type string `yaml:"type" json:"type"` // "onnx", "remote" or "regex"

	// onnx
	ModelPath     string `yaml:"model_path" json:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path" json:"tokenizer_path"`
	LabelMapPath  string `yaml:"label_map_path" json:"label_map_path"`

	// remote
	URL            string `yaml:"url" json:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`

	// regex
	Patterns map[string]string `yaml:"patterns" json:"patterns"`

	// Defaults applied when a request names neither labels nor threshold.
	DefaultEntities  []string `yaml:"default_entities" json:"default_entities"`
	DefaultThreshold float64  `yaml:"default_threshold" json:"default_threshold"`
}

// RateLimitConfig bounds inference request throughput at the boundary.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" json:"rps"` // 0 disables limiting
	Burst int     `yaml:"burst" json:"burst"`
}

// Config holds all configuration for the detection service.
type Config struct {
	Port             string                    `yaml:"port" json:"port"` // ":8080" form
	DefaultDetectors []string                  `yaml:"default_detectors" json:"default_detectors"`
	BatchWorkers     int                       `yaml:"batch_workers" json:"batch_workers"`
	RateLimit        RateLimitConfig           `yaml:"rate_limit" json:"rate_limit"`
	SentryDSN        string                    `yaml:"sentry_dsn" json:"sentry_dsn"`
	Detectors        map[string]DetectorConfig `yaml:"detectors" json:"detectors"`
}

// DefaultConfig returns the default configuration: one ONNX detector named
// "general" with the usual NER label set.
func DefaultConfig() *Config {
	return &Config{
		Port:             ":8080",
		DefaultDetectors: []string{"general"},
		BatchWorkers:     4,
		RateLimit: RateLimitConfig{
			RPS:   0,
			Burst: 1,
		},
		Detectors: map[string]DetectorConfig{
			"general": {
				Type:             "onnx",
				ModelPath:        "model/quantized/model_quantized.onnx",
				TokenizerPath:    "model/quantized/tokenizer.json",
				LabelMapPath:     "model/quantized/label_mappings.json",
				DefaultEntities:  []string{"person", "organization", "location", "date"},
				DefaultThreshold: 0.5,
			},
		},
	}
}

// LoadFromFile overlays the YAML config at path onto cfg.
func LoadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the -config flag
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with environment variables.
func ApplyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Port = port
	}
	if detectors := os.Getenv("DEFAULT_DETECTORS"); detectors != "" {
		var names []string
		for _, name := range strings.Split(detectors, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		cfg.DefaultDetectors = names
	}
	if workers := os.Getenv("BATCH_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.BatchWorkers = n
		}
	}
	if rps := os.Getenv("RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit.RPS = v
		}
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if n, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimit.Burst = n
		}
	}
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.SentryDSN = dsn
	}
}

// Validate checks cfg for contradictions before the service starts.
func Validate(cfg *Config) error {
	if err := validatePort(cfg.Port, "Port"); err != nil {
		return err
	}
	if len(cfg.Detectors) == 0 {
		return fmt.Errorf("Detectors: at least one detector must be configured")
	}
	for name, dc := range cfg.Detectors {
		if err := validateDetector(name, dc); err != nil {
			return err
		}
	}
	for _, name := range cfg.DefaultDetectors {
		if _, ok := cfg.Detectors[name]; !ok {
			return fmt.Errorf("DefaultDetectors: detector %s is not configured", name)
		}
	}
	if cfg.BatchWorkers < 0 {
		return fmt.Errorf("BatchWorkers: must not be negative (current value: %d)", cfg.BatchWorkers)
	}
	if cfg.RateLimit.RPS < 0 {
		return fmt.Errorf("RateLimit.RPS: must not be negative (current value: %g)", cfg.RateLimit.RPS)
	}
	return nil
}

// validatePort checks the ":PORT" form used throughout the service.
func validatePort(port, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}
	if !strings.HasPrefix(port, ":") {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	n, err := strconv.Atoi(port[1:])
	if err != nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, n)
	}
	return nil
}

// validateThreshold checks a confidence threshold is inside [0, 1].
func validateThreshold(threshold float64, fieldName string) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%s: threshold must be between 0 and 1 (current value: %g)", fieldName, threshold)
	}
	return nil
}

// validateDetector checks one detector block.
func validateDetector(name string, dc DetectorConfig) error {
	field := fmt.Sprintf("Detectors.%s", name)
	if err := validateThreshold(dc.DefaultThreshold, field+".DefaultThreshold"); err != nil {
		return err
	}
	switch dc.Type {
	case "onnx":
		if dc.ModelPath == "" || dc.TokenizerPath == "" || dc.LabelMapPath == "" {
			return fmt.Errorf("%s: onnx detectors need model_path, tokenizer_path and label_map_path", field)
		}
	case "remote":
		if dc.URL == "" {
			return fmt.Errorf("%s: remote detectors need a url", field)
		}
		if dc.TimeoutSeconds < 0 {
			return fmt.Errorf("%s.TimeoutSeconds: must not be negative (current value: %d)", field, dc.TimeoutSeconds)
		}
	case "regex":
		if len(dc.Patterns) == 0 {
			return fmt.Errorf("%s: regex detectors need at least one pattern", field)
		}
	default:
		return fmt.Errorf("%s.Type: must be one of onnx, remote, regex (current value: %s)", field, dc.Type)
	}
	return nil
}
