package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the client configuration
type Config struct {
	Server struct {
		WSURL   string `yaml:"ws_url"`   // Evaluation backend WebSocket URL (e.g., ws://localhost:5000/ws)
		RESTURL string `yaml:"rest_url"` // Evaluation backend REST base URL (e.g., http://localhost:5000)
	} `yaml:"server"`

	Evaluator struct {
		Confidence float64 `yaml:"confidence"` // Pose detection confidence threshold 0..1 (default: 0.5)
		ImageSize  int     `yaml:"image_size"` // Inference image size (default: 640)
		LineWidth  int     `yaml:"line_width"` // Skeleton overlay line width (default: 3)
	} `yaml:"evaluator"`

	Capture struct {
		SourceDir string `yaml:"source_dir"` // Directory of JPEG frames to stream (empty disables streaming)
		FPS       int    `yaml:"fps"`        // Upstream frame rate (default: 30)
	} `yaml:"capture"`

	Database struct {
		Path string `yaml:"path"` // SQLite history database path (default: ./data/history.db)
	} `yaml:"database"`

	Dashboard struct {
		Enabled bool   `yaml:"enabled"` // Whether to enable the dashboard (default: false)
		Address string `yaml:"address"` // Dashboard server address (default: :8090)
	} `yaml:"dashboard"`
}

// Load reads the configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Validate required fields
	if cfg.Server.WSURL == "" {
		return nil, fmt.Errorf("server.ws_url is required")
	}
	if cfg.Server.RESTURL == "" {
		return nil, fmt.Errorf("server.rest_url is required")
	}
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("database.path is required")
	}

	// Apply defaults
	if cfg.Evaluator.Confidence == 0 {
		cfg.Evaluator.Confidence = 0.5
	}
	if cfg.Evaluator.Confidence < 0 || cfg.Evaluator.Confidence > 1 {
		return nil, fmt.Errorf("evaluator.confidence must be between 0 and 1")
	}
	if cfg.Evaluator.ImageSize == 0 {
		cfg.Evaluator.ImageSize = 640
	}
	if cfg.Evaluator.LineWidth == 0 {
		cfg.Evaluator.LineWidth = 3
	}
	if cfg.Capture.FPS == 0 {
		cfg.Capture.FPS = 30
	}
	if cfg.Dashboard.Address == "" {
		cfg.Dashboard.Address = ":8090"
	}

	return &cfg, nil
}
