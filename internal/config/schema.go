// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for sitterd.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Log controls the process-wide logger.
	Log LogConfig `yaml:"log"`

	// Telemetry configures trace export. Tracing is disabled when the
	// endpoint is empty.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Audit controls where authentication and job events are recorded.
	Audit AuditConfig `yaml:"audit"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "store.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn or error. Defaults to info.
	Level string `yaml:"level"`

	// Format is "text" (colorized, for terminals) or "json". Defaults to text.
	Format string `yaml:"format"`
}

// TelemetryConfig configures the OTLP/HTTP trace exporter.
type TelemetryConfig struct {
	// Endpoint is the collector host:port, e.g. "localhost:4318".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	// ServiceName is reported as the service.name resource attribute.
	// Defaults to "sitterd".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root spans kept, in [0, 1].
	// Defaults to 1.
	SampleRatio *float64 `yaml:"sample_ratio"`
}

// AuditConfig configures the JSONL audit trail.
type AuditConfig struct {
	// Path of the audit file. Relative paths are resolved against the data
	// directory. Defaults to "audit.jsonl"; "-" disables the file.
	Path string `yaml:"path"`
}

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)
