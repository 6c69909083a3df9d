package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/flemzord/sitterd/internal/core"
)

// singletonNamespaces may be backed by at most one configured module.
var singletonNamespaces = []string{"store", "blob"}

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry, and that at most one
// module is configured per singleton namespace.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := core.LookupModule(id); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}

	errs = append(errs, validateSingletons(cfg)...)
	errs = append(errs, validateLog(cfg.Log)...)
	errs = append(errs, validateTelemetry(cfg.Telemetry)...)

	return errors.Join(errs...)
}

func validateSingletons(cfg *Config) []error {
	var errs []error
	for _, ns := range singletonNamespaces {
		var found []string
		for id := range cfg.Modules {
			if core.ModuleID(id).Namespace() == ns {
				found = append(found, id)
			}
		}
		if len(found) > 1 {
			sort.Strings(found)
			errs = append(errs, fmt.Errorf("config: only one %s module may be configured, got %v", ns, found))
		}
	}
	return errs
}

func validateLog(l LogConfig) []error {
	var errs []error
	switch l.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", l.Level))
	}
	switch l.Format {
	case "", LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", l.Format))
	}
	return errs
}

func validateTelemetry(t TelemetryConfig) []error {
	if t.SampleRatio == nil {
		return nil
	}
	if r := *t.SampleRatio; r < 0 || r > 1 {
		return []error{fmt.Errorf("config: telemetry.sample_ratio must be within [0, 1], got %v", r)}
	}
	return nil
}
