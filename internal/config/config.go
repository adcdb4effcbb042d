// Package config loads anonymization job definitions from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// JobFile is the on-disk YAML shape of an anonymization job.
//
//	name: hospital-release
//	dataset: data/patients.csv
//	quasi_identifiers: [age, zip]
//	hierarchies:
//	  age: hierarchies/age.csv
//	  zip: hierarchies/zip.csv
//	k: 2
//	suppression_limit: 0.04
//	metric: height
//	store: sqlite
//	output: out/release.csv
type JobFile struct {
	Name             string            `yaml:"name"`
	Dataset          string            `yaml:"dataset"`
	QuasiIdentifiers []string          `yaml:"quasi_identifiers"`
	Hierarchies      map[string]string `yaml:"hierarchies"`
	K                int               `yaml:"k"`
	SuppressionLimit float64           `yaml:"suppression_limit"`
	Metric           string            `yaml:"metric"`
	Store            string            `yaml:"store"`
	Output           string            `yaml:"output"`
}

// Load reads and validates a job file.
func Load(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML job bytes.
func Parse(data []byte) (*JobFile, error) {
	var jf JobFile
	if err := yaml.UnmarshalStrict(data, &jf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if jf.Metric == "" {
		jf.Metric = "height"
	}
	if err := jf.validate(); err != nil {
		return nil, err
	}
	return &jf, nil
}

func (jf *JobFile) validate() error {
	if jf.Name == "" {
		return fmt.Errorf("config: name required")
	}
	if jf.Dataset == "" {
		return fmt.Errorf("config: dataset path required")
	}
	if len(jf.QuasiIdentifiers) == 0 {
		return fmt.Errorf("config: at least one quasi identifier required")
	}
	seen := make(map[string]bool, len(jf.QuasiIdentifiers))
	for _, qi := range jf.QuasiIdentifiers {
		if qi == "" {
			return fmt.Errorf("config: empty quasi identifier name")
		}
		if seen[qi] {
			return fmt.Errorf("config: duplicate quasi identifier %q", qi)
		}
		seen[qi] = true
		if jf.Hierarchies[qi] == "" {
			return fmt.Errorf("config: quasi identifier %q has no hierarchy file", qi)
		}
	}
	for attr := range jf.Hierarchies {
		if !seen[attr] {
			return fmt.Errorf("config: hierarchy for %q does not match any quasi identifier", attr)
		}
	}
	if jf.K < 2 {
		return fmt.Errorf("config: k must be at least 2, got %d", jf.K)
	}
	if jf.SuppressionLimit < 0 || jf.SuppressionLimit >= 1 {
		return fmt.Errorf("config: suppression_limit must be in [0,1), got %g", jf.SuppressionLimit)
	}
	switch jf.Store {
	case "", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown store driver %q", jf.Store)
	}
	return nil
}
