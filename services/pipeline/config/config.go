// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates muse-pipeline configuration.
//
// Configuration comes from a YAML file with environment-variable
// overrides for deployment-specific values (model name, workspace root).
// A zero-value load falls back to Default(), so the pipeline runs with
// no config file at all.
//
// All components receive their slice of the config explicitly; there is
// no package-level config singleton.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Validation configures the content gate applied before any derivation.
type Validation struct {
	// MinContentLength is the minimum body length in bytes, measured
	// after stripping YAML front matter.
	MinContentLength int `yaml:"min_content_length" validate:"gt=0"`

	// PlaceholderMarkers are case-insensitive substrings that mark a
	// document as unfinished. Any match fails validation.
	PlaceholderMarkers []string `yaml:"placeholder_markers"`
}

// Retry configures exponential-backoff retry for generative calls.
type Retry struct {
	MaxAttempts    int           `yaml:"max_attempts" validate:"gte=1"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gt=0"`
	BackoffFactor  float64       `yaml:"backoff_factor" validate:"gte=1"`
	JitterFactor   float64       `yaml:"jitter_factor" validate:"gte=0,lte=1"`
}

// Concurrency bounds parallel work within a derivation stage.
type Concurrency struct {
	// MaxDeriverConcurrency caps concurrent generative calls across a
	// stage's independent units (Features across Epics, Stories across
	// Features).
	MaxDeriverConcurrency int `yaml:"max_deriver_concurrency" validate:"gte=1"`

	// PerCallTimeout bounds a single generative call.
	PerCallTimeout time.Duration `yaml:"per_call_timeout" validate:"gt=0"`

	// StageTimeout bounds an entire stage including fan-out.
	StageTimeout time.Duration `yaml:"stage_timeout" validate:"gt=0"`
}

// Model identifies the generative backend for the audit trail.
type Model struct {
	Provider    string  `yaml:"provider" validate:"required"`
	Name        string  `yaml:"name" validate:"required"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// Boundary configures the Epic boundary-detection pre-pass.
type Boundary struct {
	// Enabled turns the thematic-span pre-pass on for large documents.
	Enabled bool `yaml:"enabled"`

	// MinSections is the section count at which the pre-pass activates.
	MinSections int `yaml:"min_sections" validate:"gte=1"`
}

// StageVersions records the prompt/stage revision numbers captured in
// each audit record, so a replay can detect stage drift.
type StageVersions struct {
	Epic    int `yaml:"epic" validate:"gte=1"`
	Feature int `yaml:"feature" validate:"gte=1"`
	Story   int `yaml:"story" validate:"gte=1"`
}

// Config is the root configuration for a pipeline run.
type Config struct {
	Validation    Validation    `yaml:"validation"`
	Retry         Retry         `yaml:"retry"`
	Concurrency   Concurrency   `yaml:"concurrency"`
	Model         Model         `yaml:"model"`
	Boundary      Boundary      `yaml:"boundary"`
	StageVersions StageVersions `yaml:"stage_versions"`

	// WorkspaceRoot is the versioned workspace artifacts are committed to.
	WorkspaceRoot string `yaml:"workspace_root"`

	// AuditDir is the directory for the append-only audit store.
	AuditDir string `yaml:"audit_dir"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Validation: Validation{
			MinContentLength: 280,
			PlaceholderMarkers: []string{
				"lorem ipsum",
				"tbd",
				"todo: fill",
				"placeholder",
			},
		},
		Retry: Retry{
			MaxAttempts:    3,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
			BackoffFactor:  2.0,
			JitterFactor:   0.2,
		},
		Concurrency: Concurrency{
			MaxDeriverConcurrency: 4,
			PerCallTimeout:        60 * time.Second,
			StageTimeout:          10 * time.Minute,
		},
		Model: Model{
			Provider:    "openai",
			Name:        "gpt-4o-mini",
			Temperature: 0.2,
		},
		Boundary: Boundary{
			Enabled:     true,
			MinSections: 12,
		},
		StageVersions: StageVersions{Epic: 1, Feature: 1, Story: 1},
	}
}

// Load reads and validates configuration from the given YAML file.
// An empty path returns Default(). Environment overrides are applied
// after the file is parsed:
//
//	MUSE_MODEL_NAME      overrides model.name
//	MUSE_MODEL_PROVIDER  overrides model.provider
//	MUSE_WORKSPACE_ROOT  overrides workspace_root
//	MUSE_AUDIT_DIR       overrides audit_dir
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural constraints on the configuration.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("invalid configuration: max_backoff %v below initial_backoff %v",
			c.Retry.MaxBackoff, c.Retry.InitialBackoff)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MUSE_MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("MUSE_MODEL_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("MUSE_WORKSPACE_ROOT"); v != "" {
		cfg.WorkspaceRoot = v
	}
	if v := os.Getenv("MUSE_AUDIT_DIR"); v != "" {
		cfg.AuditDir = v
	}
}
