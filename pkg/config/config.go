// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package config reads unrepair's optional --config FILE: a YAML file of
// default --system-lib-dir entries and output-format/color/verbosity
// defaults, read the same way the teacher's --platform-file is (sigs.k8s.io/yaml,
// rejecting unknown fields).
package config

import (
	"os"

	"sigs.k8s.io/yaml"
)

// Config is the optional on-disk default-settings file. CLI flags always
// override values loaded from here (spec_full.md §4.7).
type Config struct {
	SystemLibDirs []string `json:"systemLibDirs,omitempty"`
	NoStrict      bool     `json:"noStrict,omitempty"`
	Format        string   `json:"format,omitempty"`
	Color         string   `json:"color,omitempty"`
	Verbose       bool     `json:"verbose,omitempty"`
}

// Load reads and parses a Config from path. Unknown fields are rejected,
// matching the teacher's posture toward its own YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
