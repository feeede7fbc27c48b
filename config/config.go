// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads the YAML configuration of a preprocessing run.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/OpenPSG/eegprep/epochs"
	"github.com/OpenPSG/eegprep/recording"
	"github.com/OpenPSG/eegprep/triggers"
	"github.com/goccy/go-yaml"
)

// Config describes a preprocessing run.
type Config struct {
	EEGDir         string     `yaml:"eeg_dir"`
	BehDir         string     `yaml:"beh_dir"`
	Prefixes       []string   `yaml:"prefixes"`
	TMin           float64    `yaml:"tmin"`
	TMax           float64    `yaml:"tmax"`
	Baseline       []*float64 `yaml:"baseline"` // [start, end], either may be null
	DropTraining   bool       `yaml:"drop_training"`
	HardwareOffset int        `yaml:"hardware_offset"`
	StimChannel    string     `yaml:"stim_channel"`
	StimMask       int        `yaml:"stim_mask"`
	MiscChannels   []string   `yaml:"misc_channels"`
	Workers        int        `yaml:"workers"`
	Verbose        bool       `yaml:"verbose"`
	LogLevel       string     `yaml:"log_level"`
	LogFormat      string     `yaml:"log_format"`
	DBPath         string     `yaml:"db_path"`
	ExportDir      string     `yaml:"export_dir"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		TMin:           0,
		TMax:           2,
		DropTraining:   true,
		HardwareOffset: triggers.BioSemiOffset,
		StimChannel:    recording.DefaultStimChannel,
		Workers:        1,
		Verbose:        true,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration describes a runnable pipeline.
func (c *Config) Validate() error {
	var errs []error
	if c.EEGDir == "" {
		errs = append(errs, errors.New("eeg_dir is required"))
	}
	if c.BehDir == "" {
		errs = append(errs, errors.New("beh_dir is required"))
	}
	if len(c.Prefixes) == 0 {
		errs = append(errs, errors.New("at least one prefix is required"))
	}
	if c.TMin >= c.TMax {
		errs = append(errs, fmt.Errorf("tmin (%g) must be less than tmax (%g)", c.TMin, c.TMax))
	}
	if len(c.Baseline) != 0 && len(c.Baseline) != 2 {
		errs = append(errs, fmt.Errorf("baseline must have 2 entries, got %d", len(c.Baseline)))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// LoadOptions returns the recording loading options.
func (c *Config) LoadOptions() recording.LoadOptions {
	return recording.LoadOptions{
		StimChannel:  c.StimChannel,
		MiscChannels: c.MiscChannels,
	}
}

// TriggerOptions returns the annotation building options.
func (c *Config) TriggerOptions(logger *slog.Logger) triggers.Options {
	return triggers.Options{
		Offset:  c.HardwareOffset,
		Find:    recording.FindOptions{StimChannel: c.StimChannel, Mask: c.StimMask},
		Verbose: c.Verbose,
		Logger:  logger,
	}
}

// EpochOptions returns the epoch extraction options.
func (c *Config) EpochOptions(logger *slog.Logger) epochs.Options {
	opts := epochs.Options{
		TMin:    c.TMin,
		TMax:    c.TMax,
		Verbose: c.Verbose,
		Logger:  logger,
	}
	if len(c.Baseline) == 2 {
		opts.Baseline = &epochs.Baseline{Start: c.Baseline[0], End: c.Baseline[1]}
	}
	return opts
}
