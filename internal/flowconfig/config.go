// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flowconfig loads the tunable parameters of the flow-table core
// from YAML, the way internal/config loads the rest of the product's
// configuration.
package flowconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	flerr "github.com/ashoksr/vrflow/internal/errors"
)

// Config holds the tunables loaded from YAML: table sizes, the
// unresolved-hold backpressure limit, the hash seed, and the number of
// logical CPU lanes the flush dispatcher schedules across. The hold-queue
// cap and the bucket width are not configurable here; they are the flow
// package's MaxQueue and Bucket constants.
type Config struct {
	PrimaryEntries  int    `yaml:"primary_entries"`
	OverflowEntries int    `yaml:"overflow_entries"`
	HashSeed        uint64 `yaml:"hash_seed"`
	MaxHold         uint32 `yaml:"max_hold"`
	NumCPU          int    `yaml:"num_cpu"`
}

// Defaults for the table sizes and the unresolved-hold gate.
const (
	DefaultPrimaryEntries  = 512 * 1024
	DefaultOverflowEntries = 8 * 1024
	DefaultMaxHold         = 4096
)

// Default returns the out-of-the-box tunables, sized for a single-CPU
// simulator run.
func Default() Config {
	return Config{
		PrimaryEntries:  DefaultPrimaryEntries,
		OverflowEntries: DefaultOverflowEntries,
		MaxHold:         DefaultMaxHold,
		NumCPU:          1,
	}
}

// Load reads a YAML document from path and overlays it onto Default.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, flerr.Wrap(err, flerr.KindNotFound, "flowconfig: read "+path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, flerr.Wrap(err, flerr.KindValidation, "flowconfig: parse "+path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the tunables against the constraints the flow table
// enforces at init time (primary entries must be a positive multiple of
// the bucket size).
func (c Config) Validate() error {
	// Must stay equal to the flow package's Bucket constant, which
	// NewTable enforces independently; flowconfig cannot import
	// internal/flow (the flow package consumes this Config).
	const bucket = 4
	if c.PrimaryEntries <= 0 || c.PrimaryEntries%bucket != 0 {
		return flerr.Errorf(flerr.KindValidation, "flowconfig: primary_entries %d must be a positive multiple of %d", c.PrimaryEntries, bucket)
	}
	if c.OverflowEntries <= 0 {
		return flerr.Errorf(flerr.KindValidation, "flowconfig: overflow_entries %d must be positive", c.OverflowEntries)
	}
	if c.MaxHold == 0 {
		return flerr.Errorf(flerr.KindValidation, "flowconfig: max_hold must be positive")
	}
	if c.NumCPU <= 0 {
		return flerr.Errorf(flerr.KindValidation, "flowconfig: num_cpu must be positive")
	}
	return nil
}
