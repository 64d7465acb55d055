// Package config loads Lazydog's tunables from a YAML file, with CLI flags
// able to override whatever the file set. Fields are expressed in seconds
// so a hand-written config file reads naturally, and zero-valued fields
// (whether absent from the file or explicitly 0) fall back to Default.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warniiiz/lazydog-go/pkg/aggregator"
	"github.com/warniiiz/lazydog-go/pkg/releasegate"
)

// Config is the on-disk and CLI-overridable shape of Lazydog's tunables.
// Durations are expressed in seconds in YAML, matching how a human would
// write a config file by hand.
type Config struct {
	// QuietPeriodSeconds is how long the pending list must go untouched
	// before the release gate considers it settled.
	QuietPeriodSeconds float64 `yaml:"quiet_period_seconds"`
	// EmptyFileGraceSeconds is how long an empty file's Created event is
	// held back in case a write immediately follows it.
	EmptyFileGraceSeconds float64 `yaml:"empty_file_grace_seconds"`
	// CopyGroupExpirySeconds bounds how long a destination directory stays
	// a candidate for directory-copy promotion after its last touch. This
	// only bounds memory, not anything externally observable.
	CopyGroupExpirySeconds float64 `yaml:"copy_group_expiry_seconds"`
}

// Default mirrors releasegate.DefaultConfig and aggregator.CopyGroupExpiry.
var Default = Config{
	QuietPeriodSeconds:     releasegate.DefaultConfig.QuietPeriod.Seconds(),
	EmptyFileGraceSeconds:  releasegate.DefaultConfig.EmptyFileGrace.Seconds(),
	CopyGroupExpirySeconds: aggregator.CopyGroupExpiry.Seconds(),
}

// Load reads and parses the YAML file at path, falling back to Default for
// any field the file leaves at its zero value.
func Load(path string) (Config, error) {
	cfg := Default

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.QuietPeriodSeconds <= 0 {
		cfg.QuietPeriodSeconds = Default.QuietPeriodSeconds
	}
	if cfg.EmptyFileGraceSeconds <= 0 {
		cfg.EmptyFileGraceSeconds = Default.EmptyFileGraceSeconds
	}
	if cfg.CopyGroupExpirySeconds <= 0 {
		cfg.CopyGroupExpirySeconds = Default.CopyGroupExpirySeconds
	}
}

// ReleaseGateConfig converts the seconds-based fields into the
// time.Duration values releasegate.New expects.
func (c Config) ReleaseGateConfig() releasegate.Config {
	return releasegate.Config{
		QuietPeriod:    durationOf(c.QuietPeriodSeconds),
		EmptyFileGrace: durationOf(c.EmptyFileGraceSeconds),
	}
}

// CopyGroupExpiry converts CopyGroupExpirySeconds into a time.Duration.
func (c Config) CopyGroupExpiry() time.Duration {
	return durationOf(c.CopyGroupExpirySeconds)
}

func durationOf(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
