package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/schedview/schedview/pagecache"
)

// fileConfig is the YAML cache-tuning file. Durations are Go duration
// strings, e.g. "60s". Absent fields keep the cache defaults.
type fileConfig struct {
	ActiveTTL     string `yaml:"activeTTL"`
	NeighborTTL   string `yaml:"neighborTTL"`
	BackgroundTTL string `yaml:"backgroundTTL"`
	MaxEntries    int    `yaml:"maxEntries"`
	PrefetchDelay string `yaml:"prefetchDelay"`
}

type cacheTuning struct {
	ttl           pagecache.TTLPolicy
	maxEntries    int
	prefetchDelay time.Duration
}

func loadConfig(filename string) (cacheTuning, error) {
	var tuning cacheTuning
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return tuning, err
	}
	var config fileConfig
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return tuning, err
	}
	if tuning.ttl.Active, err = parseDuration(config.ActiveTTL, "activeTTL"); err != nil {
		return tuning, err
	}
	if tuning.ttl.Neighbor, err = parseDuration(config.NeighborTTL, "neighborTTL"); err != nil {
		return tuning, err
	}
	if tuning.ttl.Background, err = parseDuration(config.BackgroundTTL, "backgroundTTL"); err != nil {
		return tuning, err
	}
	if tuning.prefetchDelay, err = parseDuration(config.PrefetchDelay, "prefetchDelay"); err != nil {
		return tuning, err
	}
	tuning.maxEntries = config.MaxEntries
	return tuning, nil
}

func parseDuration(value, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config field %s: %w", field, err)
	}
	return d, nil
}
