package config

import "time"

const defaultTelemetryInterval = 5 * time.Second

// TelemetryCfg enables periodic stats logs of both tiers.
type TelemetryCfg struct {
	Interval time.Duration `yaml:"interval"`
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil
}
