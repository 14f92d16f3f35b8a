package config

// Cache groups configuration of both tiers.
// Telemetry may be disabled by setting it to nil.
type Cache struct {
	// Memory configures the in-memory LRU tier.
	// If nil, defaults are used (unlimited count/cost, never expire).
	Memory *MemoryCfg `yaml:"memory"`

	// Disk configures the persistent tier. Disk.Name is required.
	Disk *DiskCfg `yaml:"disk"`

	// Telemetry configures periodic stats logs. If nil, no stats are logged.
	Telemetry *TelemetryCfg `yaml:"telemetry"`
}
