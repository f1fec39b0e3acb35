// Package config loads named YAML configuration sections for hopnet processes
// and keeps them fresh while the process runs.
package config

// Config is implemented by every configuration section.
type Config interface {
	GetName() string
	Validate() error
}

// ConfigChangeListener is notified after a section has been reloaded and validated.
type ConfigChangeListener interface {
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
	GetConfigName() string
}
