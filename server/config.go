package server

import "errors"

// ServerCfg configures the server process ("server" section).
type ServerCfg struct {
	TickRate     int    `mapstructure:"tickRate"`
	AsyncWorkers int    `mapstructure:"asyncWorkers"`
	ServiceName  string `mapstructure:"serviceName"`
}

func DefaultServerCfg() *ServerCfg {
	return &ServerCfg{TickRate: 20, AsyncWorkers: 16, ServiceName: "hopnet"}
}

// GetName implements config.Config.
func (c *ServerCfg) GetName() string {
	return "server"
}

// Validate implements config.Config.
func (c *ServerCfg) Validate() error {
	if c.TickRate <= 0 || c.TickRate > 1000 {
		return errors.New("tickRate must be in 1..1000")
	}
	if c.AsyncWorkers < 0 {
		return errors.New("asyncWorkers cannot be negative")
	}
	return nil
}
