package client

import (
	"errors"
	"time"
)

// ClientCfg configures the client NetworkManager ("client" section).
// ServiceName, when set, resolves the server through discovery instead of
// ServerAddr.
type ClientCfg struct {
	ServerAddr      string `mapstructure:"serverAddr"`
	ServiceName     string `mapstructure:"serviceName"`
	MaxAttempts     int    `mapstructure:"maxAttempts"`
	RetryDelayMS    int    `mapstructure:"retryDelayMs"`
	QueueTimeoutSec int    `mapstructure:"queueTimeoutSec"`
}

// DefaultClientCfg retries three times half a second apart and drops
// unhandled messages after a minute.
func DefaultClientCfg() *ClientCfg {
	return &ClientCfg{
		ServerAddr:      "127.0.0.1:7373",
		MaxAttempts:     3,
		RetryDelayMS:    500,
		QueueTimeoutSec: 60,
	}
}

// GetName implements config.Config.
func (c *ClientCfg) GetName() string {
	return "client"
}

// Validate implements config.Config.
func (c *ClientCfg) Validate() error {
	if c.ServerAddr == "" && c.ServiceName == "" {
		return errors.New("serverAddr or serviceName is required")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("maxAttempts must be positive")
	}
	if c.RetryDelayMS < 0 || c.QueueTimeoutSec <= 0 {
		return errors.New("retryDelayMs cannot be negative and queueTimeoutSec must be positive")
	}
	return nil
}

func (c *ClientCfg) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c *ClientCfg) QueueTimeout() time.Duration {
	return time.Duration(c.QueueTimeoutSec) * time.Second
}
