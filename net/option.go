// Package net is the transport under both network managers: length-framed TCP
// connections carrying encoded messages, plus the mailbox that hands inbound
// messages from I/O goroutines to a tick thread.
package net

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Defaults shared by client and server.
const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 7373
	DefaultConnectTimeoutMS = 15000
	DefaultBufferSize       = 10 << 20
	DefaultSendChannelSize  = 1024
)

// NetCfg configures connections on both ends ("net" section).
//
// SendRate paces outbound messages per connection and RecvRate/RecvBurst
// bound inbound messages per connection; zero disables either limit.
// IdleTimeoutSec closes connections that stay silent for that long; zero
// disables it.
type NetCfg struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	ConnectTimeoutMS int    `mapstructure:"connectTimeoutMs"`
	WriteBufferSize  int    `mapstructure:"writeBufferSize"`
	ObjectBufferSize int    `mapstructure:"objectBufferSize"`
	SendChannelSize  int    `mapstructure:"sendChannelSize"`
	IdleTimeoutSec   int    `mapstructure:"idleTimeoutSec"`
	SendRate         int    `mapstructure:"sendRate"`
	RecvRate         int    `mapstructure:"recvRate"`
	RecvBurst        int    `mapstructure:"recvBurst"`
}

// DefaultNetCfg returns the built-in network parameters.
func DefaultNetCfg() *NetCfg {
	return &NetCfg{
		Host:             DefaultHost,
		Port:             DefaultPort,
		ConnectTimeoutMS: DefaultConnectTimeoutMS,
		WriteBufferSize:  DefaultBufferSize,
		ObjectBufferSize: DefaultBufferSize,
		SendChannelSize:  DefaultSendChannelSize,
	}
}

// GetName implements config.Config.
func (c *NetCfg) GetName() string {
	return "net"
}

// Validate implements config.Config.
func (c *NetCfg) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("connectTimeoutMs must be positive")
	}
	if c.WriteBufferSize <= 0 || c.ObjectBufferSize <= 0 {
		return fmt.Errorf("buffer sizes must be positive")
	}
	if c.SendChannelSize <= 0 {
		return fmt.Errorf("sendChannelSize must be positive")
	}
	if c.IdleTimeoutSec < 0 || c.SendRate < 0 || c.RecvRate < 0 || c.RecvBurst < 0 {
		return fmt.Errorf("idle timeout and rates cannot be negative")
	}
	return nil
}

// Addr is host:port.
func (c *NetCfg) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ConnectTimeout is ConnectTimeoutMS as a duration.
func (c *NetCfg) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// IdleTimeout is IdleTimeoutSec as a duration.
func (c *NetCfg) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}
