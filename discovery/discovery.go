// Package discovery registers the level server with a consul agent and lets
// clients find a healthy instance.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/metrics"
)

// ErrNoInstance is returned when no passing instance is registered.
var ErrNoInstance = errors.New("no healthy instance")

// DiscoveryCfg configures consul access ("discovery" section).
type DiscoveryCfg struct {
	Enabled                bool   `mapstructure:"enabled"`
	ConsulAddr             string `mapstructure:"consulAddr"`
	ServiceID              string `mapstructure:"serviceId"`
	TTLSec                 int    `mapstructure:"ttlSec"`
	DeregisterAfterMinutes int    `mapstructure:"deregisterAfterMinutes"`
}

// GetName implements config.Config.
func (c *DiscoveryCfg) GetName() string {
	return "discovery"
}

// Validate implements config.Config.
func (c *DiscoveryCfg) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ConsulAddr == "" {
		return errors.New("consulAddr cannot be empty")
	}
	if c.TTLSec <= 0 {
		return errors.New("ttlSec must be positive")
	}
	return nil
}

func newClient(cfg *DiscoveryCfg) (*api.Client, error) {
	c := api.DefaultConfig()
	if cfg.ConsulAddr != "" {
		c.Address = cfg.ConsulAddr
	}
	return api.NewClient(c)
}

// Registration keeps one service instance registered, passing its TTL check
// on a heartbeat.
type Registration struct {
	client   *api.Client
	reg      *api.AgentServiceRegistration
	checkID  string
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
}

// NewRegistration describes the instance serving name at host:port.
func NewRegistration(cfg *DiscoveryCfg, name, host string, port int) (*Registration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}

	id := cfg.ServiceID
	if id == "" {
		id = name + "-" + net.JoinHostPort(host, strconv.Itoa(port))
	}
	ttl := time.Duration(cfg.TTLSec) * time.Second
	deregister := cfg.DeregisterAfterMinutes
	if deregister <= 0 {
		deregister = 1
	}
	checkID := "service:" + id

	return &Registration{
		client:  client,
		checkID: checkID,
		reg: &api.AgentServiceRegistration{
			ID:      id,
			Name:    name,
			Address: host,
			Port:    port,
			Check: &api.AgentServiceCheck{
				CheckID:                        checkID,
				TTL:                            ttl.String(),
				DeregisterCriticalServiceAfter: (time.Duration(deregister) * time.Minute).String(),
			},
		},
		interval: max(ttl/3, 100*time.Millisecond),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// ID is the consul service id.
func (r *Registration) ID() string {
	return r.reg.ID
}

// Start registers and begins heartbeating. A failed first registration is
// logged and retried by the heartbeat.
func (r *Registration) Start() {
	if err := r.register(); err != nil {
		log.Warn().Err(err).Str("service", r.reg.Name).Msg("initial registration failed")
	}
	go r.heartbeatLoop()
}

// Stop ends the heartbeat and deregisters the instance.
func (r *Registration) Stop() error {
	close(r.stopCh)
	<-r.done
	if err := r.client.Agent().ServiceDeregister(r.reg.ID); err != nil {
		return fmt.Errorf("deregister %s: %w", r.reg.ID, err)
	}
	log.Info().Str("id", r.reg.ID).Msg("deregistered from consul")
	return nil
}

func (r *Registration) register() error {
	if err := r.client.Agent().ServiceRegister(r.reg); err != nil {
		return fmt.Errorf("register %s: %w", r.reg.ID, err)
	}
	if err := r.pass(); err != nil {
		return err
	}
	log.Info().Str("id", r.reg.ID).Str("addr", r.reg.Address).Int("port", r.reg.Port).Msg("registered with consul")
	return nil
}

func (r *Registration) pass() error {
	return r.client.Agent().UpdateTTL(r.checkID, "serving", api.HealthPassing)
}

func (r *Registration) heartbeatLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.pass(); err != nil {
				metrics.IncrCounterWithGroup("discovery", "heartbeat_failure_total", 1)
				// the agent may have lost us, e.g. after a restart
				log.Warn().Err(err).Msg("heartbeat failed, re-registering")
				if err := r.register(); err != nil {
					log.Warn().Err(err).Msg("re-register failed")
				}
			}
		}
	}
}

// Resolver looks up healthy instances.
type Resolver struct {
	client *api.Client
}

func NewResolver(cfg *DiscoveryCfg) (*Resolver, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Resolver{client: client}, nil
}

// Resolve returns host:port of the first passing instance of service.
func (r *Resolver) Resolve(service string) (string, error) {
	entries, _, err := r.client.Health().Service(service, "", true, nil)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", service, err)
	}
	for _, e := range entries {
		if e.Service == nil {
			continue
		}
		host := e.Service.Address
		if host == "" && e.Node != nil {
			host = e.Node.Address
		}
		if host == "" {
			continue
		}
		return net.JoinHostPort(host, strconv.Itoa(e.Service.Port)), nil
	}
	return "", fmt.Errorf("%w for %s", ErrNoInstance, service)
}
