package discovery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent serves the handful of consul agent endpoints used here.
type fakeAgent struct {
	mu           sync.Mutex
	services     map[string]api.AgentServiceRegistration
	registers    int
	ttlUpdates   int
	deregistered []string
	forgetTTL    bool
}

func newFakeAgent(t *testing.T) (*fakeAgent, string) {
	t.Helper()
	a := &fakeAgent{services: map[string]api.AgentServiceRegistration{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/agent/service/register", func(w http.ResponseWriter, r *http.Request) {
		var reg api.AgentServiceRegistration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.mu.Lock()
		a.services[reg.ID] = reg
		a.registers++
		a.forgetTTL = false
		a.mu.Unlock()
	})
	mux.HandleFunc("/v1/agent/check/update/", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.forgetTTL {
			http.Error(w, "unknown check", http.StatusNotFound)
			return
		}
		a.ttlUpdates++
	})
	mux.HandleFunc("/v1/agent/service/deregister/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/agent/service/deregister/")
		a.mu.Lock()
		delete(a.services, id)
		a.deregistered = append(a.deregistered, id)
		a.mu.Unlock()
	})
	mux.HandleFunc("/v1/health/service/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/v1/health/service/")
		a.mu.Lock()
		var out []api.ServiceEntry
		for _, s := range a.services {
			if s.Name == name {
				out = append(out, api.ServiceEntry{
					Node:    &api.Node{Address: "10.0.0.9"},
					Service: &api.AgentService{ID: s.ID, Service: s.Name, Address: s.Address, Port: s.Port},
				})
			}
		}
		a.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Consul-Index", "1")
		w.Header().Set("X-Consul-LastContact", "0")
		w.Header().Set("X-Consul-KnownLeader", "true")
		_ = json.NewEncoder(w).Encode(out)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return a, srv.Listener.Addr().String()
}

func (a *fakeAgent) snapshot() (registers, ttlUpdates int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registers, a.ttlUpdates
}

func TestRegisterResolveDeregister(t *testing.T) {
	agent, addr := newFakeAgent(t)
	cfg := &DiscoveryCfg{Enabled: true, ConsulAddr: addr, TTLSec: 1}

	reg, err := NewRegistration(cfg, "hopnet", "192.168.1.5", 7373)
	require.NoError(t, err)
	assert.Equal(t, "hopnet-192.168.1.5:7373", reg.ID())
	reg.Start()

	agent.mu.Lock()
	got := agent.services[reg.ID()]
	agent.mu.Unlock()
	assert.Equal(t, "hopnet", got.Name)
	assert.Equal(t, 7373, got.Port)
	require.NotNil(t, got.Check)
	assert.Equal(t, "1s", got.Check.TTL)

	res, err := NewResolver(cfg)
	require.NoError(t, err)
	hostPort, err := res.Resolve("hopnet")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.5:7373", hostPort)

	require.NoError(t, reg.Stop())
	agent.mu.Lock()
	assert.Equal(t, []string{reg.ID()}, agent.deregistered)
	agent.mu.Unlock()

	_, err = res.Resolve("hopnet")
	assert.ErrorIs(t, err, ErrNoInstance)
}

func TestHeartbeatReRegistersWhenAgentForgets(t *testing.T) {
	agent, addr := newFakeAgent(t)
	reg, err := NewRegistration(&DiscoveryCfg{Enabled: true, ConsulAddr: addr, TTLSec: 1, ServiceID: "svc-1"}, "hopnet", "127.0.0.1", 7373)
	require.NoError(t, err)
	reg.Start()
	defer reg.Stop()

	require.Eventually(t, func() bool {
		_, ttl := agent.snapshot()
		return ttl >= 2
	}, 3*time.Second, 10*time.Millisecond)

	agent.mu.Lock()
	agent.forgetTTL = true
	agent.mu.Unlock()

	require.Eventually(t, func() bool {
		registers, _ := agent.snapshot()
		return registers >= 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestResolveFallsBackToNodeAddress(t *testing.T) {
	agent, addr := newFakeAgent(t)
	agent.services["x"] = api.AgentServiceRegistration{ID: "x", Name: "hopnet", Port: 9000}

	res, err := NewResolver(&DiscoveryCfg{ConsulAddr: addr})
	require.NoError(t, err)
	hostPort, err := res.Resolve("hopnet")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9:9000", hostPort)
}

func TestDiscoveryCfgValidate(t *testing.T) {
	assert.NoError(t, (&DiscoveryCfg{}).Validate())
	assert.Error(t, (&DiscoveryCfg{Enabled: true}).Validate())
	assert.Error(t, (&DiscoveryCfg{Enabled: true, ConsulAddr: "x"}).Validate())
	assert.NoError(t, (&DiscoveryCfg{Enabled: true, ConsulAddr: "x", TTLSec: 10}).Validate())
}
