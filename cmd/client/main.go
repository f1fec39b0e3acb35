// Command hopnet-client is a headless stand-in for the game: it connects,
// checks a player name, lists levels and prints the replies.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/lcx/hopnet/client"
	"github.com/lcx/hopnet/config"
	"github.com/lcx/hopnet/discovery"
	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/message"
	"github.com/lcx/hopnet/net"
)

const tickRate = 60

func main() {
	configDir := pflag.StringP("config", "c", "./configs", "configuration directory")
	env := pflag.StringP("env", "e", "development", "configuration environment subdirectory")
	addr := pflag.StringP("addr", "a", "", "server address, overrides client.serverAddr and discovery")
	name := pflag.StringP("name", "n", "player", "name to check with the server")
	count := pflag.Int("levels", 5, "number of levels to request")
	wait := pflag.Duration("wait", 10*time.Second, "how long to wait for replies")
	pflag.Parse()

	cm := config.NewConfigManager()
	cm.SetBasePath(*configDir)
	cm.SetEnvironment(*env)
	defer cm.Close()

	if err := log.InitializeWithConfigManager(cm); err != nil {
		log.Warn().Err(err).Msg("logger config unavailable, using console logger")
	}
	defer log.Close()

	clientCfg := client.DefaultClientCfg()
	netCfg := net.DefaultNetCfg()
	discoveryCfg := &discovery.DiscoveryCfg{}
	for _, c := range []config.Config{clientCfg, netCfg, discoveryCfg} {
		if err := cm.LoadConfigOrDefault(c.GetName(), c); err != nil {
			log.Warn().Str("section", c.GetName()).Err(err).Msg("using default config")
		}
	}

	target := resolve(*addr, clientCfg, discoveryCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *wait)
	defer cancel()

	if !play(ctx, client.NewManager(clientCfg, netCfg), target, clientCfg.MaxAttempts, *name, *count) {
		log.Close()
		os.Exit(1)
	}
}

func resolve(flagAddr string, cfg *client.ClientCfg, dcfg *discovery.DiscoveryCfg) string {
	if flagAddr != "" {
		return flagAddr
	}
	if !dcfg.Enabled {
		return cfg.ServerAddr
	}
	r, err := discovery.NewResolver(dcfg)
	if err == nil {
		var found string
		if found, err = r.Resolve(cfg.ServiceName); err == nil {
			log.Info().Str("service", cfg.ServiceName).Str("addr", found).Msg("resolved server")
			return found
		}
	}
	log.Warn().Err(err).Str("fallback", cfg.ServerAddr).Msg("discovery failed")
	return cfg.ServerAddr
}

// play queues the requests, then ticks the manager until both replies have
// arrived, the connection fails or ctx ends.
func play(ctx context.Context, nm *client.Manager, addr string, attempts int, name string, count int) bool {
	nm.ConnectToServer(addr, attempts, nil)

	pending := 2
	nm.Send(message.NewCheckName(name))
	client.ListenFor(nm, 0, func(r *message.ConfirmNameMessage) bool {
		if r.Name != name {
			return false
		}
		log.Info().Str("name", r.Name).Bool("allowed", r.IsConfirmed).Msg("name checked")
		pending--
		return true
	})

	nm.Send(message.NewRequestLevels(count, nil))
	client.ListenFor(nm, 0, func(r *message.LevelsMessage) bool {
		log.Info().Strs("levels", r.UUIDs).Msg("levels received")
		pending--
		return true
	})

	nm.SetReplyHandler(func(m message.Message) bool {
		log.Debug().Stringer("kind", m.Kind()).Msg("unexpected reply")
		return true
	})

	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()
	last := time.Now()
	for pending > 0 {
		select {
		case <-ctx.Done():
			log.Warn().Int("pending", pending).Stringer("state", nm.State()).Msg("gave up waiting")
			nm.Disconnect()
			return false
		case now := <-ticker.C:
			nm.Update(now.Sub(last))
			last = now
			if nm.State() == client.FailedConnection {
				return false
			}
		}
	}
	stats := nm.Stats()
	log.Info().Uint64("sent", stats.Sent).Uint64("received", stats.Received).Msg("done")
	nm.Disconnect()
	return true
}
