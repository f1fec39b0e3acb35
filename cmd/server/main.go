// Command hopnet-server runs the level server: it accepts game clients,
// stores submitted levels and keeps per-level scoreboards.
package main

import (
	"context"
	"errors"
	stdnet "net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/lcx/hopnet/async"
	"github.com/lcx/hopnet/config"
	"github.com/lcx/hopnet/console"
	"github.com/lcx/hopnet/discovery"
	"github.com/lcx/hopnet/handler"
	"github.com/lcx/hopnet/log"
	"github.com/lcx/hopnet/metrics"
	"github.com/lcx/hopnet/namecheck"
	"github.com/lcx/hopnet/net"
	"github.com/lcx/hopnet/server"
	"github.com/lcx/hopnet/store"
)

func main() {
	configDir := pflag.StringP("config", "c", "./configs", "configuration directory")
	env := pflag.StringP("env", "e", "development", "configuration environment subdirectory")
	dataDir := pflag.String("data", "", "level data directory, overrides store.dataDir")
	port := pflag.IntP("port", "p", -1, "listen port, overrides net.port")
	noConsole := pflag.Bool("no-console", false, "do not read commands from stdin")
	pflag.Parse()

	cm := config.NewConfigManager()
	cm.SetBasePath(*configDir)
	cm.SetEnvironment(*env)
	defer cm.Close()

	if err := log.InitializeWithConfigManager(cm); err != nil {
		log.Warn().Err(err).Msg("logger config unavailable, using console logger")
	}
	defer log.Close()

	serverCfg := server.DefaultServerCfg()
	netCfg := net.DefaultNetCfg()
	storeCfg := &store.StoreCfg{DataDir: "./data"}
	nameCfg := &namecheck.NameCfg{}
	metricsCfg := &metrics.PrometheusReporterConfig{}
	discoveryCfg := &discovery.DiscoveryCfg{}
	for _, c := range []config.Config{serverCfg, netCfg, storeCfg, nameCfg, metricsCfg, discoveryCfg} {
		loadSection(cm, c)
	}
	if *dataDir != "" {
		storeCfg.DataDir = *dataDir
	}
	if *port >= 0 {
		netCfg.Port = *port
	}

	if err := run(cm, serverCfg, netCfg, storeCfg, nameCfg, metricsCfg, discoveryCfg, !*noConsole); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		log.Close()
		os.Exit(1)
	}
}

// loadSection overlays the named yaml file on c's defaults.
func loadSection(cm config.ConfigManager, c config.Config) {
	if err := cm.LoadConfigOrDefault(c.GetName(), c); err != nil {
		log.Warn().Str("section", c.GetName()).Err(err).Msg("using default config")
	}
}

func run(
	cm config.ConfigManager,
	serverCfg *server.ServerCfg,
	netCfg *net.NetCfg,
	storeCfg *store.StoreCfg,
	nameCfg *namecheck.NameCfg,
	metricsCfg *metrics.PrometheusReporterConfig,
	discoveryCfg *discovery.DiscoveryCfg,
	withConsole bool,
) (err error) {
	levels, err := store.New(afero.NewOsFs(), storeCfg)
	if err != nil {
		return err
	}

	runner := async.NewRunner(serverCfg.AsyncWorkers)
	defer runner.Close()

	mgr := server.NewManager(netCfg)
	if err := mgr.Start(); err != nil {
		return err
	}
	defer func() {
		if stopErr := mgr.Stop(); stopErr != nil {
			err = multierror.Append(err, stopErr)
		}
	}()
	cm.AddChangeListener(mgr.Listener())

	if metricsCfg.HTTPListenAddr != "" {
		reporter := metrics.NewPrometheusReporter(metricsCfg)
		if err := reporter.Start(); err != nil {
			return err
		}
		defer func() {
			if stopErr := reporter.Stop(); stopErr != nil {
				err = multierror.Append(err, stopErr)
			}
		}()
	}

	if discoveryCfg.Enabled {
		reg, regErr := register(discoveryCfg, serverCfg.ServiceName, netCfg.Host, mgr.Addr())
		if regErr != nil {
			return regErr
		}
		defer func() {
			if stopErr := reg.Stop(); stopErr != nil {
				err = multierror.Append(err, stopErr)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if withConsole {
		c := console.New(stop)
		go func() {
			if err := c.Run(os.Stdin); err != nil {
				log.Warn().Err(err).Msg("console input closed")
			}
		}()
	}

	h := handler.New(mgr, runner, levels, namecheck.NewProfanityFilter(nameCfg))
	loop := server.NewLoop(mgr, runner, h.Handle, serverCfg.TickRate)

	log.Info().Str("addr", mgr.Addr().String()).Int("tickRate", serverCfg.TickRate).Str("data", storeCfg.DataDir).Msg("server running")
	loop.Run(ctx)
	log.Info().Msg("server stopping")

	// let in-flight store work finish and deliver its replies
	runner.Wait()
	loop.Tick()
	runner.Wait()
	return nil
}

func register(cfg *discovery.DiscoveryCfg, name, host string, addr stdnet.Addr) (*discovery.Registration, error) {
	tcp, ok := addr.(*stdnet.TCPAddr)
	if !ok {
		return nil, errors.New("listener has no tcp address")
	}
	reg, err := discovery.NewRegistration(cfg, name, host, tcp.Port)
	if err != nil {
		return nil, err
	}
	reg.Start()
	return reg, nil
}
