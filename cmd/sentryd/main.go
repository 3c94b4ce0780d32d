/**
 * sentryd Entry Point.
 *
 * Bootstraps the detection pipeline end to end: loads configuration,
 * opens storage, builds the rule engine/session tracker/anomaly
 * scorer/correlator/quarantine actuator, wires them into a Pipeline,
 * starts the HTTP control-plane surface, and waits for SIGINT/SIGTERM
 * to quiesce everything in order: a single long-running cobra command
 * that opens storage, starts the pipeline, and serves the admin API.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kleaSCM/sentryd/internal/alert"
	"github.com/kleaSCM/sentryd/internal/anomaly"
	"github.com/kleaSCM/sentryd/internal/capture"
	"github.com/kleaSCM/sentryd/internal/config"
	"github.com/kleaSCM/sentryd/internal/control"
	"github.com/kleaSCM/sentryd/internal/correlator"
	"github.com/kleaSCM/sentryd/internal/enricher"
	"github.com/kleaSCM/sentryd/internal/firewall"
	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/pipeline"
	"github.com/kleaSCM/sentryd/internal/rules"
	"github.com/kleaSCM/sentryd/internal/session"
	"github.com/kleaSCM/sentryd/internal/storage"
	"github.com/kleaSCM/sentryd/internal/telemetry"
)

var (
	flagConfigFile     string
	flagInterface      string
	flagRulesDir       string
	flagDBPath         string
	flagListenAddr     string
	flagDevLog         bool
	flagListInterfaces bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sentryd",
		Short: "Network intrusion detection daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagListInterfaces {
				return capture.PrintInterfaces()
			}
			return run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&flagConfigFile, "config", "", "path to a YAML config file")
	flags.StringVar(&flagInterface, "interface", "", "capture interface (overrides config)")
	flags.StringVar(&flagRulesDir, "rules-dir", "", "rule definitions directory (overrides config)")
	flags.StringVar(&flagDBPath, "db-path", "", "SQLite database path (overrides config)")
	flags.StringVar(&flagListenAddr, "listen-addr", "", "control-plane HTTP listen address (overrides config)")
	flags.BoolVar(&flagDevLog, "dev-log", false, "use human-readable development logging instead of JSON")
	flags.BoolVar(&flagListInterfaces, "list-interfaces", false, "print available capture interfaces and exit")

	return cmd
}

func run(cmd *cobra.Command) error {
	cfg, err := config.Load(flagConfigFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(&cfg)

	log, err := telemetry.NewLogger(flagDevLog)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting sentryd",
		zap.String("interface", cfg.Interface),
		zap.String("rules_dir", cfg.RulesDir),
		zap.String("db_path", cfg.DBPath),
	)

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	sink, err := storage.NewSQLiteSink(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer sink.Close()
	if err := sink.Migrate(); err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}

	engine, err := rules.New(cfg.RulesDir, log, metrics)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	defer engine.Close()

	tracker := session.New(cfg.Session.IdleTimeout)
	scorer := buildScorer(cfg.Anomaly)
	actuator, err := buildActuator(cfg.Firewall)
	if err != nil {
		return fmt.Errorf("build firewall actuator: %w", err)
	}

	corr := correlator.New(cfg.Correlator.EmitOnEveryMatch, func(ca models.CorrelationAlert) {
		if err := sink.SaveCorrelationAlert(&ca); err != nil {
			log.Error("save correlation alert", zap.Error(err))
		}
	})

	router := alert.New(sink, log, corr, actuator, metrics)
	source := capture.NewPcapSource(capture.DefaultPcapConfig(cfg.Interface))

	pl := pipeline.New(source, tracker, engine, scorer, router, corr, metrics, log, pipeline.Config{
		Workers:       cfg.Queue.Workers,
		QueueCapacity: cfg.Queue.Capacity,
		SessionIdle:   cfg.Session.IdleTimeout,
		SweepEvery:    cfg.Session.SweepEvery,
	})

	geoSvc, err := enricher.NewGeoIPService(cfg.GeoIP.CityDBPath, cfg.GeoIP.ASNDBPath)
	if err != nil {
		log.Warn("geoip disabled", zap.Error(err))
		geoSvc = nil
	} else {
		defer geoSvc.Close()
	}

	hooks := control.New(engine, pl)
	server := control.NewServer(hooks, sink, registry, cfg, geoSvc, enricher.GetDNSResolver())
	muxRouter := mux.NewRouter()
	server.RegisterRoutes(muxRouter)
	httpSrv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: muxRouter}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipelineDone := make(chan error, 1)
	go func() { pipelineDone <- pl.Run(ctx) }()

	httpDone := make(chan error, 1)
	go func() {
		log.Info("control-plane HTTP listening", zap.String("addr", cfg.HTTP.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpDone <- err
			return
		}
		httpDone <- nil
	}()

	sweepStop := make(chan struct{})
	go runBanSweeper(ctx, actuator, log, sweepStop)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-pipelineDone:
		if err != nil {
			log.Error("pipeline exited", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := pl.Quiesce(shutdownCtx); err != nil {
		log.Error("pipeline quiesce", zap.Error(err))
	}
	close(sweepStop)

	log.Info("sentryd stopped")
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if flagInterface != "" {
		cfg.Interface = flagInterface
	}
	if flagRulesDir != "" {
		cfg.RulesDir = flagRulesDir
	}
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	if flagListenAddr != "" {
		cfg.HTTP.ListenAddr = flagListenAddr
	}
}

func buildScorer(cfg config.AnomalyConfig) anomaly.Scorer {
	if !cfg.Enabled {
		return anomaly.NullScorer{}
	}
	return anomaly.NewBaselineScorer(cfg.MinSamples, cfg.ZThreshold)
}

func buildActuator(cfg config.FirewallConfig) (firewall.Actuator, error) {
	switch cfg.Transport {
	case "ssh":
		return firewall.NewRemoteActuator(cfg.BanTime, firewall.SSHConfig{
			Host:     cfg.SSH.Host,
			Port:     cfg.SSH.Port,
			Username: cfg.SSH.Username,
			Password: cfg.SSH.Password,
			KeyFile:  cfg.SSH.KeyFile,
		})
	default:
		return firewall.NewLocalActuator(cfg.BanTime), nil
	}
}

// runBanSweeper periodically unbans IPs whose quarantine window has
// elapsed, mirroring the session/correlator sweepers' own ticker shape.
func runBanSweeper(ctx context.Context, actuator firewall.Actuator, log *zap.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			for _, ip := range actuator.SweepExpired() {
				log.Info("quarantine expired", zap.String("src_ip", ip))
			}
		}
	}
}
