// Command relay runs the VoiceClear relay server: it sits between the
// browser demo client and the inference backend, owning backend
// configuration, health monitoring, operator notifications, and the
// audio-enhancement task sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/JACKYCCK126/voiceclear-docker/internal/config"
	"github.com/JACKYCCK126/voiceclear-docker/internal/configstore"
	"github.com/JACKYCCK126/voiceclear-docker/internal/inference"
	"github.com/JACKYCCK126/voiceclear-docker/internal/monitor"
	"github.com/JACKYCCK126/voiceclear-docker/internal/notify"
	"github.com/JACKYCCK126/voiceclear-docker/internal/relayapi"
	"github.com/JACKYCCK126/voiceclear-docker/internal/schedule"
	"github.com/JACKYCCK126/voiceclear-docker/internal/task"
)

// backendRequestTimeout bounds upload and status calls to the inference
// backend. Downloads stream past it under their own context.
const backendRequestTimeout = 60 * time.Second

// shutdownGrace is how long in-flight requests get to finish on SIGTERM.
const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the relay configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting relay",
		zap.String("listenAddr", cfg.Server.ListenAddr),
		zap.String("defaultBackend", cfg.Backend.DefaultURL))

	store := configstore.New(cfg.Backend.DefaultURL, cfg.Backend.Description, cfg.Admin.Password)
	scheduler := schedule.NewTickerScheduler()

	ledger := notify.NewCooldownLedger(cfg.Notify.Cooldown(), logger)
	defer ledger.Stop()

	notifier := notify.New(logger, ledger, buildTransports(cfg.Notify, logger)...)

	prober := monitor.NewHTTPProber(cfg.Monitor.ProbeTimeout())
	mon := monitor.New(prober, notifier, scheduler, cfg.Monitor.Interval(), cfg.Monitor.FailureThreshold, logger)
	defer mon.Stop()

	client := inference.NewClient(func() string {
		return store.Get().APIURL
	}, backendRequestTimeout, logger)

	manager, err := task.NewManager(client, mon, store, scheduler,
		cfg.Tasks.PollInterval(), cfg.Tasks.SessionTTL(), logger)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}
	defer manager.Stop()

	uploads := rate.NewLimiter(rate.Limit(float64(cfg.Tasks.UploadsPerMinute)/60.0), cfg.Tasks.UploadBurst)

	api := relayapi.New(store, mon, notifier, manager, client, cfg.Samples, uploads, logger)

	if err := mon.StartMonitoring(cfg.Backend.DefaultURL); err != nil {
		return fmt.Errorf("start monitoring default backend: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("Listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("relay stopped: %w", err)
	}

	logger.Info("Relay stopped cleanly")
	return nil
}

// buildTransports assembles the configured notification transports. A
// misconfigured Discord webhook is logged and skipped rather than fatal, so
// a bad webhook URL cannot keep the relay from serving audio.
func buildTransports(cfg config.NotifyConfig, logger *zap.Logger) []notify.Transport {
	var transports []notify.Transport

	if cfg.Email.Configured() {
		transports = append(transports, notify.NewEmailTransport(cfg.Email))
		logger.Info("Email notifications enabled",
			zap.String("host", cfg.Email.Host), zap.Strings("to", cfg.Email.To))
	}

	if cfg.Discord.Configured() {
		discord, err := notify.NewDiscordTransport(cfg.Discord.WebhookURL)
		if err != nil {
			logger.Error("Invalid Discord webhook, transport disabled", zap.Error(err))
		} else {
			transports = append(transports, discord)
			logger.Info("Discord notifications enabled")
		}
	}

	if len(transports) == 0 {
		logger.Warn("No notification transport configured, alerts will only be logged")
	}
	return transports
}

func buildLogger(level config.LogLevel) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(string(level))
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
