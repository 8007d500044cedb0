package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/zulandar/signalbox/internal/agent"
	"github.com/zulandar/signalbox/internal/config"
	"github.com/zulandar/signalbox/internal/dedup"
	"github.com/zulandar/signalbox/internal/logger"
	"github.com/zulandar/signalbox/internal/otel"
	"github.com/zulandar/signalbox/internal/relay"
	slackadapter "github.com/zulandar/signalbox/internal/telegraph/slack"
)

const (
	connectTimeout  = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook relay",
		Long:  "Starts the HTTP server for Slack Events API and agent webhooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to signalbox config file (optional)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	logger.Setup(cfg)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		_ = telemetry.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	a.telemetry = telemetry

	a.sweeper.Start()
	slog.InfoContext(ctx, "signalbox starting",
		"version", Version,
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"bot_user_id", a.botUserID,
	)

	serveErr := relay.Serve(ctx, relay.ServeOpts{
		Addr:    cfg.Addr(),
		Handler: a.router,
	})

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown incomplete", "error", err)
	}
	return serveErr
}

// app is the wired relay and the background pieces that need stopping.
type app struct {
	router     *gin.Engine
	dispatcher *relay.Dispatcher
	sweeper    *dedup.Sweeper
	telemetry  *otel.Telemetry
	registry   *prometheus.Registry
	botUserID  string
}

// newApp wires the relay from cfg. It calls Slack auth.test to learn the
// bot's own user id.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	poster, err := slackadapter.NewPoster(slackadapter.PosterOpts{
		BotToken:      cfg.Slack.BotToken,
		APIURL:        cfg.Slack.APIURL,
		HTTPTimeout:   cfg.HTTPTimeout,
		RatePerSecond: cfg.Slack.RatePerSecond,
		Burst:         cfg.Slack.Burst,
	})
	if err != nil {
		return nil, err
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := poster.Connect(connectCtx); err != nil {
		return nil, err
	}

	agentClient, err := agent.NewClient(agent.ClientOpts{
		APIKey:      cfg.Agent.APIKey,
		BaseURL:     cfg.Agent.BaseURL,
		AgentID:     cfg.Agent.AgentID,
		HTTPTimeout: cfg.HTTPTimeout,
	})
	if err != nil {
		return nil, err
	}

	slackEvents := dedup.NewSet(dedup.SetOpts{Name: "slack_events", Window: cfg.Dedup.Window})
	agentDeliveries := dedup.NewSet(dedup.SetOpts{Name: "agent_deliveries", Window: cfg.Dedup.Window})
	sweeper, err := dedup.NewSweeper(cfg.Dedup.SweepSchedule, slackEvents, agentDeliveries)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	dispatcher := relay.NewDispatcher(relay.DispatcherOpts{
		Workers:    cfg.Dispatch.Workers,
		QueueSize:  cfg.Dispatch.QueueSize,
		JobTimeout: cfg.Dispatch.ProcessTimeout,
	})

	r, err := relay.New(relay.Opts{
		Agent:              agentClient,
		Poster:             poster,
		SlackSigningSecret: cfg.Slack.SigningSecret,
		AgentWebhookSecret: cfg.Agent.WebhookSecret,
		BotUserID:          poster.BotUserID(),
		SlackEvents:        slackEvents,
		AgentDeliveries:    agentDeliveries,
		Dispatcher:         dispatcher,
		Metrics:            relay.NewMetrics(reg),
		AgentTimeout:       cfg.Dispatch.ProcessTimeout,
	})
	if err != nil {
		_ = dispatcher.Shutdown(ctx)
		return nil, err
	}

	serviceName := ""
	if cfg.OTel.Enabled() {
		serviceName = cfg.OTel.ServiceName
	}

	return &app{
		router:     relay.NewRouter(r, relay.RouterOpts{OTelServiceName: serviceName, Gatherer: reg}),
		dispatcher: dispatcher,
		sweeper:    sweeper,
		registry:   reg,
		botUserID:  poster.BotUserID(),
	}, nil
}

// shutdown drains queued relay work, then stops the sweeper and flushes
// telemetry.
func (a *app) shutdown(ctx context.Context) error {
	err := a.dispatcher.Shutdown(ctx)
	a.sweeper.Stop(ctx)
	return errors.Join(err, a.telemetry.Shutdown(ctx))
}
