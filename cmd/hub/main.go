// Command hub hosts the Dezibot coordination hub: access-point
// credentials, the credential beacon and the robot message server.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dezibot/hub/internal/accesspoint"
	"github.com/dezibot/hub/internal/beacon"
	"github.com/dezibot/hub/internal/config"
	"github.com/dezibot/hub/internal/hub"
	"github.com/dezibot/hub/internal/logging"
	"github.com/dezibot/hub/internal/simulator"
	"github.com/dezibot/hub/internal/ws"
)

var log = logging.Package("cmd")

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hub",
		Short:         "Dezibot coordination hub",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		simulate   int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the access point, credential beacon and robot server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if simulate > 0 {
				cfg.Simulator.Robots = simulate
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if err := logging.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "hub.yaml", "path to the config file")
	cmd.Flags().IntVar(&simulate, "simulate", 0, "run N simulated robots instead of a radio beacon")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A provider failure is terminal: no automatic retry, the next start
	// attempt is a new process invocation.
	provider := accesspoint.NewStatic(cfg.AccessPoint.SSID, cfg.AccessPoint.Password)
	creds, err := provider.Start(ctx)
	if err != nil {
		return oops.Wrapf(err, "start access point")
	}
	defer provider.Stop()

	coord := hub.New(hub.Config{EnsureTimeout: cfg.Protocol.EnsureModeTimeout}, nil)
	server := ws.NewServer(cfg.Server, coord, coord.Registry())

	var caster beacon.Broadcaster
	switch {
	case cfg.Simulator.Robots > 0:
		caster = simulator.NewFleet(simulator.Config{
			Robots:     cfg.Simulator.Robots,
			ReplyDelay: cfg.Simulator.ReplyDelay,
			FlakyRate:  cfg.Simulator.FlakyRate,
		})
	case cfg.Beacon.Enabled:
		caster = beacon.NewLogBroadcaster()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	if caster != nil {
		if err := caster.Start(ctx, creds, cfg.Server.Port); err != nil {
			stop()
			g.Wait()
			return oops.Wrapf(err, "start credential broadcast")
		}
		defer caster.Stop()
		events := caster.Events()
		g.Go(func() error {
			pumpBeaconEvents(ctx, events)
			return nil
		})
	}

	log.WithFields(logrus.Fields{
		"at":     "main.serve",
		"addr":   cfg.Server.Host,
		"port":   cfg.Server.Port,
		"robots": cfg.Simulator.Robots,
	}).Info("hub_running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func pumpBeaconEvents(ctx context.Context, events <-chan beacon.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case beacon.Delivered:
				log.WithFields(logrus.Fields{
					"at":     "main.pumpBeaconEvents",
					"device": ev.Device,
				}).Info("credentials_delivered")
			case beacon.Failed:
				log.WithFields(logrus.Fields{
					"at":    "main.pumpBeaconEvents",
					"error": ev.Err,
				}).Warn("credential_broadcast_failed")
			}
		}
	}
}
