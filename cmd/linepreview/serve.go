package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"linepreview/internal/bus"
	"linepreview/internal/channel"
	"linepreview/internal/config"
	"linepreview/internal/domain"
	"linepreview/internal/host/acme"
	"linepreview/internal/metrics"
	"linepreview/internal/preview"
)

const shutdownTimeout = 10 * time.Second

// hostFactory builds an editor host channel on the shared service and bus.
type hostFactory func(svc *preview.Service, events *bus.EventBus) (domain.Channel, error)

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live preview editor over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Web.Host = host
			}
			if port != 0 {
				cfg.Web.Port = port
			}
			return runChannels(cfg, true, nil)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default: web.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: web.port)")
	return cmd
}

func watchCmd() *cobra.Command {
	var (
		winID  int
		output string
		serve  bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow an acme window and keep its preview current",
		Long: `Attaches to the acme window named by --winid (or $winid when run from
acme), adds a Preview command to its tag and rewrites the preview page on
every edit. With --serve the web editor also streams the window's previews.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if winID == 0 {
				if winID, err = acme.WinIDFromEnv(); err != nil {
					return err
				}
			}
			if output != "" {
				cfg.Watch.OutputPath = config.ExpandPath(output)
			}

			win, err := acme.OpenWindow(winID)
			if err != nil {
				return err
			}
			logger.Info("watching acme window", "id", winID, "output", cfg.Watch.OutputPath)
			return runChannels(cfg, serve, func(svc *preview.Service, events *bus.EventBus) (domain.Channel, error) {
				return acme.NewWatcher(acme.WatcherConfig{
					Window:     win,
					Service:    svc,
					Events:     events,
					OutputPath: cfg.Watch.OutputPath,
					Debounce:   time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
					Logger:     logger,
				})
			})
		},
	}
	cmd.Flags().IntVar(&winID, "winid", 0, "acme window id (default: $winid)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "preview page path (default: watch.outputPath)")
	cmd.Flags().BoolVar(&serve, "serve", false, "also serve the web editor")
	return cmd
}

// runChannels wires the event bus, metrics and preview service, starts the
// web channel (when web is set) and the host built by newHost, and blocks
// until a signal arrives or a channel exits.
func runChannels(cfg *config.Config, web bool, newHost hostFactory) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := bus.NewEventBus(logger)
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	svc, err := newService(cfg, pageFromConfig(cfg.Preview), events, collector)
	if err != nil {
		return err
	}
	stopListening := svc.Listen()
	defer stopListening()

	var channels []domain.Channel
	if web {
		channels = append(channels, channel.NewWeb(channel.WebConfig{
			Host:       cfg.Web.Host,
			Port:       cfg.Web.Port,
			Logger:     logger,
			Config:     cfg,
			ConfigPath: resolveConfigPath(),
			Version:    version,
			Service:    svc,
			Events:     events,
			Metrics:    collector,
		}))
	}
	if newHost != nil {
		h, err := newHost(svc, events)
		if err != nil {
			return err
		}
		channels = append(channels, h)
	}
	if len(channels) == 0 {
		return fmt.Errorf("nothing to run")
	}

	errs := make(chan error, len(channels))
	for _, ch := range channels {
		go func() {
			err := ch.Start(ctx)
			if err != nil {
				err = fmt.Errorf("%s: %w", ch.Name(), err)
			}
			logger.Info("channel stopped", "channel", ch.Name())
			errs <- err
		}()
	}
	logger.Info("linepreview started. Press Ctrl+C to stop.")

	// The first channel to exit (or a signal) ends the run.
	var result *multierror.Error
	running := len(channels)
	select {
	case <-ctx.Done():
	case err := <-errs:
		running--
		result = multierror.Append(result, err)
	}
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, ch := range channels {
		if err := ch.Stop(); err != nil {
			logger.Debug("channel stop", "channel", ch.Name(), "err", err)
		}
	}
	for ; running > 0; running-- {
		select {
		case err := <-errs:
			result = multierror.Append(result, err)
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timed out, forcing exit")
			return multierror.Append(result, fmt.Errorf("shutdown timed out")).ErrorOrNil()
		}
	}
	logger.Info("shutdown complete")
	return result.ErrorOrNil()
}
