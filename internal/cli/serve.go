package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/spf13/cobra"

	"github.com/tessro/reprise/internal/config"
	"github.com/tessro/reprise/internal/device"
	"github.com/tessro/reprise/internal/librespot"
	"github.com/tessro/reprise/internal/notify"
	"github.com/tessro/reprise/internal/restore"
	"github.com/tessro/reprise/internal/server"
	"github.com/tessro/reprise/internal/session"
	"github.com/tessro/reprise/internal/snapshot"
	"github.com/tessro/reprise/internal/spotify/client"
	"github.com/tessro/reprise/internal/spotify/player"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the playback session",
	Long: `Connects the playback device, restores the last saved playback state,
and serves the control API until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger()
	if err != nil {
		return err
	}
	storage, err := openStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	tokens := newTokenStore(storage, logger)
	tok, err := tokens.Load(ctx)
	if err != nil {
		return err
	}
	if tok == nil {
		return fmt.Errorf("not authenticated with Spotify. Run 'reprise auth login' first")
	}

	api := client.New(tokens,
		client.WithBaseURL(cfg.Spotify.APIBaseURL),
		client.WithLogger(logger.With("component", "spotify")),
	)
	dev := device.NewSession(newRemote(api, logger), logger.With("component", "device"))

	snaps := snapshot.NewStore(storage,
		snapshot.WithStaleness(cfg.Session.StalenessWindow()),
		snapshot.WithLogger(logger.With("component", "snapshot")),
	)

	events := notify.NewSSEServer()
	notifier := newNotifier(events, logger)

	engine := restore.New(api, tokens, snaps, dev,
		restore.WithDelays(restore.Delays{
			AfterReady:    cfg.Session.ReadyDelay(),
			AfterTransfer: cfg.Session.TransferDelay(),
			BeforePause:   cfg.Session.PauseDelay(),
		}),
		restore.WithNotifier(notifier),
		restore.WithLogger(logger.With("component", "restore")),
	)

	opts := session.DefaultOptions()
	opts.FlushInterval = cfg.Session.FlushEvery()
	opts.SyncInterval = cfg.Session.SyncEvery()
	opts.SaveDebounce = cfg.Session.Debounce()
	opts.RetryDelay = cfg.Session.RetryBackoff()
	opts.Logger = logger
	opts.Notifier = notifier
	manager := session.New(dev, api, tokens, snaps, engine, opts)

	srv := server.New(manager, events, cfg.Server.AllowedOrigins, logger.With("component", "server"))
	manager.OnChange(srv.PublishState)

	if err := manager.Start(ctx); err != nil {
		_ = manager.Close(context.Background())
		return fmt.Errorf("failed to start session: %w", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	serveErr := srv.ListenAndServe(ctx, addr)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(serveErr, manager.Close(closeCtx))
}

func newRemote(api *client.Client, logger *slog.Logger) device.Remote {
	switch cfg.Device.Backend {
	case config.BackendWebAPI:
		return player.New(api, player.Options{
			DeviceID:     cfg.Device.ID,
			DeviceName:   cfg.Device.Name,
			PollInterval: cfg.Device.PollEvery(),
			Logger:       logger.With("component", "webapi"),
		})
	default:
		return librespot.New(cfg.Device.LibrespotAddr, logger.With("component", "librespot"))
	}
}

func newNotifier(events *sse.Server, logger *slog.Logger) notify.Sink {
	sinks := notify.Fanout{
		notify.LogSink{Logger: logger.With("component", "notify")},
		notify.NewSSESink(events, logger),
	}
	if cfg.Notify.PushoverToken != "" {
		sinks = append(sinks, notify.NewPushoverSink(cfg.Notify.PushoverToken, cfg.Notify.PushoverRecipient, logger))
	}
	return sinks
}
