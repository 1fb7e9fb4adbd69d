// Command streamplayer runs the DonationAlerts bridge and the local UI
// server. It loads the configuration, wires the bridge controller to the
// push hub and notifiers, and manages graceful shutdown via OS signals.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Fo4Ik-git/StreamPlayer/internal/bridge"
	"github.com/Fo4Ik-git/StreamPlayer/internal/config"
	"github.com/Fo4Ik-git/StreamPlayer/internal/constants"
	"github.com/Fo4Ik-git/StreamPlayer/internal/donationalerts"
	"github.com/Fo4Ik-git/StreamPlayer/internal/logger"
	"github.com/Fo4Ik-git/StreamPlayer/internal/notify"
	"github.com/Fo4Ik-git/StreamPlayer/internal/provider"
	"github.com/Fo4Ik-git/StreamPlayer/internal/server"
	"github.com/Fo4Ik-git/StreamPlayer/internal/transcript"
	"github.com/Fo4Ik-git/StreamPlayer/internal/transport"
)

const banner = `
+--------------------------------------------------+
|       StreamPlayer - DonationAlerts bridge       |
+--------------------------------------------------+
`

// forceExitAfter bounds how long shutdown may take before the process exits.
const forceExitAfter = 30 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to the configuration file")
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	port := flag.Int("port", 0, "Port for the UI server (overrides config and PORT env)")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides config and LOG_LEVEL env)")
	noColor := flag.Bool("no-color", false, "Disable colored output (overrides TTY detection)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath, *configPath == config.DefaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	colored := !*noColor && term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

	rootLog, err := logger.Setup(logger.Config{
		Level:     logger.ParseLevel(cfg.Log.Level),
		FileLevel: logger.ParseLevel(cfg.Log.FileLevel),
		Colored:   colored,
		LogDir:    cfg.Log.Dir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(banner)
	rootLog.Info("Starting StreamPlayer bridge", "config", *configPath)

	if err := run(cfg, rootLog); err != nil {
		rootLog.Error("Bridge failed", "error", err)
		os.Exit(1)
	}
	rootLog.Info("Goodbye!")
}

func run(cfg *config.Config, rootLog *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := notify.NewDispatcher(cfg.Notifications, rootLog.WithComponent("notify"))
	if notifier.HasNotifiers() {
		rootLog.SetNotifyFunc(notifier.NotifyFunc())
		rootLog.Info("Notifications enabled", "providers", notifier.Names())
	}

	api := donationalerts.NewClient(cfg.DonationAlerts.BaseURL, rootLog.WithComponent("api"))
	dialer := transport.NewDialer(transport.Options{
		PingInterval: cfg.Bridge.PingInterval,
		PongTimeout:  cfg.Bridge.PongTimeout,
	}, rootLog.WithComponent("socket"))

	ctrl := bridge.New(api, bridge.TransportDialer(dialer), bridge.Config{
		SocketURL:            cfg.DonationAlerts.SocketURL,
		HandshakeTimeout:     cfg.Bridge.HandshakeTimeout,
		ReconnectMinDelay:    cfg.Bridge.ReconnectMinDelay,
		ReconnectMaxDelay:    cfg.Bridge.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Bridge.MaxReconnectAttempts,
	}, rootLog.WithComponent("bridge"))

	hub := server.NewHub(cfg.Server.AllowedOrigins, ctrl.StatusUpdate, rootLog.WithComponent("hub"))
	ctrl.AddListener(hub)
	if notifier.HasNotifiers() {
		ctrl.AddListener(notifier)
	}

	fetcher := transcript.NewFetcher(constants.YouTubeURL, cfg.Transcript.Languages, rootLog.WithComponent("transcript"))
	facade := provider.New(ctrl, fetcher, api, provider.Defaults{
		ClientID:     cfg.DonationAlerts.ClientID,
		ClientSecret: cfg.DonationAlerts.ClientSecret,
		RedirectURI:  cfg.DonationAlerts.RedirectURI,
	}, rootLog.WithComponent("provider"))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := server.New(addr, facade, hub, cfg.Server.WebDir, rootLog.WithComponent("server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	rootLog.Info("UI server started", "addr", addr, "web_dir", cfg.Server.WebDir)

	if cfg.DonationAlerts.HasStartupToken() {
		g.Go(func() error {
			da := cfg.DonationAlerts
			res := facade.ConnectWithToken(gctx, da.AccessToken, da.RefreshToken, da.ClientID, da.ClientSecret)
			if !res.Success {
				rootLog.Warn("Startup connection failed", "error", res.Message)
				return nil
			}
			rootLog.Info("Connected at startup", "user", res.UserName)
			return nil
		})
	}

	go func() {
		<-gctx.Done()
		rootLog.Info("Shutting down")
		time.AfterFunc(forceExitAfter, func() {
			rootLog.Error("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		})
	}()

	err := g.Wait()
	notifier.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rootLog.Info("Shutdown complete")
	return nil
}
