// Ptgbot is an IRC-resident scheduling assistant for Project Team
// Gathering events.
//
// It sits in one event channel, takes track/user/admin commands, keeps
// the event state in a single JSON document, and serves that document
// plus an iCalendar export over HTTP for the event dashboard.
//
// Usage:
//
//	# Start the bot
//	ptgbot serve --config ptgbot.yaml
//
//	# Configure via environment
//	PTGBOT_IRC_SERVER=irc.oftc.net PTGBOT_IRC_NICK=ptgbot \
//	PTGBOT_IRC_CHANNEL='#openinfra-events' ptgbot serve
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ptgbot/internal/bot"
	"github.com/fyrsmithlabs/ptgbot/internal/config"
	"github.com/fyrsmithlabs/ptgbot/internal/irc"
	"github.com/fyrsmithlabs/ptgbot/internal/logging"
	"github.com/fyrsmithlabs/ptgbot/internal/state"
	"github.com/fyrsmithlabs/ptgbot/internal/web"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ptgbot",
	Short: "IRC scheduling assistant for Project Team Gathering events",
	Long: `ptgbot is an IRC bot that helps track which team is discussing what,
where, during a Project Team Gathering. It records "now" and "next"
announcements per track, books reservable room slots, keeps a message
of the day, and serves the event state and an iCalendar export over
HTTP for the dashboard.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to IRC and serve the event dashboard",
	Long: `Connect to the configured IRC network, join the event channel, and
start the HTTP server that exposes the event state document, the
iCalendar export, health and metrics.

Examples:
  # With a config file
  ptgbot serve --config ptgbot.yaml

  # Environment only
  PTGBOT_IRC_SERVER=irc.oftc.net PTGBOT_IRC_NICK=ptgbot \
  PTGBOT_IRC_CHANNEL='#openinfra-events' ptgbot serve`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ptgbot\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.New(cfg.DB.Filename, logger.Named("state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	processor := bot.New(store, logger.Named("bot"))

	ircClient := irc.New(irc.Config{
		Server:       cfg.IRC.Server,
		Port:         cfg.IRC.Port,
		TLS:          cfg.IRC.TLS,
		Nick:         cfg.IRC.Nick,
		Ident:        cfg.IRC.Ident,
		RealName:     cfg.IRC.RealName,
		SASLLogin:    cfg.IRC.SASLLogin,
		SASLPassword: cfg.IRC.SASLPassword,
		Channel:      cfg.IRC.Channel,
	}, processor, logger.Named("irc"))

	server, err := web.New(web.Config{
		Host:      cfg.HTTP.Host,
		Port:      cfg.HTTP.Port,
		DBPath:    cfg.DB.Filename,
		SourceDir: cfg.HTTP.SourceDir,
	}, logger.Named("web"))
	if err != nil {
		return fmt.Errorf("create web server: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := ircClient.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("irc client: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
