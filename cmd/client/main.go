package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "wirechat",
	Short: "Terminal client for the wirechat server",
	RunE:  runChat,
}

var (
	flagConfig    string
	flagServerURL string
	flagWSURL     string
	flagNick      string
	flagToken     string
	flagCooldown  time.Duration
	flagCachePath string
	flagStatePath string
	flagLogLevel  string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "path to config file")
	flags.StringVar(&flagServerURL, "server-url", "", "REST base URL")
	flags.StringVar(&flagWSURL, "ws-url", "", "WebSocket URL")
	flags.StringVar(&flagNick, "nick", "", "nickname for this session")
	flags.StringVar(&flagToken, "token", "", "session token")
	flags.DurationVar(&flagCooldown, "cooldown", 0, "public room send cooldown")
	flags.StringVar(&flagCachePath, "cache-path", "", "message cache database path")
	flags.StringVar(&flagStatePath, "state-path", "", "session state database path")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(roomsCmd, adminCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration with flag values overriding file and env.
func loadConfig() (config.Config, error) {
	bootLogger := log.New("info")
	cfg, path, err := config.Load(bootLogger, flagConfig)
	if err != nil {
		return cfg, err
	}
	cfg.UpdateFrom(config.Config{
		ServerURL: flagServerURL,
		WSURL:     flagWSURL,
		Nickname:  flagNick,
		Token:     flagToken,
		Cooldown:  flagCooldown,
		CachePath: flagCachePath,
		StatePath: flagStatePath,
		LogLevel:  flagLogLevel,
	})
	bootLogger.Debug().Str("path", path).Msg("config resolved")
	return cfg, nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("server", cfg.ServerURL).Str("nick", cfg.Nickname).Msg("starting wirechat client")
	return application.Run(ctx)
}
