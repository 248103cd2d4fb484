// Copyright 2024-2026 Aiku AI

// Command gamerelay links a game server's chat and presence with a
// Mattermost channel or Matrix room.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aiku/gamerelay/pkg/gamelink"
	"github.com/aiku/gamerelay/pkg/matrix"
	"github.com/aiku/gamerelay/pkg/mattermost"
	"github.com/aiku/gamerelay/pkg/relay"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const shutdownTimeout = 30 * time.Second

type options struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "gamerelay",
		Short:         "Relay game chat and presence to Mattermost or Matrix",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(opts.envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelay(cmd.Context(), opts)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the config file, created from the example if missing")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file with secret overrides")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override the configured minimum log level")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the relay (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runRelay(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Load and validate the config file, then exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return checkConfig(cmd.OutOrStdout(), opts)
			},
		},
		&cobra.Command{
			Use:   "example-config",
			Short: "Print the example config",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprint(cmd.OutOrStdout(), relay.ExampleConfig)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "gamerelay %s (commit %s, built %s)\n", Tag, Commit, BuildTime)
			},
		},
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// loadEnvFile loads dotenv overrides. Variables already present in the
// environment win, and a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadConfig(opts *options) (*relay.FileStore, *relay.Config, error) {
	store := &relay.FileStore{Path: opts.configPath}
	cfg, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		level, err := zerolog.ParseLevel(opts.logLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
		}
		cfg.Logging.MinLevel = &level
	}
	if err = cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", opts.configPath, err)
	}
	return store, cfg, nil
}

func checkConfig(out io.Writer, opts *options) error {
	_, cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s is valid: %s remote at %s, default channel %s, %d channel override(s)\n",
		opts.configPath, cfg.Remote.Type, cfg.Remote.ServerURL, cfg.DefaultChannel.RemoteChannel, len(cfg.ChannelOverrides))
	return nil
}

func newRemote(log zerolog.Logger, cfg relay.RemoteConfig) (relay.Remote, error) {
	switch cfg.Type {
	case relay.RemoteMattermost:
		return mattermost.New(log, cfg), nil
	case relay.RemoteMatrix:
		return matrix.New(log, cfg)
	default:
		return nil, fmt.Errorf("unknown remote type %q", cfg.Type)
	}
}

func runRelay(ctx context.Context, opts *options) error {
	store, cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	log := *logger
	zerolog.DefaultContextLogger = logger
	log.Info().Str("version", Tag).Str("commit", Commit).Str("config", opts.configPath).Msg("Starting gamerelay")

	remote, err := newRemote(log, cfg.Remote)
	if err != nil {
		return err
	}
	host := gamelink.New(log, cfg.GameLink)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	linkErr := make(chan error, 1)
	go func() {
		linkErr <- host.ListenAndServe(ctx)
	}()

	r := relay.New(log, cfg, host, remote, store)
	if err = r.Start(ctx); err != nil {
		cancel()
		<-linkErr
		return err
	}
	r.ServeAdminAPI(ctx, cfg.AdminAPI.Listen)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err = <-linkErr:
		log.Error().Err(err).Msg("Game link server stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	r.Stop(shutdownCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("game link: %w", err)
	}
	if linkStopErr := <-linkErr; linkStopErr != nil {
		log.Warn().Err(linkStopErr).Msg("Game link server did not shut down cleanly")
	}
	log.Info().Msg("Stopped")
	return nil
}
