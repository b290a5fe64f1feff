// cmd/giteakit/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"giteakit/internal/app"
	"giteakit/internal/config"
	"giteakit/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	serverURL  string
	token      string
	verbose    bool

	cfg    *config.Config
	logger = logging.Nop()
	kit    *app.App
)

var rootCmd = &cobra.Command{
	Use:   "giteakit",
	Short: "giteakit works with files in Gitea repositories",
	Long: `giteakit talks to a Gitea server: it checks the server, logs in,
lists organizations and repositories, and reads, writes, diffs and deletes
files. Local edits can be watched and kept as drafts until they are pushed.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// setup loads the config, applies flag overrides and opens the app.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Gitea.Server = serverURL
	}
	if token != "" {
		cfg.Gitea.Token = token
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err = logging.NewLogger(level)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	kit, err = app.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.Database.Path, err)
	}
	return nil
}

// teardown closes what setup opened. Commands that fail skip the post
// run hooks, so it runs after Execute instead.
func teardown() {
	if kit == nil {
		return
	}
	if err := kit.Close(); err != nil {
		logger.Warn("closing database", zap.Error(err))
	}
	kit = nil
	logger.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.Path(), "config file (json, yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Gitea server URL, overrides the config")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "access token, overrides the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	rootCmd.AddCommand(
		pingCmd(),
		loginCmd(),
		whoamiCmd(),
		orgsCmd(),
		reposCmd(),
		fileCmd(),
		watchCmd(),
		draftsCmd(),
		cacheCmd(),
	)
}

func main() {
	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	teardown()
	if err != nil {
		printError(os.Stderr, err)
		logger.Debug("command failed", zap.Error(err))
		os.Exit(1)
	}
}
