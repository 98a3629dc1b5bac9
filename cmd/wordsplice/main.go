// Command wordsplice finds spoken words in online and local recordings,
// verifies them and splices the best-sounding clips into phrases.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/wordsplice/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "wordsplice: %v\n", err)
		}
		return 1
	}
	return 0
}

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var (
		flags rootFlags
		e     *env
	)
	root := &cobra.Command{
		Use:           "wordsplice",
		Short:         "Find, verify and splice spoken words",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				cfg.LogLevel = config.LogLevel(flags.logLevel)
				if !cfg.LogLevel.IsValid() {
					return fmt.Errorf("invalid --log-level %q", flags.logLevel)
				}
			}
			slog.SetDefault(newLogger(cfg.LogLevel))

			e, err = setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			cmd.SetContext(withEnv(cmd.Context(), e))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if e == nil {
				return nil
			}
			return e.Close(context.WithoutCancel(cmd.Context()))
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to the YAML configuration file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		newResolveCmd(),
		newAcquireCmd(),
		newVerifyCmd(),
		newRankCmd(),
		newAssembleCmd(),
		newCheckCmd(),
	)
	return root
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, config.Validate(cfg)
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return cfg, err
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
