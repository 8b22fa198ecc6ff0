// PicoChat - terminal client for the virtual assistant chat backend
//
// Runs the full-screen interface by default and falls back to line mode when
// stdin or stdout is not a terminal.
//
// Environment variables:
//   PICOCHAT_CONFIG_JSON        - Full config JSON (alternative to config file)
//   PICOCHAT_BACKEND_BASE_URL   - Backend base URL (overrides config)
//   PICOCHAT_LOG_LEVEL          - debug, info, warn or error

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picochat/pkg/channels"
	"github.com/sipeed/picochat/pkg/chatapi"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

type rootFlags struct {
	configPath string
	baseURL    string
	logLevel   string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "picochat",
		Short:        "Chat with the virtual assistant from your terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			interactive := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
			return run(cmd.Context(), flags, interactive)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath(), "config file (.json or .toml)")
	root.PersistentFlags().StringVar(&flags.baseURL, "url", "", "backend base URL")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "console",
		Short: "Chat in line mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags, false)
		},
	})

	var save bool
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if save {
				if err := config.SaveConfig(flags.configPath, cfg); err != nil {
					return fmt.Errorf("saving config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", flags.configPath)
				return nil
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	configCmd.Flags().BoolVar(&save, "save", false, "write the effective config to --config")
	root.AddCommand(configCmd)

	return root
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.baseURL != "" {
		cfg.Backend.BaseURL = flags.baseURL
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(parent context.Context, flags *rootFlags, interactive bool) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// The screen belongs to the front end, so logs always go to the file.
	if err := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		File:   cfg.LogFilePath(),
		Format: cfg.Log.Format,
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	client, err := chatapi.New(cfg.Backend)
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}

	var ch channels.Channel
	if interactive {
		ch = channels.NewTerminalChannel(cfg, client)
	} else {
		ch = channels.NewConsoleChannel(cfg, client, os.Stdin, os.Stdout)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoCF("main", "Starting picochat", map[string]interface{}{
		"channel":  ch.Name(),
		"base_url": cfg.Backend.BaseURL,
	})

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer stop()
		return ch.Run(egCtx)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		logger.InfoC("main", "Shutting down")
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.ErrorCF("main", "Channel exited with error", map[string]interface{}{
			"channel": ch.Name(),
			"error":   err.Error(),
		})
		return err
	}
	return nil
}
