package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/0gfoundation/airdrop-claimer/internal/config"
	"github.com/0gfoundation/airdrop-claimer/internal/workflow"
)

const (
	FlagConfig  = "config"
	FlagWorkers = "workers"
)

var (
	configPath string
	workers    int
)

func main() {
	log := newLogger()
	defer log.Sync() //nolint:errcheck

	rootCmd := &cobra.Command{
		Use:   "claimer",
		Short: "Batch airdrop claimer",
		Long: `Claims an airdrop allocation or sweeps the claimed tokens for every key in
the accounts file. Without a subcommand the action and thread count are asked
for interactively.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(os.Stdin)
			action, n, err := prompt(in, os.Stdout)
			if err != nil {
				return err
			}
			err = execute(action, n, log)
			fmt.Print("Press Enter To Exit..")
			in.ReadString('\n') //nolint:errcheck
			return err
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, FlagConfig, "c", config.DefaultPath, "Path to the JSON settings file")
	rootCmd.PersistentFlags().IntVarP(&workers, FlagWorkers, "w", 1, "Number of accounts processed concurrently")

	rootCmd.AddCommand(
		actionCmd(workflow.ActionClaim, "Claim the allocation of every account", log),
		actionCmd(workflow.ActionTransfer, "Transfer every account's token balance to transfer_to_address", log),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error("claimer failed", zap.Error(err))
		os.Exit(1)
	}
}

func actionCmd(action, short string, log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(action, workers, log)
		},
	}
}

// execute runs one batch and cancels it on SIGINT/SIGTERM.
func execute(action string, n int, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)
	go func() {
		select {
		case <-quit:
			log.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err := run(ctx, configPath, action, n, log)
	return err
}

// newLogger prints "15:04:05 | INFO | caller | message {fields}" lines.
func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.ConsoleSeparator = " | "
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
