package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/ledgerimport/internal/config"
	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	jsonOutput bool
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:   "ledgerimport",
		Short: "Stage and commit sales spreadsheets to the ledger",
		Long: `ledgerimport validates point-of-sale sales exports, stages their rows and
commits them to the service ledger in one transaction.

Uploading is two steps: "stage" checks a file and returns a job ID,
"process" commits that job.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file (default: $"+config.FileEnvVar+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(initDBCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(purgeCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received interrupt signal, shutting down")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	path := cfgFile
	if path == "" {
		path = os.Getenv(config.FileEnvVar)
	}

	loaded, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Logging.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	// Logs go to stderr so --json output stays parseable.
	slog.SetDefault(logging.New(os.Stderr, level, cfg.Logging.Format))
	return nil
}
