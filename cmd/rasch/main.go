package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rasch/internal/config"
	"rasch/internal/logging"
	"rasch/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Default command flags
	benchmarkMode string
	render        bool
	stepDelay     time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rasch [encoding] [environment] [limit]",
	Short: "rasch - railway scheduling with a Mangle rule-set",
	Long: `rasch encodes a rail environment as facts, lets a Mangle rule-set derive the
movement network, plans collision-free actions for every train and replays them
against the environment.

Run without arguments to solve the configured default encoding and environment.
Use -b all|envs|encs to benchmark encodings against environments.`,
	Args: cobra.MaximumNArgs(3),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runDefault,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Solve timeout per run (default: bench.timeout from config)")

	rootCmd.Flags().StringVarP(&benchmarkMode, "benchmark", "b", "", "Benchmark mode: all, envs or encs")
	rootCmd.Flags().BoolVar(&render, "render", false, "Render every replay step")
	rootCmd.Flags().DurationVar(&stepDelay, "step-delay", 0, "Delay between rendered steps (default: replay.step_delay from config)")

	replayCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print the final state instead of opening the viewer")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to list (0 for all)")
	runsCmd.Flags().BoolVar(&runsSummary, "summary", false, "Show per-encoding summaries")

	rootCmd.AddCommand(instanceCmd)
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// target resolves [encoding] [environment] [limit] against the defaults.
func target(args []string) (encoding, environment string, limit int, err error) {
	encoding, environment, limit = cfg.DefaultEncoding, cfg.DefaultEnvironment, cfg.DefaultLimit
	if len(args) > 0 {
		encoding = args[0]
	}
	if len(args) > 1 {
		environment = args[1]
	}
	if len(args) > 2 {
		limit, err = strconv.Atoi(args[2])
		if err != nil || limit < 1 {
			return "", "", 0, fmt.Errorf("limit must be a positive integer, got %q", args[2])
		}
	}
	return encoding, environment, limit, nil
}

func solveTimeout() time.Duration {
	if timeout > 0 {
		return timeout
	}
	return cfg.GetBenchTimeout()
}

// openStore opens the run database. Failure is logged and yields nil.
func openStore() *store.Store {
	s, err := store.NewStore(cfg.DatabasePath)
	if err != nil {
		logger.Warn("run history disabled", zap.String("path", cfg.DatabasePath), zap.Error(err))
		return nil
	}
	return s
}
