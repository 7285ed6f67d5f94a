package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rasch/internal/pipeline"
	"rasch/internal/watch"
)

// watchCmd re-runs the pipeline on rule-set and environment changes
var watchCmd = &cobra.Command{
	Use:   "watch [encoding] [environment] [limit]",
	Short: "Re-run the pipeline whenever a rule-set or environment changes",
	Args:  cobra.MaximumNArgs(3),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	enc, envName, limit, err := target(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	var opts []pipeline.Option
	if s := openStore(); s != nil {
		defer s.Close()
		opts = append(opts, pipeline.WithStore(s))
	}
	runner := pipeline.NewRunner(cfg, logger, opts...)
	handler := watch.Rerun(runner, enc, envName, limit, logger, func(res *pipeline.Result) {
		printResult(cmd, res)
	})

	w, err := watch.New([]string{cfg.EncodingsPath, cfg.EnvironmentsPath}, handler, logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	defer w.Stop()

	logger.Info("watching for changes, press Ctrl+C to stop",
		zap.String("encoding", enc),
		zap.String("environment", envName))
	<-ctx.Done()
	return nil
}
