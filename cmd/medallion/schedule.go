package main

import (
	"context"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/ops"
)

func newScheduleCmd(a *app) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the ETL on the configured cron schedule and serve health, metrics and a run trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			listener, err := net.Listen("tcp", a.cfg.Pipeline.OpsAddress)
			if err != nil {
				return err
			}
			server := ops.NewServer(a.log, listener, svc, a.registry)

			job := func(ctx context.Context) {
				res, ok := server.TryRun(ctx)
				if !ok {
					a.log.Warn("scheduled run skipped, previous run still in progress")
					return
				}
				a.log.Info("scheduled run finished",
					zap.String("run", res.RunID), zap.String("status", res.Status), zap.String("message", res.Message))
			}
			scheduler, err := ops.NewScheduler(ctx, a.log, a.cfg.Pipeline.Schedule, job)
			if err != nil {
				_ = listener.Close()
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()

			a.log.Info("scheduler started",
				zap.String("schedule", a.cfg.Pipeline.Schedule),
				zap.Time("next", scheduler.NextRun()),
				zap.String("ops", listener.Addr().String()))
			if runNow {
				go job(ctx)
			}
			return server.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&runNow, "now", false, "start a run immediately as well")
	return cmd
}
