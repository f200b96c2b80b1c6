package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/pipeline"
)

var errRunFailed = errors.New("run failed")

func newRunCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one full ETL run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			res := svc.Run(cmd.Context())
			out := map[string]any{"status": res.Status, "message": res.Message}
			if verbose {
				out["run_id"] = res.RunID
				out["stages"] = res.Stages
				out["files"] = res.Files.Summary()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(out); err != nil {
				return err
			}
			if res.Status != pipeline.StatusSuccess {
				a.log.Error("run failed", zap.String("run", res.RunID), zap.String("message", res.Message))
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include run id, stage timings and file outcomes")
	return cmd
}
