// Command medallion runs the warehouse ETL and serves its search index.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion"
	"github.com/cognicore/medallion/pkg/medallion/config"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	viper      *viper.Viper
	cfg        config.Config
	log        *zap.Logger
	registry   *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{viper: viper.New(), registry: prometheus.NewRegistry()}

	root := &cobra.Command{
		Use:           "medallion",
		Short:         "Bronze/silver/gold warehouse ETL with search sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.String("driver", "", "warehouse driver: postgres, mysql or sqlite")
	flags.String("database-url", "", "warehouse connection string")
	_ = a.viper.BindPFlag("warehouse.driver", flags.Lookup("driver"))
	_ = a.viper.BindPFlag("warehouse.url", flags.Lookup("database-url"))

	root.AddCommand(
		newRunCmd(a),
		newSearchCmd(a),
		newRetireCmd(a),
		newReindexCmd(a),
		newSchemaCmd(a),
		newRunsCmd(a),
		newScheduleCmd(a),
	)
	return root
}

// load reads the file, overlays environment and flags, then validates.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := config.BindEnv(a.viper); err != nil {
		return err
	}
	cfg.ApplyViper(a.viper)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// service builds the medallion service from the loaded configuration.
func (a *app) service(ctx context.Context) (*medallion.Medallion, error) {
	return medallion.New(ctx, medallion.Options{
		Config:     a.cfg,
		Logger:     a.log,
		Registerer: a.registry,
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "medallion:", err)
		stop()
		os.Exit(1)
	}
}
