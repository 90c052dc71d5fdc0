package main

import (
	"fmt"

	"github.com/mohammad-safakhou/adaptwatch/config"
	"github.com/mohammad-safakhou/adaptwatch/internal/agent"
	"github.com/mohammad-safakhou/adaptwatch/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by subcommands once the root pre-run has loaded
// the configuration.
type app struct {
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
}

func rootCMD() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "adaptwatch",
		Short:         "Find climate adaptation insurance reports and collect reviewer labels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.General.LogLevel, cfg.General.LogFormat)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger.With(zap.String("command", cmd.Name()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(
		runCMD(a),
		discoverCMD(a),
		repliesCMD(a),
		scheduleCMD(a),
		migrateCMD(a),
		labelsCMD(a),
	)
	return root
}

// agent opens the stores. The caller closes the returned agent.
func (a *app) agent(cmd *cobra.Command) (*agent.Agent, error) {
	ag, err := agent.New(cmd.Context(), a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	return ag, nil
}
