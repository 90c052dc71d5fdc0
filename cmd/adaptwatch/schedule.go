package main

import (
	"github.com/mohammad-safakhou/adaptwatch/internal/scheduler"
	"github.com/spf13/cobra"
)

func scheduleCMD(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the full cycle whenever schedule.cron is due, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateDiscovery(); err != nil {
				return err
			}
			if err := scheduler.Validate(a.cfg.Schedule.Cron); err != nil {
				return err
			}
			ag, err := a.agent(cmd)
			if err != nil {
				return err
			}
			defer ag.Close()

			s := &scheduler.Scheduler{
				Spec:       a.cfg.Schedule.Cron,
				Job:        ag.RunCycle,
				Tick:       a.cfg.Schedule.Tick,
				RunOnStart: a.cfg.Schedule.RunOnStart,
				Locker:     ag.Locker(),
				Logger:     a.logger.Named("scheduler"),
			}
			return s.Run(cmd.Context())
		},
	}
}
