package main

import (
	"github.com/spf13/cobra"
)

func runCMD(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process reviewer replies, then search and notify new candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateDiscovery(); err != nil {
				return err
			}
			ag, err := a.agent(cmd)
			if err != nil {
				return err
			}
			defer ag.Close()
			return ag.RunCycle(cmd.Context())
		},
	}
}
