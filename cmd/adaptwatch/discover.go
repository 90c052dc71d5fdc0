package main

import (
	"fmt"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/agent"
	"github.com/spf13/cobra"
)

func discoverCMD(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Search for new candidates and email them to the reviewer",
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

			started := time.Now()
			m := agent.NewMetrics()
			rep, err := ag.RunDiscovery(cmd.Context(), m)
			m.Finish(started, err)
			ag.PushMetrics(cmd.Context(), m)
			fmt.Fprintf(cmd.OutOrStdout(), "found %d, notified %d, excluded %d, already sent %d, too old %d, too short %d, fetch failures %d\n",
				rep.Found, len(rep.Notified), rep.Excluded, rep.AlreadyNotified, rep.TooOld, rep.TooShort, rep.FetchFailed)
			return err
		},
	}
}
