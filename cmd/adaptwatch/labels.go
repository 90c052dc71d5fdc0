package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// minTrainingLabels is the smallest dataset the classifier job accepts.
const minTrainingLabels = 10

func labelsCMD(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Inspect the labeled dataset",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print label counts per verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := labels.Open(a.cfg.Storage.LabelsDir, labels.WithLogger(a.logger))
			if err != nil {
				return err
			}
			st, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "directory\t%s\n", store.Dir())
			fmt.Fprintf(w, "partitions\t%d\n", st.Partitions)
			for _, v := range []labels.Verdict{labels.Approve, labels.Reject, labels.Never} {
				fmt.Fprintf(w, "%s\t%d\n", v, st.ByVerdict[v])
			}
			fmt.Fprintf(w, "total\t%d\n", st.Total)

			if a.cfg.Storage.Postgres.Enabled() {
				mirror, err := labels.OpenPostgresMirror(cmd.Context(), a.cfg.Storage.Postgres.URL)
				if err != nil {
					a.logger.Warn("postgres label mirror unavailable", zap.Error(err))
				} else {
					defer mirror.Close()
					counts, err := mirror.Count(cmd.Context())
					if err != nil {
						a.logger.Warn("count mirror rows", zap.Error(err))
					} else {
						total := 0
						for _, n := range counts {
							total += n
						}
						fmt.Fprintf(w, "mirror total\t%d\n", total)
					}
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if st.Total < minTrainingLabels {
				fmt.Fprintf(cmd.OutOrStdout(), "note: training needs at least %d labels\n", minTrainingLabels)
			}
			return nil
		},
	})
	return cmd
}
