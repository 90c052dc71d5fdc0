package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/agent"
	"github.com/mohammad-safakhou/adaptwatch/internal/inbox"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func repliesCMD(a *app) *cobra.Command {
	var watch bool
	var quiet time.Duration
	cmd := &cobra.Command{
		Use:   "replies",
		Short: "Record verdicts from reviewer replies waiting in the inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateReplies(); err != nil {
				return err
			}
			ag, err := a.agent(cmd)
			if err != nil {
				return err
			}
			defer ag.Close()

			once := func(ctx context.Context) error {
				started := time.Now()
				m := agent.NewMetrics()
				sum, err := ag.RunReplies(ctx, m)
				m.Finish(started, err)
				ag.PushMetrics(ctx, m)
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d replies, %d labels written\n", sum.Processed, len(sum.Records))
				return err
			}
			if err := once(cmd.Context()); err != nil || !watch {
				return err
			}

			mb, ok := ag.Inbox.(*inbox.Maildir)
			if !ok {
				return fmt.Errorf("watch needs a maildir inbox")
			}
			a.logger.Info("watching inbox", zap.String("dir", mb.Dir()))
			return mb.Watch(cmd.Context(), quiet, func(ctx context.Context) {
				if err := once(ctx); err != nil {
					a.logger.Error("reply pass failed", zap.Error(err))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and process replies as they are delivered")
	cmd.Flags().DurationVar(&quiet, "quiet", time.Second, "wait this long after a delivery before processing")
	return cmd
}
