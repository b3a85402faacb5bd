package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"allsky/internal/config"
	"allsky/internal/queue"
)

var timeNow = time.Now

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	notificationsCmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "Inspect and acknowledge operator notifications",
	}

	notificationsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List unexpired, unacknowledged notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				active, err := store.ActiveNotifications(cmd.Context(), timeNow())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(active) == 0 {
					fmt.Fprintln(out, "No active notifications")
					return nil
				}
				rows := make([][]string, 0, len(active))
				for _, n := range active {
					rows = append(rows, []string{
						strconv.FormatInt(n.ID, 10),
						string(n.Category),
						n.Key,
						formatTime(n.CreatedAt),
						formatTime(n.ExpiresAt),
						n.Message,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Category", "Key", "Created", "Expires", "Message"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	})

	notificationsCmd.AddCommand(&cobra.Command{
		Use:   "ack <id>",
		Short: "Acknowledge a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid notification id %q", args[0])
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				if err := store.AckNotification(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged notification %d\n", id)
				return nil
			})
		},
	})

	return notificationsCmd
}
