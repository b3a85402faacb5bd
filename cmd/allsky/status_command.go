package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"allsky/internal/config"
	"allsky/internal/deps"
	"allsky/internal/preflight"
	"allsky/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show supervisor and task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Supervisor", colorize) {
					fmt.Fprintln(out, line)
				}
				pid, err := runningPID(cfg.Paths.PIDFile)
				switch {
				case err == nil:
					fmt.Fprintln(out, renderStatusLine("Process", statusOK, "running (pid "+strconv.Itoa(pid)+")", colorize))
				case errors.Is(err, errNotRunning):
					fmt.Fprintln(out, renderStatusLine("Process", statusWarn, "not running", colorize))
				default:
					fmt.Fprintln(out, renderStatusLine("Process", statusError, err.Error(), colorize))
				}

				for _, item := range []struct{ label, key string }{
					{"Run ID", queue.KeyRunID},
					{"Config", queue.KeyConfigPath},
					{"Config level", queue.KeyConfigLevel},
				} {
					value, ok, err := store.GetState(cmd.Context(), item.key)
					if err != nil {
						return err
					}
					if !ok || value == "" {
						value = "-"
					}
					fmt.Fprintln(out, renderValueLine(item.label, value))
				}
				if value, ok, err := store.GetState(cmd.Context(), queue.KeyConfigLevel); err == nil && ok && value != config.Level {
					fmt.Fprintln(out, renderStatusLine("Config level", statusWarn, "expected "+config.Level, colorize))
				}
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Paths", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					kind := statusOK
					if !result.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Scripts", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, status := range deps.CheckBinaries(deps.RoleScripts(cfg)) {
					fmt.Fprintln(out, renderStatusLine(status.Name, scriptStatusKind(status), status.Detail, colorize))
				}
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Tasks", colorize) {
					fmt.Fprintln(out, line)
				}
				stats, err := store.TaskStats(cmd.Context())
				if err != nil {
					return err
				}
				for _, state := range queue.States() {
					fmt.Fprintln(out, renderValueLine(string(state), strconv.Itoa(stats[state])))
				}
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Notifications", colorize) {
					fmt.Fprintln(out, line)
				}
				active, err := store.ActiveNotifications(cmd.Context(), timeNow())
				if err != nil {
					return err
				}
				if len(active) == 0 {
					fmt.Fprintln(out, renderStatusLine("Active", statusOK, "none", colorize))
					return nil
				}
				for _, n := range active {
					fmt.Fprintln(out, renderStatusLine(string(n.Category), statusWarn, n.Message, colorize))
				}
				return nil
			})
		},
	}
}

func scriptStatusKind(status deps.Status) statusKind {
	switch {
	case status.Available:
		return statusOK
	case status.Command == "":
		return statusInfo
	case status.Optional:
		return statusWarn
	default:
		return statusError
	}
}
