package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"allsky/internal/config"
	"allsky/internal/queue"
)

const timeLayout = "2006-01-02 15:04:05"

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Submit and inspect tasks",
	}
	taskCmd.AddCommand(newTaskAddCommand(ctx))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	return taskCmd
}

func newTaskAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <main|video> <action> [key=value...]",
		Short: "Submit a task for the supervisor to pick up",
		Long: "Submit a task for the supervisor to pick up on its next loop.\n\n" +
			"Actions: " + strings.Join(queue.Actions(), ", ") + "\n" +
			"Values are read as integers, floats, booleans or null before falling back to strings.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, ok := queue.ParseQueue(args[0])
			if !ok {
				return fmt.Errorf("unknown queue %q (expected main or video)", args[0])
			}
			payload, err := parsePayload(args[1], args[2:])
			if err != nil {
				return err
			}
			if err := queue.ValidatePayload(q, payload); err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				task, err := store.InsertTask(cmd.Context(), queue.TaskSpec{
					Queue:   q,
					State:   queue.StateManual,
					Payload: payload,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted task %d (%s %s)\n", task.ID, task.Queue, payload.Action())
				return nil
			})
		},
	}
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var states []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter []queue.State
			for _, raw := range states {
				state, ok := queue.ParseState(raw)
				if !ok {
					return fmt.Errorf("unknown state %q", raw)
				}
				filter = append(filter, state)
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				tasks, err := store.ListTasks(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Queue", "State", "Action", "Created", "Updated", "Result"},
					buildTaskRows(tasks, shouldColorize(out)),
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Only list tasks in these states (repeatable)")
	return cmd
}

func buildTaskRows(tasks []*queue.Task, colorize bool) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			string(task.Queue),
			formatState(task.State, colorize),
			task.Payload.Action(),
			task.CreatedAt.Local().Format(timeLayout),
			task.UpdatedAt.Local().Format(timeLayout),
			task.Result,
		})
	}
	return rows
}

// parsePayload builds a payload from the action and key=value pairs.
func parsePayload(action string, pairs []string) (queue.Payload, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, errors.New("action is required")
	}
	payload := queue.Payload{"action": action}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (expected key=value)", pair)
		}
		if key == "action" {
			return nil, errors.New("action is set positionally")
		}
		payload[key] = parseValue(raw)
	}
	return payload, nil
}

func parseValue(raw string) any {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(raw); err == nil {
		return v
	}
	if raw == "null" {
		return nil
	}
	return raw
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format(timeLayout)
}
