package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func newControlCommands(ctx *commandContext) []*cobra.Command {
	var soft bool
	reloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Restart the workers and reread the configuration",
		Long: "Send SIGHUP to the running supervisor, which stops every worker, reloads\n" +
			"the configuration and starts fresh workers. With --soft the supervisor\n" +
			"receives SIGUSR1 and asks each worker to reload in place.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sig := unix.SIGHUP
			if soft {
				sig = unix.SIGUSR1
			}
			return signalSupervisor(cmd, ctx, sig, "Reload requested")
		},
	}
	reloadCmd.Flags().BoolVar(&soft, "soft", false, "Ask workers to reload without restarting them")

	var force bool
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the supervisor and its workers",
		Long: "Send SIGINT to the running supervisor so workers finish their current\n" +
			"item before exiting. With --force SIGTERM is sent and workers are terminated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sig := unix.SIGINT
			if force {
				sig = unix.SIGTERM
			}
			return signalSupervisor(cmd, ctx, sig, "Stop requested")
		},
	}
	stopCmd.Flags().BoolVarP(&force, "force", "f", false, "Terminate workers instead of waiting for them")

	return []*cobra.Command{reloadCmd, stopCmd}
}

func signalSupervisor(cmd *cobra.Command, ctx *commandContext, sig unix.Signal, message string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	pid, err := runningPID(cfg.Paths.PIDFile)
	if errors.Is(err, errNotRunning) {
		fmt.Fprintln(out, "Supervisor is not running")
		return nil
	}
	if err != nil {
		return err
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	fmt.Fprintf(out, "%s (pid %d, %s)\n", message, pid, unix.SignalName(sig))
	return nil
}
