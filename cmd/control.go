package cmd

import (
	"fmt"
	"strconv"
	"syscall"
	"time"

	"github.com/smazurov/zba/internal/codec"
	"github.com/smazurov/zba/internal/config"
	"github.com/smazurov/zba/internal/daemon"
	"github.com/smazurov/zba/internal/process"
	"github.com/spf13/cobra"
)

// runningMaster resolves the pid file from the configuration and checks
// that the master it names is alive.
func runningMaster(cmd *cobra.Command, opts *Options) (daemon.PidFile, error) {
	if err := config.LoadConfig(opts, cmd); err != nil {
		return daemon.PidFile{}, err
	}
	return daemon.Running(opts.PidFile)
}

func bindPidFileFlag(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.PidFile, "pid-file", opts.PidFile, "Pid file path")
}

func createStopCmd(opts *Options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf, err := runningMaster(cmd, opts)
			if err != nil {
				return err
			}
			if err := syscall.Kill(pf.PID, syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal master %d: %w", pf.PID, err)
			}
			if !waitExit(pf.PID, timeout) {
				return fmt.Errorf("master %d still running after %s", pf.PID, timeout)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "zba stopped (pid %d)\n", pf.PID)
			return nil
		},
	}
	bindPidFileFlag(cmd, opts)
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the master to exit")
	return cmd
}

func createReloadCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Restart the workers of reloadable tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf, err := runningMaster(cmd, opts)
			if err != nil {
				return err
			}
			if err := syscall.Kill(pf.PID, syscall.SIGUSR1); err != nil {
				return fmt.Errorf("signal master %d: %w", pf.PID, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reload requested")
			return nil
		},
	}
	bindPidFileFlag(cmd, opts)
	return cmd
}

func createScaleCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scale <task> <count>",
		Short: "Change the worker count of a task",
		Long:  "Writes a setProcessCount command to the running master. Counts are clamped to [1, 1000].",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid count %q", args[1])
			}
			pf, err := runningMaster(cmd, opts)
			if err != nil {
				return err
			}
			req := codec.SetProcessCount{TaskName: args[0], Count: codec.ClampCount(count)}
			record, err := req.Encode()
			if err != nil {
				return err
			}
			if err := process.Send(pf.Pipe, record); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scale %s to %d requested\n", req.TaskName, req.Count)
			return nil
		},
	}
	bindPidFileFlag(cmd, opts)
	return cmd
}

func createStatusCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the supervisor is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf, err := runningMaster(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "zba is running")
			fmt.Fprintf(out, "master pid: %d\n", pf.PID)
			fmt.Fprintf(out, "pipe:       %s\n", pf.Pipe)
			return nil
		},
	}
	bindPidFileFlag(cmd, opts)
	return cmd
}

// waitExit polls until pid is gone or timeout passes.
func waitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for daemon.Alive(pid) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return true
}
