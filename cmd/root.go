// Package cmd is the zba command line. Programs register their tasks in a
// task.Registry and hand it to Execute, which also serves the re-executed
// worker and daemon processes of the same binary.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/smazurov/zba/internal/process"
	"github.com/smazurov/zba/pkg/task"
	"github.com/spf13/cobra"
)

// Execute runs the process role selected by the environment: a worker
// child runs its task loop, anything else gets the CLI. It does not return.
func Execute(reg *task.Registry) {
	if process.Role() == process.RoleWorker {
		os.Exit(RunWorker(reg))
	}

	root := NewRootCmd(reg)
	if err := root.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

// NewRootCmd builds the CLI over reg.
func NewRootCmd(reg *task.Registry) *cobra.Command {
	opts := DefaultOptions()

	root := &cobra.Command{
		Use:           "zba",
		Short:         "Single-host process supervisor",
		Long:          "zba keeps pools of worker processes running, restarts them when they exit and scales them on request.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	bindConfigFlag(root, &opts)

	root.AddCommand(
		createStartCmd(reg, &opts),
		createStopCmd(&opts),
		createReloadCmd(&opts),
		createScaleCmd(&opts),
		createStatusCmd(&opts),
		createVersionCmd(),
	)
	return root
}

// printError writes err in red.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "\033[31m%v\033[0m\n", err)
}
