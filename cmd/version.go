package cmd

import (
	"fmt"

	"github.com/smazurov/zba/internal/version"
	"github.com/spf13/cobra"
)

func createVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "zba %s\n", info.Version)
			fmt.Fprintf(out, "commit:   %s\n", info.GitCommit)
			fmt.Fprintf(out, "built:    %s\n", info.BuildDate)
			fmt.Fprintf(out, "go:       %s %s\n", info.GoVersion, info.Platform)
		},
	}
}
