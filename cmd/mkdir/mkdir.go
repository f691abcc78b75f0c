// Package mkdir implements the subcommand that makes a directory.
package mkdir

import (
	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
)

// New returns the mkdir command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create an empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := cmdutil.OpenKernel(cmd)
			if err != nil {
				return err
			}
			defer k.Device.Close()

			return k.FS.Mkdir(args[0])
		},
	}
}
