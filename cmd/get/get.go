// Package get implements the subcommand that copies a file out of the
// filesystem to the host.
package get

import (
	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
)

// New returns the get command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path> <hostfile>",
		Short: "Copy a file out of the filesystem to the host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := cmdutil.OpenKernel(cmd)
			if err != nil {
				return err
			}
			defer k.Device.Close()

			return k.FS.ExportFile(args[0], args[1])
		},
	}
}
