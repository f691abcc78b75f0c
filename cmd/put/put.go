// Package put implements the subcommand that copies a host file into the
// filesystem.
package put

import (
	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
)

// New returns the put command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "put <hostfile> <path>",
		Short: "Copy a host file into the filesystem",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := cmdutil.OpenKernel(cmd)
			if err != nil {
				return err
			}
			defer k.Device.Close()

			return k.FS.ImportFile(args[0], args[1])
		},
	}
}
