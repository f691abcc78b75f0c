// Package rm implements the subcommand that removes a file or directory.
package rm

import (
	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
)

// New returns the rm command.
func New() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := cmdutil.OpenKernel(cmd)
			if err != nil {
				return err
			}
			defer k.Device.Close()

			return k.FS.Remove(args[0], recursive)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directory contents recursively")
	return cmd
}
