// Package ls implements the subcommand that lists a directory.
package ls

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
)

// New returns the ls command.
func New() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}

			k, err := cmdutil.OpenKernel(cmd)
			if err != nil {
				return err
			}
			defer k.Device.Close()

			return k.FS.List(path, recursive, os.Stdout)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	return cmd
}
