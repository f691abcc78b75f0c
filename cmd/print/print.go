// Package print implements the subcommand that dumps the filesystem
// metadata: well-known headers, the free map, and the directory tree.
package print

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
)

// New returns the print command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Dump filesystem metadata and contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := cmdutil.OpenKernel(cmd)
			if err != nil {
				return err
			}
			defer k.Device.Close()

			return k.FS.Print(os.Stdout)
		},
	}
}
