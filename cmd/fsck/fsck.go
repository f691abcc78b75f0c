// Package fsck implements the subcommand that checks the on-disk
// invariants of a filesystem image.
package fsck

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
	"github.com/ha1tch/minikern/pkg/fs"
)

// New returns the fsck command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Check filesystem consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := cmdutil.OpenKernel(cmd)
			if err != nil {
				return err
			}
			defer k.Device.Close()

			violations, err := fs.NewChecker(k.FS).Check()
			if err != nil {
				return err
			}
			for _, v := range violations {
				fmt.Println(v)
			}
			if len(violations) > 0 {
				return fmt.Errorf("%d consistency violations", len(violations))
			}
			fmt.Println("filesystem is consistent")
			return nil
		},
	}
}
