// Package create implements the subcommand that makes a fixed-size file.
package create

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
)

// New returns the create command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "create <path> <size>",
		Short: "Create a file of a fixed byte size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := strconv.Atoi(args[1])
			if err != nil || size < 0 {
				return fmt.Errorf("invalid size %q", args[1])
			}

			k, err := cmdutil.OpenKernel(cmd)
			if err != nil {
				return err
			}
			defer k.Device.Close()

			return k.FS.Create(args[0], size)
		},
	}
}
