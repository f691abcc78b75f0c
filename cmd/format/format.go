// Package format implements the subcommand that initializes a fresh disk
// image with an empty filesystem.
package format

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
	"github.com/ha1tch/minikern/pkg/disk"
	"github.com/ha1tch/minikern/pkg/fs"
)

// New returns the format command.
func New() *cobra.Command {
	var sectors int

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Create a disk image and format an empty filesystem on it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := cmdutil.Logger(cmd)
			path := cmdutil.ImagePath(cmd)

			dev, err := disk.Create(path, sectors, log)
			if err != nil {
				return err
			}
			defer dev.Close()

			if _, err := fs.New(dev, true, log); err != nil {
				os.Remove(path)
				return fmt.Errorf("format %s: %w", path, err)
			}
			fmt.Printf("formatted %s: %d sectors of %d bytes\n", path, sectors, disk.SectorSize)
			return nil
		},
	}
	cmd.Flags().IntVar(&sectors, "sectors", disk.DefaultNumSectors, "number of sectors on the disk")
	return cmd
}
