package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/create"
	"github.com/ha1tch/minikern/cmd/format"
	"github.com/ha1tch/minikern/cmd/fsck"
	"github.com/ha1tch/minikern/cmd/get"
	"github.com/ha1tch/minikern/cmd/ls"
	"github.com/ha1tch/minikern/cmd/mkdir"
	"github.com/ha1tch/minikern/cmd/print"
	"github.com/ha1tch/minikern/cmd/put"
	"github.com/ha1tch/minikern/cmd/rm"
	"github.com/ha1tch/minikern/cmd/sched"
)

func main() {
	root := &cobra.Command{
		Use:           "minikern",
		Short:         "Instructional kernel: hierarchical filesystem and MLFQ scheduler over a disk image",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("image", "disk.img", "disk image file")
	root.PersistentFlags().Bool("debug", false, "enable kernel debug logging")

	root.AddCommand(
		format.New(),
		create.New(),
		mkdir.New(),
		ls.New(),
		rm.New(),
		put.New(),
		get.New(),
		print.New(),
		fsck.New(),
		sched.New(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
