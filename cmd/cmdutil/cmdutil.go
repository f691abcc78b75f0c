// Package cmdutil holds the plumbing the subcommands share: flag lookup,
// logger construction, and opening the kernel over an existing image.
package cmdutil

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/pkg/disk"
	"github.com/ha1tch/minikern/pkg/kernel"
)

// Logger builds a logger honoring the root --debug flag.
func Logger(cmd *cobra.Command) logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if f := cmd.Flag("debug"); f != nil && f.Value.String() == "true" {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// ImagePath returns the root --image flag.
func ImagePath(cmd *cobra.Command) string {
	return cmd.Flag("image").Value.String()
}

// OpenKernel opens the disk image named by the root flags and assembles a
// kernel over it without formatting.
func OpenKernel(cmd *cobra.Command) (*kernel.Kernel, error) {
	log := Logger(cmd)
	dev, err := disk.Open(ImagePath(cmd), log)
	if err != nil {
		return nil, err
	}
	return kernel.New(dev, false, os.Stdout, log)
}
