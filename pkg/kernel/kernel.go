// Package kernel ties the subsystems together behind one explicit handle
// and exposes the system-call surface user programs consume.
package kernel

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ha1tch/minikern/pkg/disk"
	"github.com/ha1tch/minikern/pkg/fs"
	"github.com/ha1tch/minikern/pkg/machine"
	"github.com/ha1tch/minikern/pkg/sched"
)

// Kernel carries every piece of kernel state: the clock, the interrupt
// controller, the block device, the filesystem, the scheduler, the console
// and the open-file table. There are no package-level singletons; every
// layer receives the handle it needs.
type Kernel struct {
	Stats     *machine.Stats
	Interrupt *machine.Interrupt
	Device    *disk.Device
	FS        *fs.FileSystem
	Sched     *sched.Scheduler

	console io.Writer
	files   *fileTable
	nextTID int
	halted  bool

	log logrus.FieldLogger
}

// New assembles a kernel over an already-open device. With format set,
// the filesystem is initialized first.
func New(dev *disk.Device, format bool, console io.Writer, log logrus.FieldLogger) (*Kernel, error) {
	fsys, err := fs.New(dev, format, log)
	if err != nil {
		return nil, err
	}

	stats := &machine.Stats{}
	interrupt := machine.NewInterrupt()
	k := &Kernel{
		Stats:     stats,
		Interrupt: interrupt,
		Device:    dev,
		FS:        fsys,
		Sched:     sched.New(interrupt, stats, log),
		console:   console,
		files:     newFileTable(),
		nextTID:   1,
		log:       log,
	}
	return k, nil
}

// NewThread allocates a thread control block with the next free id.
func (k *Kernel) NewThread(name string, priority int) *sched.Thread {
	t := sched.NewThread(k.nextTID, name, priority)
	k.nextTID++
	return t
}

// Halted reports whether a user program has requested Halt.
func (k *Kernel) Halted() bool {
	return k.halted
}
