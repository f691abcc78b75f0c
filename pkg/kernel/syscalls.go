package kernel

import (
	"fmt"
	"io"

	"github.com/ha1tch/minikern/pkg/fs"
)

// The integer results user programs see: 0/1 for status calls, byte
// counts for transfers, -1 for failure.
const (
	SyscallOK   = 1
	SyscallFail = 0
	InvalidID   = -1
)

// fileTable maps small nonnegative identifiers to open files. Identifiers
// are reused lowest-first after Close.
type fileTable struct {
	open map[int]*fs.OpenFile
}

func newFileTable() *fileTable {
	return &fileTable{open: make(map[int]*fs.OpenFile)}
}

func (ft *fileTable) add(f *fs.OpenFile) int {
	for id := 0; ; id++ {
		if _, taken := ft.open[id]; !taken {
			ft.open[id] = f
			return id
		}
	}
}

func (ft *fileTable) get(id int) *fs.OpenFile {
	return ft.open[id]
}

func (ft *fileTable) remove(id int) bool {
	if _, ok := ft.open[id]; !ok {
		return false
	}
	delete(ft.open, id)
	return true
}

// Halt stops the machine at the next opportunity.
func (k *Kernel) Halt() {
	k.log.WithField("tick", k.Stats.TotalTicks()).Info("machine halting")
	k.halted = true
}

// PrintInt writes n to the console.
func (k *Kernel) PrintInt(n int) {
	fmt.Fprintf(k.console, "%d\n", n)
}

// Create makes a file of the given size, returning 1 on success and 0 on
// failure. The size is part of the call because files never grow.
func (k *Kernel) Create(path string, size int) int {
	if err := k.FS.Create(path, size); err != nil {
		k.log.WithError(err).WithField("path", path).Debug("syscall Create failed")
		return SyscallFail
	}
	return SyscallOK
}

// Open returns a file identifier for path, or -1.
func (k *Kernel) Open(path string) int {
	f, err := k.FS.Open(path)
	if err != nil {
		k.log.WithError(err).WithField("path", path).Debug("syscall Open failed")
		return InvalidID
	}
	return k.files.add(f)
}

// Read transfers up to len(buf) bytes from the open file id, returning
// the count: 0 at end of file, -1 for an unknown identifier.
func (k *Kernel) Read(buf []byte, id int) int {
	f := k.files.get(id)
	if f == nil {
		return InvalidID
	}
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		k.log.WithError(err).WithField("id", id).Debug("syscall Read failed")
		return InvalidID
	}
	return n
}

// Write transfers up to len(buf) bytes to the open file id, returning the
// count actually written; writes past the fixed file size are truncated.
func (k *Kernel) Write(buf []byte, id int) int {
	f := k.files.get(id)
	if f == nil {
		return InvalidID
	}
	n, err := f.Write(buf)
	if err != nil && err != io.ErrShortWrite {
		k.log.WithError(err).WithField("id", id).Debug("syscall Write failed")
		return InvalidID
	}
	return n
}

// Close releases the identifier, returning 1 on success and 0 for an
// unknown one.
func (k *Kernel) Close(id int) int {
	if !k.files.remove(id) {
		return SyscallFail
	}
	return SyscallOK
}
