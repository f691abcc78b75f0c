package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/ha1tch/minikern/internal/cstr"
	"github.com/ha1tch/minikern/pkg/disk"
)

const (
	// FileNameMaxLen is the longest file name a directory entry can hold.
	FileNameMaxLen = 9

	// NumDirEntries is the fixed size of every directory table.
	NumDirEntries = 10

	// dirEntrySize is the packed on-disk size of one entry:
	// inUse(1) isDir(1) sector(4) name(FileNameMaxLen+1).
	dirEntrySize = 1 + 1 + 4 + FileNameMaxLen + 1

	// DirectoryFileSize is the byte length of a directory's backing file.
	DirectoryFileSize = NumDirEntries * dirEntrySize
)

// DirectoryEntry names one file or subdirectory and locates its header.
type DirectoryEntry struct {
	InUse  bool
	IsDir  bool
	Sector int32
	Name   [FileNameMaxLen + 1]byte
}

// NameString returns the entry's name as a Go string.
func (e *DirectoryEntry) NameString() string {
	return cstr.Get(e.Name[:])
}

// Directory is a fixed-length table mapping names to header sectors. It is
// persisted as a regular file.
type Directory struct {
	entries [NumDirEntries]DirectoryEntry
}

// NewDirectory returns an empty directory table.
func NewDirectory() *Directory {
	return &Directory{}
}

// Find returns the header sector for name, or -1 if the name is absent.
func (d *Directory) Find(name string) int {
	if e := d.findEntry(name); e != nil {
		return int(e.Sector)
	}
	return -1
}

// IsDir reports whether name exists and names a subdirectory.
func (d *Directory) IsDir(name string) bool {
	e := d.findEntry(name)
	return e != nil && e.IsDir
}

// Add places an entry in the first free slot. Names must be unique within
// the directory and at most FileNameMaxLen bytes.
func (d *Directory) Add(name string, sector int, isDir bool) error {
	if !cstr.Fits(name, FileNameMaxLen+1) {
		return ErrNameTooLong
	}
	if d.findEntry(name) != nil {
		return ErrAlreadyExists
	}
	for i := range d.entries {
		if !d.entries[i].InUse {
			e := &d.entries[i]
			e.InUse = true
			e.IsDir = isDir
			e.Sector = int32(sector)
			cstr.Put(e.Name[:], name)
			return nil
		}
	}
	return ErrDirectoryFull
}

// Remove marks the matching slot not in use.
func (d *Directory) Remove(name string) error {
	if e := d.findEntry(name); e != nil {
		e.InUse = false
		return nil
	}
	return ErrNotFound
}

// Entries returns the in-use entries in slot order.
func (d *Directory) Entries() []DirectoryEntry {
	var out []DirectoryEntry
	for _, e := range d.entries {
		if e.InUse {
			out = append(out, e)
		}
	}
	return out
}

// List prints the directory's entries to w, one per line.
func (d *Directory) List(w io.Writer) {
	for _, e := range d.Entries() {
		if e.IsDir {
			fmt.Fprintf(w, "%s/\n", e.NameString())
		} else {
			fmt.Fprintf(w, "%s\n", e.NameString())
		}
	}
}

// RecursiveList prints the directory tree rooted here, descending through
// subdirectory entries by sector.
func (d *Directory) RecursiveList(dev *disk.Device, w io.Writer) error {
	return d.recursiveList(dev, w, 0)
}

func (d *Directory) recursiveList(dev *disk.Device, w io.Writer, depth int) error {
	indent := strings.Repeat("  ", depth)
	for _, e := range d.Entries() {
		if !e.IsDir {
			fmt.Fprintf(w, "%s%s\n", indent, e.NameString())
			continue
		}
		fmt.Fprintf(w, "%s%s/\n", indent, e.NameString())
		sub, err := fetchDirectory(dev, int(e.Sector))
		if err != nil {
			return err
		}
		if err := sub.recursiveList(dev, w, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// fetchDirectory loads the directory stored in the file whose header lives
// at sector.
func fetchDirectory(dev *disk.Device, sector int) (*Directory, error) {
	f, err := NewOpenFile(dev, sector)
	if err != nil {
		return nil, err
	}
	d := NewDirectory()
	if err := d.FetchFrom(f); err != nil {
		return nil, err
	}
	return d, nil
}

// FetchFrom replaces the table with the one serialized in f.
func (d *Directory) FetchFrom(f *OpenFile) error {
	buf := make([]byte, DirectoryFileSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("fetch directory: %w", err)
	}
	if n != DirectoryFileSize {
		return fmt.Errorf("fetch directory: short read of %d bytes, want %d", n, DirectoryFileSize)
	}
	for i := range d.entries {
		d.entries[i].decode(buf[i*dirEntrySize:])
	}
	return nil
}

// WriteBack serializes the full table to f.
func (d *Directory) WriteBack(f *OpenFile) error {
	buf := make([]byte, DirectoryFileSize)
	for i := range d.entries {
		d.entries[i].encode(buf[i*dirEntrySize:])
	}
	n, err := f.WriteAt(buf, 0)
	if err != nil {
		return fmt.Errorf("write back directory: %w", err)
	}
	if n != DirectoryFileSize {
		return fmt.Errorf("write back directory: short write of %d bytes, want %d", n, DirectoryFileSize)
	}
	return nil
}

func (d *Directory) findEntry(name string) *DirectoryEntry {
	for i := range d.entries {
		if d.entries[i].InUse && d.entries[i].NameString() == name {
			return &d.entries[i]
		}
	}
	return nil
}

func (e *DirectoryEntry) encode(buf []byte) {
	buf[0] = boolByte(e.InUse)
	buf[1] = boolByte(e.IsDir)
	binary.LittleEndian.PutUint32(buf[2:], uint32(e.Sector))
	copy(buf[6:6+FileNameMaxLen+1], e.Name[:])
}

func (e *DirectoryEntry) decode(buf []byte) {
	e.InUse = buf[0] != 0
	e.IsDir = buf[1] != 0
	e.Sector = int32(binary.LittleEndian.Uint32(buf[2:]))
	copy(e.Name[:], buf[6:6+FileNameMaxLen+1])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
