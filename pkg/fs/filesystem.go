package fs

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ha1tch/minikern/pkg/disk"
)

// Well-known sectors, fixed at format time so the filesystem can find its
// own metadata on boot.
const (
	FreeMapSector   = 0
	DirectorySector = 1
)

// FileSystem implements the root operations over a block device: a
// persistent free-sector bitmap and a directory tree, both stored as
// regular files with headers in the well-known sectors.
//
// Directory and bitmap mutations are not synchronized; callers must not
// interleave Create/Mkdir/Remove calls.
type FileSystem struct {
	dev         *disk.Device
	freeMapFile *OpenFile
	rootDirFile *OpenFile
	log         logrus.FieldLogger
}

// New opens the filesystem on dev. With format set, the disk is
// initialized first: sectors 0 and 1 are reserved, headers for the bitmap
// and root directory files are allocated and written, and an empty root
// directory is persisted. Both files stay open for the life of the
// instance.
func New(dev *disk.Device, format bool, log logrus.FieldLogger) (*FileSystem, error) {
	fsys := &FileSystem{dev: dev, log: log}
	if format {
		if err := fsys.format(); err != nil {
			return nil, fmt.Errorf("format: %w", err)
		}
	}

	var err error
	if fsys.freeMapFile, err = NewOpenFile(dev, FreeMapSector); err != nil {
		return nil, err
	}
	if fsys.rootDirFile, err = NewOpenFile(dev, DirectorySector); err != nil {
		return nil, err
	}
	return fsys, nil
}

func (fs *FileSystem) format() error {
	fs.log.Debug("formatting the file system")

	freeMap := NewPersistentBitmap(fs.dev.NumSectors())
	freeMap.Mark(FreeMapSector)
	freeMap.Mark(DirectorySector)

	mapHdr := &FileHeader{}
	if err := mapHdr.Allocate(fs.dev, freeMap.Bitmap, BitmapFileSize(fs.dev.NumSectors())); err != nil {
		return err
	}
	dirHdr := &FileHeader{}
	if err := dirHdr.Allocate(fs.dev, freeMap.Bitmap, DirectoryFileSize); err != nil {
		return err
	}

	// Headers must reach the disk before the files can be opened.
	if err := mapHdr.WriteBack(fs.dev, FreeMapSector); err != nil {
		return err
	}
	if err := dirHdr.WriteBack(fs.dev, DirectorySector); err != nil {
		return err
	}

	mapFile, err := NewOpenFile(fs.dev, FreeMapSector)
	if err != nil {
		return err
	}
	dirFile, err := NewOpenFile(fs.dev, DirectorySector)
	if err != nil {
		return err
	}
	if err := freeMap.WriteBack(mapFile); err != nil {
		return err
	}
	return NewDirectory().WriteBack(dirFile)
}

// traversal is the structured result of resolving a path: the directory
// holding the final segment, its sector, the final (missing or terminal)
// name, and what the name resolved to.
type traversal struct {
	parent       *Directory
	parentSector int
	name         string
	sector       int
	isDir        bool
}

// traverse resolves an absolute, '/'-separated path from the root. It
// descends while segments name existing directories and terminates at the
// first missing segment or at the final one, whichever comes first.
func (fs *FileSystem) traverse(path string) (*traversal, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return &traversal{parentSector: -1, sector: DirectorySector, isDir: true}, nil
	}

	cur := DirectorySector
	dir := NewDirectory()
	if err := dir.FetchFrom(fs.rootDirFile); err != nil {
		return nil, err
	}

	for {
		seg := segs[0]
		segs = segs[1:]
		sector := dir.Find(seg)

		if len(segs) == 0 || sector < 0 || !dir.IsDir(seg) {
			return &traversal{
				parent:       dir,
				parentSector: cur,
				name:         seg,
				sector:       sector,
				isDir:        sector >= 0 && dir.IsDir(seg),
			}, nil
		}

		sub, err := fetchDirectory(fs.dev, sector)
		if err != nil {
			return nil, err
		}
		cur = sector
		dir = sub
	}
}

// Create makes a new file of the given byte size under path. The size is
// fixed for the life of the file. On any failure the in-memory state is
// discarded without persisting, which restores the on-disk invariant.
func (fs *FileSystem) Create(path string, size int) error {
	log := fs.log.WithFields(logrus.Fields{"path": path, "size": size})
	log.Debug("creating file")

	sector, err := fs.createEntry(path, size, false)
	if err != nil {
		log.WithError(err).Debug("create failed")
		return err
	}
	log.WithField("sector", sector).Debug("created file")
	return nil
}

// Mkdir makes an empty subdirectory under path.
func (fs *FileSystem) Mkdir(path string) error {
	log := fs.log.WithField("path", path)
	log.Debug("creating directory")

	sector, err := fs.createEntry(path, DirectoryFileSize, true)
	if err != nil {
		log.WithError(err).Debug("mkdir failed")
		return err
	}
	log.WithField("sector", sector).Debug("created directory")
	return nil
}

// createEntry is the shared Create/Mkdir path: reserve a header sector,
// add the parent entry, allocate the data tree, then persist header,
// parent directory, and bitmap in that order.
func (fs *FileSystem) createEntry(path string, size int, isDir bool) (int, error) {
	t, err := fs.traverse(path)
	if err != nil {
		return -1, err
	}
	if t.name == "" {
		return -1, ErrAlreadyExists // the root itself
	}
	if t.sector >= 0 {
		return -1, ErrAlreadyExists
	}

	freeMap, err := fs.fetchBitmap()
	if err != nil {
		return -1, err
	}

	sector := freeMap.FindAndSet()
	if sector < 0 {
		return -1, ErrNoSpace
	}
	if err := t.parent.Add(t.name, sector, isDir); err != nil {
		return -1, err
	}
	hdr := &FileHeader{}
	if err := hdr.Allocate(fs.dev, freeMap.Bitmap, size); err != nil {
		return -1, err
	}

	if err := hdr.WriteBack(fs.dev, sector); err != nil {
		return -1, err
	}
	if isDir {
		newDirFile, err := NewOpenFile(fs.dev, sector)
		if err != nil {
			return -1, err
		}
		if err := NewDirectory().WriteBack(newDirFile); err != nil {
			return -1, err
		}
	}
	parentFile, err := NewOpenFile(fs.dev, t.parentSector)
	if err != nil {
		return -1, err
	}
	if err := t.parent.WriteBack(parentFile); err != nil {
		return -1, err
	}
	if err := freeMap.WriteBack(fs.freeMapFile); err != nil {
		return -1, err
	}
	return sector, nil
}

// Open returns an OpenFile over the header the path resolves to.
func (fs *FileSystem) Open(path string) (*OpenFile, error) {
	t, err := fs.traverse(path)
	if err != nil {
		return nil, err
	}
	if t.sector < 0 {
		return nil, ErrNotFound
	}
	return NewOpenFile(fs.dev, t.sector)
}

// Remove deletes the file or directory at path, returning its sectors to
// the free map. A non-empty directory is only removed when recursive is
// set; its entries are removed depth-first by composed absolute paths.
func (fs *FileSystem) Remove(path string, recursive bool) error {
	log := fs.log.WithFields(logrus.Fields{"path": path, "recursive": recursive})
	log.Debug("removing")

	t, err := fs.traverse(path)
	if err != nil {
		return err
	}
	if t.name == "" {
		return ErrNotFound // the root cannot be removed
	}
	if t.sector < 0 {
		return ErrNotFound
	}

	if t.isDir {
		target, err := fetchDirectory(fs.dev, t.sector)
		if err != nil {
			return err
		}
		entries := target.Entries()
		if len(entries) > 0 && !recursive {
			return ErrNotEmpty
		}
		for _, e := range entries {
			if err := fs.Remove(strings.TrimRight(path, "/")+"/"+e.NameString(), true); err != nil {
				return err
			}
		}
		// The parent table was re-read before each child removal; resolve
		// the target again so the final unlink sees current state.
		if t, err = fs.traverse(path); err != nil {
			return err
		}
	}

	freeMap, err := fs.fetchBitmap()
	if err != nil {
		return err
	}

	hdr := &FileHeader{}
	if err := hdr.FetchFrom(fs.dev, t.sector); err != nil {
		return err
	}
	if err := hdr.Deallocate(fs.dev, freeMap.Bitmap); err != nil {
		return err
	}
	freeMap.Clear(t.sector)
	if err := t.parent.Remove(t.name); err != nil {
		return err
	}

	if err := freeMap.WriteBack(fs.freeMapFile); err != nil {
		return err
	}
	parentFile, err := NewOpenFile(fs.dev, t.parentSector)
	if err != nil {
		return err
	}
	if err := t.parent.WriteBack(parentFile); err != nil {
		return err
	}
	log.WithField("sector", t.sector).Debug("removed")
	return nil
}

// List prints the directory at path to w, recursively if asked.
func (fs *FileSystem) List(path string, recursive bool, w io.Writer) error {
	t, err := fs.traverse(path)
	if err != nil {
		return err
	}
	if t.sector < 0 {
		return ErrNotFound
	}
	if !t.isDir {
		return ErrNotADirectory
	}
	dir, err := fetchDirectory(fs.dev, t.sector)
	if err != nil {
		return err
	}
	if recursive {
		return dir.RecursiveList(fs.dev, w)
	}
	dir.List(w)
	return nil
}

// Print dumps the filesystem metadata to w: both well-known headers, the
// bitmap, and the directory tree.
func (fs *FileSystem) Print(w io.Writer) error {
	fmt.Fprintln(w, "Free map file header:")
	mapHdr := &FileHeader{}
	if err := mapHdr.FetchFrom(fs.dev, FreeMapSector); err != nil {
		return err
	}
	if err := mapHdr.Print(fs.dev, w); err != nil {
		return err
	}

	fmt.Fprintln(w, "Root directory file header:")
	dirHdr := &FileHeader{}
	if err := dirHdr.FetchFrom(fs.dev, DirectorySector); err != nil {
		return err
	}
	if err := dirHdr.Print(fs.dev, w); err != nil {
		return err
	}

	freeMap, err := fs.fetchBitmap()
	if err != nil {
		return err
	}
	freeMap.Print(w)

	fmt.Fprintln(w, "Directory tree:")
	root := NewDirectory()
	if err := root.FetchFrom(fs.rootDirFile); err != nil {
		return err
	}
	return root.RecursiveList(fs.dev, w)
}

// Device returns the underlying block device.
func (fs *FileSystem) Device() *disk.Device {
	return fs.dev
}

// fetchBitmap reads the current free map from its backing file.
func (fs *FileSystem) fetchBitmap() (*PersistentBitmap, error) {
	freeMap := NewPersistentBitmap(fs.dev.NumSectors())
	if err := freeMap.FetchFrom(fs.freeMapFile); err != nil {
		return nil, err
	}
	return freeMap, nil
}

// splitPath splits an absolute '/'-separated path into its segments.
func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
