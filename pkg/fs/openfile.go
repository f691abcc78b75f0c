package fs

import (
	"errors"
	"io"

	"github.com/ha1tch/minikern/pkg/disk"
)

// OpenFile is a stateful byte-granular cursor over a file's header.
// Files never grow: reads past the end return io.EOF and writes past the
// end are truncated.
type OpenFile struct {
	dev    *disk.Device
	hdr    *FileHeader
	sector int
	pos    int64
}

// NewOpenFile opens the file whose header lives at the given sector.
func NewOpenFile(dev *disk.Device, sector int) (*OpenFile, error) {
	hdr := &FileHeader{}
	if err := hdr.FetchFrom(dev, sector); err != nil {
		return nil, err
	}
	return &OpenFile{dev: dev, hdr: hdr, sector: sector}, nil
}

// Length returns the file length in bytes.
func (f *OpenFile) Length() int {
	return f.hdr.Length()
}

// HeaderSector returns the sector holding the file's header.
func (f *OpenFile) HeaderSector() int {
	return f.sector
}

// Header returns the in-memory file header.
func (f *OpenFile) Header() *FileHeader {
	return f.hdr
}

// ReadAt implements io.ReaderAt over the file's sectors.
func (f *OpenFile) ReadAt(p []byte, off int64) (int, error) {
	length := int64(f.Length())
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= length {
		return 0, io.EOF
	}

	n := len(p)
	if int64(n) > length-off {
		n = int(length - off)
	}

	buf := make([]byte, disk.SectorSize)
	read := 0
	for read < n {
		pos := int(off) + read
		sectorOff := pos % disk.SectorSize
		chunk := disk.SectorSize - sectorOff
		if chunk > n-read {
			chunk = n - read
		}
		sector, err := f.hdr.ByteToSector(f.dev, pos)
		if err != nil {
			return read, err
		}
		if err := f.dev.ReadSector(sector, buf); err != nil {
			return read, err
		}
		copy(p[read:read+chunk], buf[sectorOff:sectorOff+chunk])
		read += chunk
	}

	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

// WriteAt implements io.WriterAt. Sub-sector writes read-modify-write the
// whole sector. Writes extending past the file's fixed length are
// truncated and report io.ErrShortWrite.
func (f *OpenFile) WriteAt(p []byte, off int64) (int, error) {
	length := int64(f.Length())
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= length {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.ErrShortWrite
	}

	n := len(p)
	if int64(n) > length-off {
		n = int(length - off)
	}

	buf := make([]byte, disk.SectorSize)
	written := 0
	for written < n {
		pos := int(off) + written
		sectorOff := pos % disk.SectorSize
		chunk := disk.SectorSize - sectorOff
		if chunk > n-written {
			chunk = n - written
		}
		sector, err := f.hdr.ByteToSector(f.dev, pos)
		if err != nil {
			return written, err
		}
		if chunk < disk.SectorSize {
			if err := f.dev.ReadSector(sector, buf); err != nil {
				return written, err
			}
		}
		copy(buf[sectorOff:sectorOff+chunk], p[written:written+chunk])
		if err := f.dev.WriteSector(sector, buf); err != nil {
			return written, err
		}
		written += chunk
	}

	if written < len(p) {
		return written, io.ErrShortWrite
	}
	return written, nil
}

// Read implements io.Reader, advancing the cursor.
func (f *OpenFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// Write implements io.Writer, advancing the cursor.
func (f *OpenFile) Write(p []byte) (int, error) {
	n, err := f.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker.
func (f *OpenFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = int64(f.Length()) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	f.pos = abs
	return abs, nil
}
