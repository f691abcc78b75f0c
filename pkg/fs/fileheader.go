package fs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ha1tch/minikern/pkg/disk"
)

const (
	// NumDirect is the number of sector slots in a file header: whatever
	// fits in one sector after numBytes and numSectors.
	NumDirect = (disk.SectorSize - 2*4) / 4

	// Height thresholds of the index tree. A header whose numBytes is at
	// most MaxFileSize1 points directly at data sectors; above that, its
	// slots point at child headers, each covering the next threshold down.
	MaxFileSize1 = NumDirect * disk.SectorSize
	MaxFileSize2 = NumDirect * MaxFileSize1
	MaxFileSize3 = NumDirect * MaxFileSize2

	// MaxFileSize is the largest addressable file.
	MaxFileSize = NumDirect * MaxFileSize3
)

// FileHeader maps a file's byte offsets to sectors through a
// height-balanced index tree. It occupies exactly one sector on disk.
type FileHeader struct {
	numBytes    int32
	numSectors  int32
	dataSectors [NumDirect]int32
}

// childSpan returns the byte span covered by each slot of a header
// describing size bytes.
func childSpan(size int) int {
	switch {
	case size <= MaxFileSize1:
		return disk.SectorSize
	case size <= MaxFileSize2:
		return MaxFileSize1
	case size <= MaxFileSize3:
		return MaxFileSize2
	default:
		return MaxFileSize3
	}
}

// TotalSectors returns the number of sectors a file of the given size
// occupies: data sectors plus every interior header below the root. The
// root header's own sector is not counted; its owner reserves it.
func TotalSectors(size int) int {
	if size <= MaxFileSize1 {
		return divRoundUp(size, disk.SectorSize)
	}
	span := childSpan(size)
	total := 0
	for remaining := size; remaining > 0; remaining -= span {
		child := remaining
		if child > span {
			child = span
		}
		total += 1 + TotalSectors(child)
	}
	return total
}

// Allocate initializes a fresh header for a file of the given size,
// reserving every needed sector from freeMap. The full tree cost (data
// plus interior headers) is counted before any bit is consumed, so a
// failed Allocate leaves freeMap untouched. Child headers are written to
// the device as they are built.
func (h *FileHeader) Allocate(dev *disk.Device, freeMap *Bitmap, size int) error {
	if size < 0 {
		return fmt.Errorf("negative file size %d", size)
	}
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	if freeMap.NumClear() < TotalSectors(size) {
		return ErrNoSpace
	}
	return h.allocate(dev, freeMap, size)
}

// allocate reserves sectors with no space pre-check; Allocate has already
// established that freeMap holds enough clear bits.
func (h *FileHeader) allocate(dev *disk.Device, freeMap *Bitmap, size int) error {
	h.numBytes = int32(size)

	if size <= MaxFileSize1 {
		h.numSectors = int32(divRoundUp(size, disk.SectorSize))
		for i := 0; i < int(h.numSectors); i++ {
			h.dataSectors[i] = int32(mustFindAndSet(freeMap))
		}
		return nil
	}

	span := childSpan(size)
	h.numSectors = int32(divRoundUp(size, span))
	remaining := size
	for i := 0; i < int(h.numSectors); i++ {
		sector := mustFindAndSet(freeMap)
		childSize := remaining
		if childSize > span {
			childSize = span
		}
		child := &FileHeader{}
		if err := child.allocate(dev, freeMap, childSize); err != nil {
			return err
		}
		if err := child.WriteBack(dev, sector); err != nil {
			return err
		}
		h.dataSectors[i] = int32(sector)
		remaining -= childSize
	}
	return nil
}

// Deallocate returns every sector in the tree to freeMap: data sectors at
// the leaves, then each child header's own sector on the way back up.
func (h *FileHeader) Deallocate(dev *disk.Device, freeMap *Bitmap) error {
	if h.numBytes > MaxFileSize1 {
		for i := 0; i < int(h.numSectors); i++ {
			child := &FileHeader{}
			if err := child.FetchFrom(dev, int(h.dataSectors[i])); err != nil {
				return err
			}
			if err := child.Deallocate(dev, freeMap); err != nil {
				return err
			}
			freeMap.Clear(int(h.dataSectors[i]))
		}
		return nil
	}
	for i := 0; i < int(h.numSectors); i++ {
		freeMap.Clear(int(h.dataSectors[i]))
	}
	return nil
}

// ByteToSector returns the sector holding the byte at offset, walking one
// index level per call.
func (h *FileHeader) ByteToSector(dev *disk.Device, offset int) (int, error) {
	if offset < 0 || offset >= int(h.numBytes) {
		return -1, fmt.Errorf("offset %d outside file of %d bytes", offset, h.numBytes)
	}
	if h.numBytes <= MaxFileSize1 {
		return int(h.dataSectors[offset/disk.SectorSize]), nil
	}
	span := childSpan(int(h.numBytes))
	which := offset / span
	child := &FileHeader{}
	if err := child.FetchFrom(dev, int(h.dataSectors[which])); err != nil {
		return -1, err
	}
	return child.ByteToSector(dev, offset%span)
}

// Length returns the number of bytes the header describes.
func (h *FileHeader) Length() int {
	return int(h.numBytes)
}

// Sectors returns every sector reachable from the header: interior header
// sectors and data sectors, in tree order. The header's own sector is not
// included.
func (h *FileHeader) Sectors(dev *disk.Device) ([]int, error) {
	var out []int
	if h.numBytes <= MaxFileSize1 {
		for i := 0; i < int(h.numSectors); i++ {
			out = append(out, int(h.dataSectors[i]))
		}
		return out, nil
	}
	for i := 0; i < int(h.numSectors); i++ {
		out = append(out, int(h.dataSectors[i]))
		child := &FileHeader{}
		if err := child.FetchFrom(dev, int(h.dataSectors[i])); err != nil {
			return nil, err
		}
		sub, err := child.Sectors(dev)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// FetchFrom reads the header from the given sector.
func (h *FileHeader) FetchFrom(dev *disk.Device, sector int) error {
	buf := make([]byte, disk.SectorSize)
	if err := dev.ReadSector(sector, buf); err != nil {
		return err
	}
	h.decode(buf)
	return nil
}

// WriteBack writes the header to the given sector.
func (h *FileHeader) WriteBack(dev *disk.Device, sector int) error {
	buf := make([]byte, disk.SectorSize)
	h.encode(buf)
	return dev.WriteSector(sector, buf)
}

func (h *FileHeader) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(h.numBytes))
	binary.LittleEndian.PutUint32(buf[4:], uint32(h.numSectors))
	for i, s := range h.dataSectors {
		binary.LittleEndian.PutUint32(buf[8+4*i:], uint32(s))
	}
}

func (h *FileHeader) decode(buf []byte) {
	h.numBytes = int32(binary.LittleEndian.Uint32(buf[0:]))
	h.numSectors = int32(binary.LittleEndian.Uint32(buf[4:]))
	for i := range h.dataSectors {
		h.dataSectors[i] = int32(binary.LittleEndian.Uint32(buf[8+4*i:]))
	}
}

// Print dumps the header and, at the leaves, the printable file contents.
func (h *FileHeader) Print(dev *disk.Device, w io.Writer) error {
	fmt.Fprintf(w, "FileHeader: %d bytes in %d slots\n", h.numBytes, h.numSectors)
	if h.numBytes > MaxFileSize1 {
		for i := 0; i < int(h.numSectors); i++ {
			fmt.Fprintf(w, "child header at sector %d:\n", h.dataSectors[i])
			child := &FileHeader{}
			if err := child.FetchFrom(dev, int(h.dataSectors[i])); err != nil {
				return err
			}
			if err := child.Print(dev, w); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintf(w, "sectors:")
	for i := 0; i < int(h.numSectors); i++ {
		fmt.Fprintf(w, " %d", h.dataSectors[i])
	}
	fmt.Fprintln(w)

	buf := make([]byte, disk.SectorSize)
	printed := 0
	for i := 0; i < int(h.numSectors); i++ {
		if err := dev.ReadSector(int(h.dataSectors[i]), buf); err != nil {
			return err
		}
		for j := 0; j < disk.SectorSize && printed < int(h.numBytes); j++ {
			c := buf[j]
			if c >= 0x20 && c <= 0x7e {
				fmt.Fprintf(w, "%c", c)
			} else {
				fmt.Fprintf(w, `\%02x`, c)
			}
			printed++
		}
	}
	fmt.Fprintln(w)
	return nil
}

func divRoundUp(n, d int) int {
	return (n + d - 1) / d
}

func mustFindAndSet(freeMap *Bitmap) int {
	s := freeMap.FindAndSet()
	if s < 0 {
		panic("bitmap exhausted after space pre-check")
	}
	return s
}
