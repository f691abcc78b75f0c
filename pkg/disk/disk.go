// Package disk provides the block device: fixed-geometry sector I/O over a
// host image file. All higher layers address the disk as a flat array of
// SectorSize-byte sectors.
package disk

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	// SectorSize is the number of bytes per sector, fixed across the device.
	SectorSize = 128

	SectorsPerTrack = 32
	NumTracks       = 32

	// DefaultNumSectors is the sector count of a standard disk image.
	DefaultNumSectors = SectorsPerTrack * NumTracks
)

// diskMagic identifies a minikern disk image file.
const diskMagic uint32 = 0x456789ab

// headerSize is the on-file space reserved before sector 0.
const headerSize = 4

// Device is a sector-addressed block device backed by a host file.
// Reads and writes are synchronous and totally ordered; whole-sector
// atomicity is assumed.
type Device struct {
	f          *os.File
	numSectors int
	log        logrus.FieldLogger
}

// Create initializes a fresh image file of numSectors zeroed sectors and
// returns the open device.
func Create(path string, numSectors int, log logrus.FieldLogger) (*Device, error) {
	if numSectors <= 0 {
		return nil, fmt.Errorf("invalid sector count %d", numSectors)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create disk image: %w", err)
	}

	var magic [headerSize]byte
	binary.LittleEndian.PutUint32(magic[:], diskMagic)
	if _, err := f.WriteAt(magic[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("write disk magic: %w", err)
	}
	if err := f.Truncate(int64(headerSize + numSectors*SectorSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("size disk image: %w", err)
	}

	log.WithFields(logrus.Fields{"path": path, "sectors": numSectors}).
		Debug("created disk image")
	return &Device{f: f, numSectors: numSectors, log: log}, nil
}

// Open opens an existing image file, validating the magic number and
// deriving the sector count from the file size.
func Open(path string, log logrus.FieldLogger) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open disk image: %w", err)
	}

	var magic [headerSize]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("read disk magic: %w", err)
	}
	if binary.LittleEndian.Uint32(magic[:]) != diskMagic {
		f.Close()
		return nil, ErrBadMagic
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	payload := info.Size() - headerSize
	if payload <= 0 || payload%SectorSize != 0 {
		f.Close()
		return nil, ErrBadImageSize
	}

	return &Device{f: f, numSectors: int(payload / SectorSize), log: log}, nil
}

// NumSectors returns the number of sectors on the device.
func (d *Device) NumSectors() int {
	return d.numSectors
}

// ReadSector reads sector n into buf. buf must hold exactly SectorSize
// bytes. An out-of-range sector index is an invariant violation and panics.
func (d *Device) ReadSector(n int, buf []byte) error {
	d.checkRequest(n, buf)
	if _, err := d.f.ReadAt(buf, d.offset(n)); err != nil {
		return fmt.Errorf("read sector %d: %w", n, err)
	}
	return nil
}

// WriteSector writes buf to sector n. buf must hold exactly SectorSize
// bytes. An out-of-range sector index is an invariant violation and panics.
func (d *Device) WriteSector(n int, buf []byte) error {
	d.checkRequest(n, buf)
	if _, err := d.f.WriteAt(buf, d.offset(n)); err != nil {
		return fmt.Errorf("write sector %d: %w", n, err)
	}
	return nil
}

// Close flushes and closes the backing image file.
func (d *Device) Close() error {
	if err := d.f.Sync(); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}

func (d *Device) offset(sector int) int64 {
	return int64(headerSize + sector*SectorSize)
}

func (d *Device) checkRequest(sector int, buf []byte) {
	if sector < 0 || sector >= d.numSectors {
		panic(fmt.Sprintf("disk: sector %d out of range [0,%d)", sector, d.numSectors))
	}
	if len(buf) != SectorSize {
		panic(fmt.Sprintf("disk: buffer size %d, want %d", len(buf), SectorSize))
	}
}
