package fs

import (
	"bytes"
	"io"
	"testing"

	"github.com/ha1tch/minikern/pkg/disk"
)

func openTestFile(t *testing.T, size int) (*FileSystem, *OpenFile) {
	t.Helper()
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)
	if err := fsys.Create("/f", size); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	f, err := fsys.Open("/f")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return fsys, f
}

func TestSubSectorWritePreservesNeighbors(t *testing.T) {
	_, f := openTestFile(t, 3*disk.SectorSize)

	base := make([]byte, 3*disk.SectorSize)
	for i := range base {
		base[i] = 0xee
	}
	if _, err := f.WriteAt(base, 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	// A write spanning a sector boundary must read-modify-write both
	// sectors without touching their other bytes.
	patch := []byte("boundary!")
	off := int64(disk.SectorSize - 4)
	if n, err := f.WriteAt(patch, off); err != nil || n != len(patch) {
		t.Fatalf("WriteAt: got (%d, %v), want (%d, nil)", n, err, len(patch))
	}

	got := make([]byte, 3*disk.SectorSize)
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	copy(base[off:], patch)
	if !bytes.Equal(got, base) {
		t.Error("sub-sector write corrupted neighboring bytes")
	}
}

func TestReadPastEOF(t *testing.T) {
	_, f := openTestFile(t, 50)

	buf := make([]byte, 100)
	n, err := f.ReadAt(buf, 0)
	if n != 50 || err != io.EOF {
		t.Errorf("ReadAt over EOF: got (%d, %v), want (50, EOF)", n, err)
	}

	n, err = f.ReadAt(buf, 50)
	if n != 0 || err != io.EOF {
		t.Errorf("ReadAt at EOF: got (%d, %v), want (0, EOF)", n, err)
	}
}

func TestWritePastEOFTruncates(t *testing.T) {
	_, f := openTestFile(t, 50)

	data := bytes.Repeat([]byte{0x7f}, 100)
	n, err := f.WriteAt(data, 0)
	if n != 50 || err != io.ErrShortWrite {
		t.Errorf("WriteAt over EOF: got (%d, %v), want (50, ErrShortWrite)", n, err)
	}

	n, err = f.WriteAt(data, 50)
	if n != 0 || err != io.ErrShortWrite {
		t.Errorf("WriteAt at EOF: got (%d, %v), want (0, ErrShortWrite)", n, err)
	}
}

func TestCursorAndSeek(t *testing.T) {
	_, f := openTestFile(t, 10)

	if _, err := f.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	tests := []struct {
		offset  int64
		whence  int
		wantPos int64
		wantErr bool
	}{
		{5, io.SeekStart, 5, false},
		{2, io.SeekCurrent, 7, false},
		{-3, io.SeekEnd, 7, false},
		{0, io.SeekStart, 0, false},
		{-1, io.SeekStart, 0, true},
		{0, 42, 0, true},
	}
	for _, tt := range tests {
		pos, err := f.Seek(tt.offset, tt.whence)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Seek(%d, %d) should fail", tt.offset, tt.whence)
			}
			continue
		}
		if err != nil {
			t.Errorf("Seek(%d, %d) failed: %v", tt.offset, tt.whence, err)
			continue
		}
		if pos != tt.wantPos {
			t.Errorf("Seek(%d, %d): got %d, want %d", tt.offset, tt.whence, pos, tt.wantPos)
		}
	}

	if _, err := f.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	buf := make([]byte, 3)
	if _, err := f.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "456" {
		t.Errorf("Read after Seek: got %q, want %q", buf, "456")
	}
}
