package fs

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ha1tch/minikern/pkg/disk"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// newTestFS formats a fresh filesystem on a temp image of the given size.
func newTestFS(t *testing.T, numSectors int) (*FileSystem, *disk.Device) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := disk.Create(path, numSectors, testLogger())
	if err != nil {
		t.Fatalf("disk.Create failed: %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	fsys, err := New(dev, true, testLogger())
	if err != nil {
		t.Fatalf("fs.New(format) failed: %v", err)
	}
	return fsys, dev
}

// bitmapBytes reads the raw persisted free map.
func bitmapBytes(t *testing.T, fsys *FileSystem) []byte {
	t.Helper()
	buf := make([]byte, BitmapFileSize(fsys.dev.NumSectors()))
	if _, err := fsys.freeMapFile.ReadAt(buf, 0); err != nil && err != io.EOF {
		t.Fatalf("reading bitmap file: %v", err)
	}
	return buf
}

func checkClean(t *testing.T, fsys *FileSystem) {
	t.Helper()
	violations, err := NewChecker(fsys).Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	for _, v := range violations {
		t.Errorf("consistency violation: %v", v)
	}
}

func TestSingleSectorFile(t *testing.T) {
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)

	if err := fsys.Create("/a", 100); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f, err := fsys.Open("/a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data := bytes.Repeat([]byte{0x01}, 100)
	if n, err := f.Write(data); err != nil || n != 100 {
		t.Fatalf("Write: got (%d, %v), want (100, nil)", n, err)
	}

	f, err = fsys.Open("/a")
	if err != nil {
		t.Fatalf("re-Open failed: %v", err)
	}
	got := make([]byte, 100)
	if n, err := f.ReadAt(got, 0); err != nil || n != 100 {
		t.Fatalf("ReadAt: got (%d, %v), want (100, nil)", n, err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read data differs from written data")
	}
	checkClean(t, fsys)
}

func TestTwoLevelFile(t *testing.T) {
	fsys, dev := newTestFS(t, disk.DefaultNumSectors)

	before := NewPersistentBitmap(dev.NumSectors())
	if err := before.FetchFrom(fsys.freeMapFile); err != nil {
		t.Fatalf("FetchFrom failed: %v", err)
	}

	if err := fsys.Create("/big", 4000); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f, err := fsys.Open("/big")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if f.Length() != 4000 {
		t.Errorf("Length: got %d, want 4000", f.Length())
	}

	// 4000 bytes exceeds MaxFileSize1 (3840), so the tree has height 2:
	// 32 data sectors plus the interior headers, plus the root header.
	after := NewPersistentBitmap(dev.NumSectors())
	if err := after.FetchFrom(fsys.freeMapFile); err != nil {
		t.Fatalf("FetchFrom failed: %v", err)
	}
	used := before.NumClear() - after.NumClear()
	if want := 1 + TotalSectors(4000); used != want {
		t.Errorf("sectors consumed: got %d, want %d", used, want)
	}

	sectors, err := f.Header().Sectors(dev)
	if err != nil {
		t.Fatalf("Sectors failed: %v", err)
	}
	if interior := len(sectors) - 32; interior < 1 {
		t.Errorf("expected 32 data sectors plus interior headers, tree has %d non-root sectors", len(sectors))
	}

	// The whole span is addressable end to end.
	payload := make([]byte, 4000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	if n, err := f.WriteAt(payload, 0); err != nil || n != 4000 {
		t.Fatalf("WriteAt: got (%d, %v), want (4000, nil)", n, err)
	}
	got := make([]byte, 4000)
	if n, err := f.ReadAt(got, 0); err != nil || n != 4000 {
		t.Fatalf("ReadAt: got (%d, %v), want (4000, nil)", n, err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("two-level file did not round-trip its contents")
	}
	checkClean(t, fsys)
}

func TestCreateFailureRestoresBitmap(t *testing.T) {
	fsys, _ := newTestFS(t, 64)

	before := bitmapBytes(t, fsys)

	err := fsys.Create("/x", 10000)
	if !errors.Is(err, ErrNoSpace) {
		t.Fatalf("Create on a 64-sector disk: got %v, want ErrNoSpace", err)
	}

	after := bitmapBytes(t, fsys)
	if !bytes.Equal(before, after) {
		t.Error("failed Create must leave the persisted bitmap bit-for-bit unchanged")
	}
	checkClean(t, fsys)
}

func TestCreateRemoveCreate(t *testing.T) {
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)

	before := bitmapBytes(t, fsys)

	if err := fsys.Create("/f", 500); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := fsys.Remove("/f", false); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	// Remove returns every freed bit, so the bitmap matches its pre-Create
	// state exactly.
	if got := bitmapBytes(t, fsys); !bytes.Equal(before, got) {
		t.Error("bitmap after Create+Remove differs from the pre-Create state")
	}

	if err := fsys.Create("/f", 500); err != nil {
		t.Fatalf("re-Create failed: %v", err)
	}
	checkClean(t, fsys)
}

func TestCreateCollision(t *testing.T) {
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)

	if err := fsys.Create("/dup", 10); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := fsys.Create("/dup", 10); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate Create: got %v, want ErrAlreadyExists", err)
	}
	if err := fsys.Mkdir("/dup"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Mkdir over a file: got %v, want ErrAlreadyExists", err)
	}
}

func TestMkdirAndNestedCreate(t *testing.T) {
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)

	if err := fsys.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := fsys.Mkdir("/d/e"); err != nil {
		t.Fatalf("nested Mkdir failed: %v", err)
	}
	if err := fsys.Create("/d/e/f", 200); err != nil {
		t.Fatalf("nested Create failed: %v", err)
	}

	f, err := fsys.Open("/d/e/f")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if f.Length() != 200 {
		t.Errorf("Length: got %d, want 200", f.Length())
	}

	var buf bytes.Buffer
	if err := fsys.List("/", true, &buf); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, want := range []string{"d/", "e/", "f"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("recursive listing missing %q:\n%s", want, buf.String())
		}
	}
	checkClean(t, fsys)
}

func TestRecursiveRemove(t *testing.T) {
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)

	before := bitmapBytes(t, fsys)

	if err := fsys.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := fsys.Create("/d/a", 100); err != nil {
		t.Fatalf("Create /d/a failed: %v", err)
	}
	if err := fsys.Create("/d/b", 100); err != nil {
		t.Fatalf("Create /d/b failed: %v", err)
	}

	if err := fsys.Remove("/d", false); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("non-recursive Remove of a non-empty directory: got %v, want ErrNotEmpty", err)
	}
	if err := fsys.Remove("/d", true); err != nil {
		t.Fatalf("recursive Remove failed: %v", err)
	}

	if _, err := fsys.Open("/d/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open of a removed file: got %v, want ErrNotFound", err)
	}

	// Every sector the subtree used is clear again.
	if got := bitmapBytes(t, fsys); !bytes.Equal(before, got) {
		t.Error("bitmap after recursive Remove differs from the pre-Mkdir state")
	}
	checkClean(t, fsys)
}

func TestRemoveMissing(t *testing.T) {
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)

	if err := fsys.Remove("/ghost", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove of a missing file: got %v, want ErrNotFound", err)
	}
	if err := fsys.Remove("/no/such/path", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove through a missing directory: got %v, want ErrNotFound", err)
	}
}

func TestHeaderFetchWriteBackIdentity(t *testing.T) {
	fsys, dev := newTestFS(t, disk.DefaultNumSectors)

	if err := fsys.Create("/id", 1000); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t1, err := fsys.traverse("/id")
	if err != nil {
		t.Fatalf("traverse failed: %v", err)
	}

	hdr := &FileHeader{}
	if err := hdr.FetchFrom(dev, t1.sector); err != nil {
		t.Fatalf("FetchFrom failed: %v", err)
	}
	if err := hdr.WriteBack(dev, t1.sector); err != nil {
		t.Fatalf("WriteBack failed: %v", err)
	}
	again := &FileHeader{}
	if err := again.FetchFrom(dev, t1.sector); err != nil {
		t.Fatalf("second FetchFrom failed: %v", err)
	}
	if *again != *hdr {
		t.Error("FetchFrom after WriteBack is not the identity")
	}
}

func TestImportExport(t *testing.T) {
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)

	hostDir := t.TempDir()
	src := filepath.Join(hostDir, "in.txt")
	payload := bytes.Repeat([]byte("sector payload "), 40)
	if err := os.WriteFile(src, payload, 0644); err != nil {
		t.Fatalf("writing host file: %v", err)
	}

	if err := fsys.ImportFile(src, "/in"); err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}

	out := filepath.Join(hostDir, "out.txt")
	if err := fsys.ExportFile("/in", out); err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading host file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("import/export round trip corrupted the data")
	}
	checkClean(t, fsys)
}

func TestPrintRuns(t *testing.T) {
	fsys, _ := newTestFS(t, disk.DefaultNumSectors)
	if err := fsys.Create("/p", 64); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	var buf bytes.Buffer
	if err := fsys.Print(&buf); err != nil {
		t.Fatalf("Print failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Free map file header:") {
		t.Error("Print output missing the free map header section")
	}
}
