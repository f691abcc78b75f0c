package kernel

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ha1tch/minikern/pkg/disk"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestKernel(t *testing.T) (*Kernel, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := disk.Create(path, disk.DefaultNumSectors, testLogger())
	if err != nil {
		t.Fatalf("disk.Create failed: %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	console := &bytes.Buffer{}
	k, err := New(dev, true, console, testLogger())
	if err != nil {
		t.Fatalf("kernel.New failed: %v", err)
	}
	return k, console
}

func TestSyscallFileLifecycle(t *testing.T) {
	k, _ := newTestKernel(t)

	if got := k.Create("/f", 256); got != SyscallOK {
		t.Fatalf("Create: got %d, want %d", got, SyscallOK)
	}
	if got := k.Create("/f", 256); got != SyscallFail {
		t.Errorf("duplicate Create: got %d, want %d", got, SyscallFail)
	}

	id := k.Open("/f")
	if id < 0 {
		t.Fatalf("Open: got %d, want a nonnegative id", id)
	}

	payload := bytes.Repeat([]byte{0xab}, 256)
	if got := k.Write(payload, id); got != 256 {
		t.Errorf("Write: got %d, want 256", got)
	}
	if got := k.Close(id); got != SyscallOK {
		t.Errorf("Close: got %d, want %d", got, SyscallOK)
	}

	id = k.Open("/f")
	buf := make([]byte, 256)
	if got := k.Read(buf, id); got != 256 {
		t.Errorf("Read: got %d, want 256", got)
	}
	if !bytes.Equal(buf, payload) {
		t.Error("read data differs from written data")
	}

	// A second read sits at end of file.
	if got := k.Read(buf, id); got != 0 {
		t.Errorf("Read at EOF: got %d, want 0", got)
	}
}

func TestSyscallInvalidHandles(t *testing.T) {
	k, _ := newTestKernel(t)

	buf := make([]byte, 8)
	if got := k.Read(buf, 42); got != InvalidID {
		t.Errorf("Read on an unknown id: got %d, want %d", got, InvalidID)
	}
	if got := k.Write(buf, 42); got != InvalidID {
		t.Errorf("Write on an unknown id: got %d, want %d", got, InvalidID)
	}
	if got := k.Close(42); got != SyscallFail {
		t.Errorf("Close on an unknown id: got %d, want %d", got, SyscallFail)
	}
	if got := k.Open("/missing"); got != InvalidID {
		t.Errorf("Open of a missing path: got %d, want %d", got, InvalidID)
	}
}

func TestHandleTableReusesLowestID(t *testing.T) {
	k, _ := newTestKernel(t)

	k.Create("/a", 16)
	k.Create("/b", 16)
	k.Create("/c", 16)

	a := k.Open("/a")
	b := k.Open("/b")
	c := k.Open("/c")
	if a != 0 || b != 1 || c != 2 {
		t.Fatalf("ids: got (%d, %d, %d), want (0, 1, 2)", a, b, c)
	}

	k.Close(b)
	if got := k.Open("/a"); got != 1 {
		t.Errorf("reopened id: got %d, want the freed id 1", got)
	}
}

func TestPrintIntAndHalt(t *testing.T) {
	k, console := newTestKernel(t)

	k.PrintInt(42)
	k.PrintInt(-7)
	if got := console.String(); got != "42\n-7\n" {
		t.Errorf("console output: got %q, want %q", got, "42\n-7\n")
	}

	if k.Halted() {
		t.Error("kernel should not start halted")
	}
	k.Halt()
	if !k.Halted() {
		t.Error("Halt must latch the halted state")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := []byte(`
disk:
  image: /tmp/test.img
  num_sectors: 256
workload:
  - name: worker
    priority: 120
    burst: 25.5
    arrival: 300
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Disk.Image != "/tmp/test.img" || cfg.Disk.NumSectors != 256 {
		t.Errorf("disk config: got %+v", cfg.Disk)
	}
	if len(cfg.Workload) != 1 {
		t.Fatalf("workload entries: got %d, want 1", len(cfg.Workload))
	}
	w := cfg.Workload[0]
	if w.Name != "worker" || w.Priority != 120 || w.Burst != 25.5 || w.Arrival != 300 {
		t.Errorf("workload entry: got %+v", w)
	}
}
