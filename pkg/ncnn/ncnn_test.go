package ncnn

import (
	"testing"
)

func TestVersion(t *testing.T) {
	v := Version()
	if v == "" {
		t.Error("Version() returned empty string")
	}
	t.Logf("ncnn version: %s (vulkan: %v)", v, VulkanSupported())
}

func TestBuffer(t *testing.T) {
	buf, err := NewBuffer(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Close()

	data := buf.Data()
	if len(data) != 1024 {
		t.Fatalf("len = %d, want 1024", len(data))
	}
	for i := range data {
		if data[i] != 0 {
			t.Fatalf("data[%d] = %f, want 0", i, data[i])
		}
		data[i] = float32(i) * 0.5
	}

	mat, err := buf.Mat()
	if err != nil {
		t.Fatal(err)
	}
	defer mat.Close()

	if mat.W() != 1024 {
		t.Errorf("W() = %d, want 1024", mat.W())
	}
	out := mat.FloatData()
	if len(out) != 1024 || out[10] != 5 {
		t.Errorf("FloatData len = %d, out[10] = %f", len(out), out[10])
	}
}

func TestBufferInvalid(t *testing.T) {
	if _, err := NewBuffer(0); err == nil {
		t.Error("expected error for zero length")
	}
	buf, err := NewBuffer(4)
	if err != nil {
		t.Fatal(err)
	}
	buf.Close()
	buf.Close() // should not panic
	if _, err := buf.Mat(); err == nil {
		t.Error("expected error for Mat on closed buffer")
	}
}

func TestMatEmpty(t *testing.T) {
	if _, err := NewMat1D(nil); err == nil {
		t.Error("expected error for empty 1D data")
	}
}

func TestMatDoubleClose(t *testing.T) {
	buf, _ := NewBuffer(3)
	defer buf.Close()
	mat, err := buf.Mat()
	if err != nil {
		t.Fatal(err)
	}
	mat.Close()
	mat.Close() // should not panic
}

func TestOption(t *testing.T) {
	opt := NewOption()
	if opt == nil {
		t.Fatal("NewOption returned nil")
	}
	defer opt.Close()

	opt.SetVulkanCompute(false)
	if opt.VulkanCompute() {
		t.Error("VulkanCompute() = true after disabling")
	}
	opt.SetFP16(false).SetNumThreads(1)
	opt.Close()
	opt.Close() // should not panic
}

func TestNetClose(t *testing.T) {
	// Close without loading should not panic.
	n := &Net{}
	n.Close()
	if _, err := n.NewExtractor(); err == nil {
		t.Error("expected error for extractor on closed net")
	}
}

func TestNewNetFromMemoryInvalid(t *testing.T) {
	if _, err := NewNetFromMemory(nil, []byte{1}); err == nil {
		t.Error("expected error for empty param")
	}
	if _, err := NewNetFromMemory([]byte("7767517"), nil); err == nil {
		t.Error("expected error for empty bin")
	}
	if _, err := NewNetFromMemory([]byte("not a param file"), []byte{0, 0, 0, 0}); err == nil {
		t.Error("expected error for malformed param")
	}
}
