package kernel

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/haivivi/pitchscope/pkg/crepe"
	"github.com/haivivi/pitchscope/pkg/pitch"
)

func TestNewRejectsGraphConfig(t *testing.T) {
	if _, err := New(crepe.Config{Kind: crepe.KindGraphExecution}); err == nil {
		t.Fatal("expected error for graph-execution config")
	}
	if _, err := New(crepe.Config{Kind: crepe.KindNativeKernel, Graph: &crepe.GraphConfig{}}); err == nil {
		t.Fatal("expected error for mismatched payload")
	}
}

func TestRunBeforeInit(t *testing.T) {
	b, err := New(crepe.Config{Kind: crepe.KindNativeKernel})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	_, err = b.Run(context.Background(), make(crepe.Frame, crepe.FrameSize))
	if !errors.Is(err, crepe.ErrInference) {
		t.Fatalf("Run before Init = %v, want ErrInference", err)
	}
}

func TestCloseWithoutInit(t *testing.T) {
	b, err := New(crepe.Config{Kind: crepe.KindNativeKernel})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close = %v", err)
	}
}

func TestInitMissingModel(t *testing.T) {
	b, err := New(crepe.Config{Kind: crepe.KindNativeKernel, Model: "memory:kernel-test-missing"})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Init(context.Background()); !errors.Is(err, crepe.ErrModelLoad) {
		t.Fatalf("Init = %v, want ErrModelLoad", err)
	}
	if err := b.Init(context.Background()); err == nil {
		t.Fatal("second Init succeeded")
	}
}

func TestInitMalformedModel(t *testing.T) {
	crepe.RegisterModel("kernel-test-bad", crepe.ModelFiles{
		Param: []byte("not a param file"),
		Bin:   []byte{0, 0, 0, 0},
	})
	b, err := New(crepe.Config{Kind: crepe.KindNativeKernel, Model: "memory:kernel-test-bad"})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Init(context.Background()); !errors.Is(err, crepe.ErrModelLoad) {
		t.Fatalf("Init = %v, want ErrModelLoad", err)
	}
}

// TestSinePitch runs a converted model when PITCHSCOPE_CREPE_NCNN names its
// .param file.
func TestSinePitch(t *testing.T) {
	path := os.Getenv("PITCHSCOPE_CREPE_NCNN")
	if path == "" {
		t.Skip("PITCHSCOPE_CREPE_NCNN not set")
	}

	b, err := New(crepe.Config{Kind: crepe.KindNativeKernel, Model: path, Warmup: true})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Logf("device: %s", b.Device())

	frame := make(crepe.Frame, crepe.FrameSize)
	for i := range frame {
		frame[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/crepe.SampleRate))
	}
	act, err := b.Run(context.Background(), frame)
	if err != nil {
		t.Fatal(err)
	}
	est, err := pitch.Decode(act)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(est.Hz-440) > 10 {
		t.Errorf("pitch = %.1f Hz, want about 440", est.Hz)
	}
}
