package crepe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/haivivi/pitchscope/pkg/crepe"
	"github.com/haivivi/pitchscope/pkg/crepe/crepetest"
)

func TestCheckFrame(t *testing.T) {
	if err := crepe.CheckFrame(make(crepe.Frame, crepe.FrameSize)); err != nil {
		t.Fatal(err)
	}
	if err := crepe.CheckFrame(make(crepe.Frame, 512)); !errors.Is(err, crepe.ErrInference) {
		t.Errorf("err = %v, want ErrInference", err)
	}
}

func TestCheckActivation(t *testing.T) {
	if _, err := crepe.CheckActivation(make([]float32, 360)); err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 359, 361, 720} {
		if _, err := crepe.CheckActivation(make([]float32, n)); !errors.Is(err, crepe.ErrInference) {
			t.Errorf("len %d: err = %v, want ErrInference", n, err)
		}
	}
}

func TestWarmup(t *testing.T) {
	var seen crepe.Frame
	a := crepetest.New(func(_ context.Context, f crepe.Frame) (crepe.Activation, error) {
		seen = f
		return crepetest.OneHot(0, 1), nil
	})
	ctx := context.Background()
	if err := a.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if err := crepe.Warmup(ctx, a); err != nil {
		t.Fatal(err)
	}
	if len(seen) != crepe.FrameSize {
		t.Fatalf("warmup frame len = %d", len(seen))
	}
	for i, v := range seen {
		if v != 0 {
			t.Fatalf("warmup sample %d = %v, want 0", i, v)
		}
	}
}

func TestAdapterLifecycle(t *testing.T) {
	a := crepetest.New(nil)
	ctx := context.Background()

	if _, err := a.Run(ctx, make(crepe.Frame, crepe.FrameSize)); !errors.Is(err, crepe.ErrInference) {
		t.Errorf("Run before Init err = %v", err)
	}
	if err := a.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Init(ctx); err == nil {
		t.Error("second Init should fail")
	}
	a.Close()
	a.Close()
	if a.Closes() != 2 || !a.Closed() {
		t.Errorf("closes = %d", a.Closes())
	}
}
