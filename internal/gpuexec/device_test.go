package gpuexec

import (
	"context"
	"testing"
	"time"
)

// openTestDevice opens a real device or skips when no GPU is usable in the
// test environment.
func openTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := Open()
	if err != nil {
		t.Skipf("no GPU available: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestOpenSynchronize(t *testing.T) {
	d := openTestDevice(t)

	// An empty queue synchronizes immediately.
	if err := d.Synchronize(context.Background()); err != nil {
		t.Fatalf("Synchronize on idle queue = %v", err)
	}
}

func TestBlockRelease(t *testing.T) {
	d := openTestDevice(t)

	release, err := d.Block(context.Background())
	if err != nil {
		t.Fatalf("Block = %v", err)
	}
	if err := release(); err != nil {
		t.Fatalf("release = %v", err)
	}
	if err := d.Synchronize(context.Background()); err != nil {
		t.Fatalf("Synchronize after release = %v", err)
	}
}

func TestBlockReusesPipeline(t *testing.T) {
	d := openTestDevice(t)

	for i := 0; i < 3; i++ {
		release, err := d.Block(context.Background())
		if err != nil {
			t.Fatalf("Block #%d = %v", i, err)
		}
		if err := release(); err != nil {
			t.Fatalf("release #%d = %v", i, err)
		}
	}
}

func TestSynchronizeCanceledContext(t *testing.T) {
	d := openTestDevice(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Synchronize(ctx); err == nil {
		t.Fatal("Synchronize with canceled context = nil, want error")
	}
}

func TestClosedDevice(t *testing.T) {
	d := openTestDevice(t)
	d.Close()

	if err := d.Synchronize(context.Background()); err != ErrClosed {
		t.Errorf("Synchronize on closed device = %v, want %v", err, ErrClosed)
	}
	if _, err := d.Block(context.Background()); err != ErrClosed {
		t.Errorf("Block on closed device = %v, want %v", err, ErrClosed)
	}
	// Close is idempotent.
	d.Close()
}

func TestWaitBudget(t *testing.T) {
	if got := waitBudget(context.Background()); got != syncTimeout {
		t.Errorf("waitBudget without deadline = %v, want %v", got, syncTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if got := waitBudget(ctx); got > time.Second {
		t.Errorf("waitBudget with 1s deadline = %v, want <= 1s", got)
	}

	expired, cancel2 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel2()
	if got := waitBudget(expired); got != 0 {
		t.Errorf("waitBudget with expired deadline = %v, want 0", got)
	}
}

func TestBlockerShaderCompiles(t *testing.T) {
	spirv, err := compileWGSL(blockShaderWGSL)
	if err != nil {
		t.Fatalf("blocking kernel WGSL does not compile: %v", err)
	}
	if len(spirv) == 0 {
		t.Fatal("empty SPIR-V output")
	}
	// SPIR-V modules start with the magic number 0x07230203.
	if spirv[0] != 0x07230203 {
		t.Errorf("SPIR-V magic = %#x, want 0x07230203", spirv[0])
	}
}

func TestFromProviderRejectsNonHAL(t *testing.T) {
	if _, err := FromProvider(nil); err == nil {
		t.Fatal("FromProvider(nil) = nil error, want rejection")
	}
}
