package gpuexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Device errors.
var (
	// ErrNoGPU is returned when no usable GPU backend or adapter exists.
	ErrNoGPU = errors.New("gpuexec: no GPU available")

	// ErrClosed is returned when operating on a closed device.
	ErrClosed = errors.New("gpuexec: device is closed")
)

// syncTimeout bounds a single fence wait when the context carries no
// deadline. Hot batches submit thousands of launches before syncing, so
// this is deliberately generous.
const syncTimeout = 30 * time.Second

// Device owns a wgpu HAL device/queue pair and provides the device-side
// operations kbench measurements need: queue synchronization and the
// blocking kernel. It implements kbench.Session.
//
// Device is safe for use by one measurement at a time; the mutex only
// guards bring-up and teardown against the process-wide Shared() accessor.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	// external marks device/queue as borrowed from a gpucontext provider;
	// borrowed resources are never destroyed here.
	external bool
	closed   bool

	name string

	blocker *blocker
}

// Open creates a Device over its own wgpu instance, selecting a discrete
// GPU when one exists and falling back to any adapter otherwise.
func Open() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not registered", ErrNoGPU)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNoGPU, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters", ErrNoGPU)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open adapter %q: %w", ErrNoGPU, selected.Info.Name, err)
	}

	d := &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     selected.Info.Name,
	}
	logger().Info("gpuexec: device opened", "adapter", d.name)
	return d, nil
}

// Close releases the device and its resources. Resources borrowed from an
// external provider are left alone. Close is idempotent.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.blocker != nil {
		d.blocker.destroy(d.device)
		d.blocker = nil
	}
	if !d.external {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.closed = true
}

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// Handle returns the Device itself. Launchers that encode their own
// commands type-assert it and use HAL and Queue.
func (d *Device) Handle() any { return d }

// HAL returns the underlying HAL device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// HalDevice returns the HAL device as an untyped handle, matching the
// gpucontext HAL-provider convention.
func (d *Device) HalDevice() any { return d.device }

// HalQueue returns the HAL queue as an untyped handle.
func (d *Device) HalQueue() any { return d.queue }

// Synchronize blocks until all work submitted to the queue so far has
// completed, by submitting a fence-only signal and waiting on it.
func (d *Device) Synchronize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	device, queue, closed := d.device, d.queue, d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}

	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpuexec: create fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := queue.Submit(nil, fence, 1); err != nil {
		return fmt.Errorf("gpuexec: submit fence: %w", err)
	}
	ok, err := device.Wait(fence, 1, waitBudget(ctx))
	if err != nil {
		return fmt.Errorf("gpuexec: wait: %w", err)
	}
	if !ok {
		return fmt.Errorf("gpuexec: wait: fence not signaled within budget")
	}
	return nil
}

// waitBudget derives a fence timeout from the context deadline, capped at
// syncTimeout.
func waitBudget(ctx context.Context) time.Duration {
	budget := syncTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}
	if budget < 0 {
		budget = 0
	}
	return budget
}
