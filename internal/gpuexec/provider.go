package gpuexec

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// FromProvider creates a Device over resources borrowed from an external
// gpucontext provider (e.g. a gogpu window sharing its GPU with the
// benchmark harness). The provider must also expose HAL handles via
// HalDevice()/HalQueue(); the plain gpucontext surface is not enough to
// encode compute work.
//
// The returned Device never destroys the borrowed resources; Close only
// releases kbench-owned state (the blocking-kernel pipeline).
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpuexec: provider does not expose HAL handles")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpuexec: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpuexec: provider HalQueue is not hal.Queue")
	}

	logger().Info("gpuexec: using shared GPU device")
	return &Device{
		device:   device,
		queue:    queue,
		external: true,
		name:     "shared",
	}, nil
}

var (
	sharedOnce sync.Once
	sharedDev  *Device
	sharedErr  error
)

// Shared returns the process-wide Device, opening it on first use.
// kbench states without an injected session all run against this device.
func Shared() (*Device, error) {
	sharedOnce.Do(func() {
		sharedDev, sharedErr = Open()
	})
	return sharedDev, sharedErr
}
