package kbench

import "context"

// Session abstracts the device-side operations a measurement needs.
//
// The production implementation is internal/gpuexec.Device, which owns a
// gogpu/wgpu device/queue pair; Exec opens the process-wide shared one
// when no session is injected via [WithSession].
type Session interface {
	// Synchronize blocks until all GPU work submitted so far completes.
	Synchronize(ctx context.Context) error

	// Block engages the blocking kernel: an auxiliary GPU workload that
	// spins on-device so the GPU cannot idle or power-gate while the host
	// enqueues timed work. The returned release function signals the
	// kernel to exit and waits for it; it must be called exactly once.
	Block(ctx context.Context) (release func() error, err error)

	// Handle returns the backend-specific device handle. For the wgpu
	// session this is the *gpuexec.Device itself, which exposes the HAL
	// device and queue for launchers that encode their own commands.
	Handle() any
}
