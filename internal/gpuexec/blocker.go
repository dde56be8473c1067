package gpuexec

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/block.wgsl
var blockShaderWGSL string

// flagBufSize is the size of the release-flag buffer: one u32.
const flagBufSize = 4

// blocker holds the compiled blocking-kernel pipeline and its release-flag
// buffer. Built lazily on the first Block call and reused for every sample
// after that.
type blocker struct {
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
	flagBuf    hal.Buffer
	bindGroup  hal.BindGroup
}

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("gpuexec: compile shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// newBlocker builds the blocking-kernel pipeline on the given device.
func newBlocker(device hal.Device) (*blocker, error) {
	spirv, err := compileWGSL(blockShaderWGSL)
	if err != nil {
		return nil, err
	}

	b := &blocker{}
	b.module, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "kbench_block",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("gpuexec: create blocker shader module: %w", err)
	}

	b.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "kbench_block_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		b.destroy(device)
		return nil, fmt.Errorf("gpuexec: create blocker bind layout: %w", err)
	}

	b.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "kbench_block_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{b.bindLayout},
	})
	if err != nil {
		b.destroy(device)
		return nil, fmt.Errorf("gpuexec: create blocker pipeline layout: %w", err)
	}

	b.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "kbench_block_pipeline",
		Layout:  b.pipeLayout,
		Compute: hal.ComputeState{Module: b.module, EntryPoint: "main"},
	})
	if err != nil {
		b.destroy(device)
		return nil, fmt.Errorf("gpuexec: create blocker pipeline: %w", err)
	}

	b.flagBuf, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "kbench_block_flag",
		Size:  flagBufSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		b.destroy(device)
		return nil, fmt.Errorf("gpuexec: create blocker flag buffer: %w", err)
	}

	b.bindGroup, err = device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "kbench_block_bind",
		Layout: b.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: b.flagBuf.NativeHandle(), Offset: 0, Size: flagBufSize}},
		},
	})
	if err != nil {
		b.destroy(device)
		return nil, fmt.Errorf("gpuexec: create blocker bind group: %w", err)
	}

	return b, nil
}

func (b *blocker) destroy(device hal.Device) {
	if device == nil {
		return
	}
	if b.bindGroup != nil {
		device.DestroyBindGroup(b.bindGroup)
	}
	if b.flagBuf != nil {
		device.DestroyBuffer(b.flagBuf)
	}
	if b.pipeline != nil {
		device.DestroyComputePipeline(b.pipeline)
	}
	if b.pipeLayout != nil {
		device.DestroyPipelineLayout(b.pipeLayout)
	}
	if b.bindLayout != nil {
		device.DestroyBindGroupLayout(b.bindLayout)
	}
	if b.module != nil {
		device.DestroyShaderModule(b.module)
	}
	*b = blocker{}
}

// Block engages the blocking kernel. The returned release function writes
// the flag the kernel spins on and waits for the kernel to exit; it must
// be called exactly once, after the timed work has been submitted.
func (d *Device) Block(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if d.blocker == nil {
		b, err := newBlocker(d.device)
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
		d.blocker = b
	}
	b, device, queue := d.blocker, d.device, d.queue
	d.mu.Unlock()

	// Arm the flag before the kernel starts spinning on it.
	queue.WriteBuffer(b.flagBuf, 0, make([]byte, flagBufSize))

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "kbench_block_encoder"})
	if err != nil {
		return nil, fmt.Errorf("gpuexec: create blocker encoder: %w", err)
	}
	if err := encoder.BeginEncoding("kbench_block"); err != nil {
		return nil, fmt.Errorf("gpuexec: begin blocker encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "kbench_block_pass"})
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, b.bindGroup, nil)
	pass.Dispatch(1, 1, 1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpuexec: end blocker encoding: %w", err)
	}

	fence, err := device.CreateFence()
	if err != nil {
		device.FreeCommandBuffer(cmdBuf)
		return nil, fmt.Errorf("gpuexec: create blocker fence: %w", err)
	}
	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		device.DestroyFence(fence)
		device.FreeCommandBuffer(cmdBuf)
		return nil, fmt.Errorf("gpuexec: submit blocker: %w", err)
	}

	release := func() error {
		defer device.DestroyFence(fence)
		defer device.FreeCommandBuffer(cmdBuf)

		// Host-visible write the spin loop observes. The kernel also exits
		// on its own after max_spins, so a stalled write cannot hang the
		// device.
		queue.WriteBuffer(b.flagBuf, 0, []byte{1, 0, 0, 0})
		ok, err := device.Wait(fence, 1, waitBudget(ctx))
		if err != nil {
			return fmt.Errorf("gpuexec: wait for blocker exit: %w", err)
		}
		if !ok {
			return fmt.Errorf("gpuexec: blocker did not exit within budget")
		}
		return nil
	}
	return release, nil
}
