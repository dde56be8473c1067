// Command kbenchdemo times a small vector-scale compute kernel with kbench.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/kbench"
	"github.com/gogpu/kbench/internal/gpuexec"
)

const scaleShaderWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < arrayLength(&data)) {
        data[i] = data[i] * 1.0001;
    }
}
`

func main() {
	var (
		tagsFlag = flag.String("tags", "", "comma-separated execution tags (cold,hot,timer,sync,run_once,no_block); empty lets kbench default")
		samples  = flag.Int("samples", 10, "minimum cold samples")
		minTime  = flag.Duration("min-time", 500*time.Millisecond, "minimum measured time")
		elems    = flag.Int("n", 1<<20, "vector length")
		runOnce  = flag.Bool("once", false, "request a single correctness-only pass")
		noBlock  = flag.Bool("no-block", false, "disable the blocking kernel")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		kbench.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	tags, err := parseTags(*tagsFlag)
	if err != nil {
		log.Fatalf("bad -tags: %v", err)
	}

	dev, err := gpuexec.Shared()
	if err != nil {
		log.Fatalf("GPU unavailable: %v", err)
	}

	kernel, err := newScaleKernel(dev, *elems)
	if err != nil {
		log.Fatalf("kernel setup failed: %v", err)
	}
	defer kernel.destroy()

	opts := []kbench.StateOption{
		kbench.WithName("scale"),
		kbench.WithSession(dev),
		kbench.WithMinSamples(*samples),
		kbench.WithMinTime(*minTime),
	}
	if *runOnce {
		opts = append(opts, kbench.WithRunOnce())
	}
	if *noBlock {
		opts = append(opts, kbench.WithDisableBlockingKernel())
	}
	st := kbench.NewState(opts...)

	if err := st.Exec(tags, kernel.launch); err != nil {
		log.Fatalf("exec failed: %v", err)
	}

	p := message.NewPrinter(language.English)
	for i, d := range st.ColdTimes() {
		p.Printf("cold sample %d: %d ns\n", i, d.Nanoseconds())
	}
	if iters := st.HotIterations(); iters > 0 {
		p.Printf("hot: %d launches in %v\n", iters, st.HotTime())
	}
}

// parseTags maps comma-separated tag names to a kbench.Tag union.
func parseTags(s string) (kbench.Tag, error) {
	names := map[string]kbench.Tag{
		"cold":     kbench.Cold,
		"hot":      kbench.Hot,
		"timer":    kbench.Timer,
		"sync":     kbench.Sync,
		"run_once": kbench.RunOnce,
		"no_block": kbench.NoBlock,
	}
	var tags kbench.Tag
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		flagBit, ok := names[part]
		if !ok {
			return 0, fmt.Errorf("unknown tag %q", part)
		}
		tags |= flagBit
	}
	return tags, nil
}

// scaleKernel owns the demo compute pipeline. The pipeline and buffers are
// built once; launch only encodes and submits a dispatch.
type scaleKernel struct {
	device hal.Device
	queue  hal.Queue

	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
	buf        hal.Buffer
	bindGroup  hal.BindGroup

	groups uint32
}

func newScaleKernel(dev *gpuexec.Device, elems int) (*scaleKernel, error) {
	device, queue := dev.HAL()
	k := &scaleKernel{device: device, queue: queue}

	var err error
	k.module, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "demo_scale",
		Source: hal.ShaderSource{WGSL: scaleShaderWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}

	k.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "demo_scale_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		k.destroy()
		return nil, fmt.Errorf("create bind layout: %w", err)
	}

	k.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "demo_scale_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{k.bindLayout},
	})
	if err != nil {
		k.destroy()
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	k.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "demo_scale_pipeline",
		Layout:  k.pipeLayout,
		Compute: hal.ComputeState{Module: k.module, EntryPoint: "main"},
	})
	if err != nil {
		k.destroy()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	size := uint64(elems) * 4
	k.buf, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "demo_scale_data",
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		k.destroy()
		return nil, fmt.Errorf("create data buffer: %w", err)
	}

	data := make([]byte, size)
	queue.WriteBuffer(k.buf, 0, data)

	k.bindGroup, err = device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "demo_scale_bind",
		Layout: k.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: k.buf.NativeHandle(), Offset: 0, Size: size}},
		},
	})
	if err != nil {
		k.destroy()
		return nil, fmt.Errorf("create bind group: %w", err)
	}

	k.groups = (uint32(elems) + 63) / 64
	return k, nil
}

// launch encodes and submits one dispatch over the whole vector. The
// harness owns all timing and synchronization.
func (k *scaleKernel) launch(_ *kbench.Launch) error {
	encoder, err := k.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "demo_scale_encoder"})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	if err := encoder.BeginEncoding("demo_scale"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "demo_scale_pass"})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, k.bindGroup, nil)
	pass.Dispatch(k.groups, 1, 1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer k.device.FreeCommandBuffer(cmdBuf)

	if err := k.queue.Submit([]hal.CommandBuffer{cmdBuf}, nil, 0); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

func (k *scaleKernel) destroy() {
	if k.device == nil {
		return
	}
	if k.bindGroup != nil {
		k.device.DestroyBindGroup(k.bindGroup)
	}
	if k.buf != nil {
		k.device.DestroyBuffer(k.buf)
	}
	if k.pipeline != nil {
		k.device.DestroyComputePipeline(k.pipeline)
	}
	if k.pipeLayout != nil {
		k.device.DestroyPipelineLayout(k.pipeLayout)
	}
	if k.bindLayout != nil {
		k.device.DestroyBindGroupLayout(k.bindLayout)
	}
	if k.module != nil {
		k.device.DestroyShaderModule(k.module)
	}
}
