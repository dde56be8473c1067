// Package gpuexec owns the gogpu/wgpu device a kbench measurement runs
// against.
//
// It provides device bring-up (own instance or a shared gpucontext
// provider), queue synchronization through fences, and the blocking kernel:
// a spin-loop compute shader that keeps the GPU from idling or power-gating
// between timed launches.
package gpuexec
