// Package gpu is the contract between the frame graph and a Vulkan backend.
// The frame graph, the bindless descriptor set and the renderer only talk to
// these interfaces, the concrete device is injected at construction time.
package gpu

import (
	vk "github.com/goki/vulkan"
)

// MaxFramesInFlight is the number of frames the CPU may record ahead of the GPU.
// It also sizes the deletion queue.
const MaxFramesInFlight = 2

// Limits holds the physical device limits the frame graph depends on.
type Limits struct {
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
	MaxImageDimension2D             uint32
}

type BufferCreateInfo struct {
	Name             string
	Size             uint64
	Usage            vk.BufferUsageFlags
	MemoryProperties vk.MemoryPropertyFlags
}

type ImageCreateInfo struct {
	Name        string
	Format      vk.Format
	Extent      vk.Extent3D
	MipLevels   uint32
	ArrayLayers uint32
	Usage       vk.ImageUsageFlags
	Aspect      vk.ImageAspectFlags
}

// Buffer is a device buffer with its own memory.
type Buffer interface {
	Handle() vk.Buffer
	Size() uint64
}

// Image is a device image together with its default view.
type Image interface {
	Handle() vk.Image
	View() vk.ImageView
	Extent() vk.Extent3D
	Format() vk.Format
	Aspect() vk.ImageAspectFlags
}

// BindlessLayout sizes the arrays of a bindless descriptor set.
type BindlessLayout struct {
	SampledImages  uint32
	StorageImages  uint32
	Buffers        uint32
	UniformBuffers bool
}

// DescriptorWrite updates one array element of a descriptor set binding.
// Exactly one of Image or Buffer is set.
type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Type         vk.DescriptorType
	Image        Image
	ImageLayout  vk.ImageLayout
	Buffer       Buffer
}

type DescriptorSet interface {
	Handle() vk.DescriptorSet
	Update(writes ...DescriptorWrite)
}

// CommandBuffer is a command buffer in the recording state.
type CommandBuffer interface {
	Handle() vk.CommandBuffer
	PipelineBarrier(srcStage, dstStage vk.PipelineStageFlags, barriers []ImageBarrier)
	ClearColorImage(image Image, layout vk.ImageLayout, color [4]float32)
	ClearDepthStencilImage(image Image, layout vk.ImageLayout, depth float32, stencil uint32)
	UpdateBuffer(buffer Buffer, offset uint64, data []byte)
	BlitImage(src Image, srcLayout vk.ImageLayout, dst Image, dstLayout vk.ImageLayout)
}

// Device creates and destroys GPU objects. Destruction is immediate, callers
// that may still have work in flight go through a DeletionQueue.
type Device interface {
	Limits() Limits

	CreateBuffer(info BufferCreateInfo) (Buffer, error)
	DestroyBuffer(buffer Buffer)

	CreateImage(info ImageCreateInfo) (Image, error)
	DestroyImage(image Image)

	CreateBindlessSet(layout BindlessLayout) (DescriptorSet, error)
	DestroyDescriptorSet(set DescriptorSet)

	// ImmediateSubmit records with a one-time command buffer, submits it and
	// waits for the queue to go idle.
	ImmediateSubmit(record func(cmd CommandBuffer)) error
	WaitIdle() error
}

// Frame is the state of one frame between BeginFrame and EndFrame.
type Frame struct {
	Index      uint32
	ImageIndex uint32
	Cmd        CommandBuffer
	// Target is the acquired swapchain image.
	Target Image
}

// Swapchain owns the presentation images and the per-frame synchronisation.
type Swapchain interface {
	Extent() vk.Extent2D
	Format() vk.Format
	ImageCount() uint32

	// BeginFrame waits for the fence guarding frameIndex, acquires the next
	// image and starts recording. It returns core.ErrSwapchainBooting when the
	// swapchain must be recreated first.
	BeginFrame(frameIndex uint32) (*Frame, error)
	// EndFrame submits the recorded commands and presents Frame.Target, which
	// must be in the present layout.
	EndFrame(frame *Frame) error
	Recreate(width, height uint32) error
}
