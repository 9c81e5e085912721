package framegraph

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type ResizeMode uint8

const (
	// ResizeFixed textures keep the extent they were declared with.
	ResizeFixed ResizeMode = iota
	// ResizeSwapChainRelative textures follow the swapchain extent and are
	// recreated on resize.
	ResizeSwapChainRelative
)

func (m ResizeMode) String() string {
	if m == ResizeSwapChainRelative {
		return "SwapChainRelative"
	}
	return "Fixed"
}

// ResourceInfo is one of *BufferInfo, *TextureInfo or *ReferenceInfo.
type ResourceInfo interface {
	isResourceInfo()
}

type BufferInfo struct {
	Size          uint64
	InstanceCount uint32
	// Usage is filled by CreateResources with the union of every consumer.
	Usage            vk.BufferUsageFlags
	MemoryProperties vk.MemoryPropertyFlags
}

type TextureInfo struct {
	Format      vk.Format
	Extent      vk.Extent3D
	MipLevels   uint32
	ArrayLayers uint32
	// Usage is filled by CreateResources with the union of every consumer.
	Usage      vk.ImageUsageFlags
	ResizeMode ResizeMode
}

// ReferenceInfo aliases a buffer or texture declared by another pass under
// the same name. Resolved stays invalid until ResolveReferences runs.
type ReferenceInfo struct {
	Resolved ResourceHandle
}

func (*BufferInfo) isResourceInfo()    {}
func (*TextureInfo) isResourceInfo()   {}
func (*ReferenceInfo) isResourceInfo() {}

// Resource is a single declaration made by a pass.
type Resource struct {
	Name  string
	Usage Usage
	Info  ResourceInfo

	// Accumulated is the union of the usage of every declaration resolving
	// to this resource. Only meaningful on buffers and textures.
	Accumulated Usage

	// Set by CreateResources on buffers and textures.
	Buffer  BufferHandle
	Texture TextureHandle
}

func (r *Resource) IsReference() bool {
	_, ok := r.Info.(*ReferenceInfo)
	return ok
}

func (r *Resource) Kind() string {
	switch r.Info.(type) {
	case *BufferInfo:
		return "buffer"
	case *TextureInfo:
		return "texture"
	case *ReferenceInfo:
		return "reference"
	}
	return "unknown"
}

type Buffer struct {
	Name      string
	Resource  gpu.Buffer
	Size      uint64
	Stride    uint64
	Alignment uint64
	// InstanceCount copies of Stride bytes, usually one per frame in flight.
	InstanceCount uint32
	Usage         vk.BufferUsageFlags

	StorageDescriptor descriptor.Handle
	UniformDescriptor descriptor.Handle
}

// Offset returns the byte offset of the given instance.
func (b *Buffer) Offset(instance uint32) uint64 {
	return uint64(instance%b.InstanceCount) * b.Stride
}

type Texture struct {
	Name        string
	Resource    gpu.Image
	Format      vk.Format
	Extent      vk.Extent3D
	MipLevels   uint32
	ArrayLayers uint32
	Usage       vk.ImageUsageFlags
	Aspect      vk.ImageAspectFlags
	ResizeMode  ResizeMode
	// Layout is the layout the image was last transitioned to through the pool.
	Layout vk.ImageLayout

	SampledDescriptor descriptor.Handle
	StorageDescriptor descriptor.Handle
}

// NodeInfo is what a pass declares about itself.
type NodeInfo struct {
	Name   string
	Reads  []ResourceHandle
	Writes []ResourceHandle
}

// ImageBarrier moves a texture into the layout its node needs. Image is
// captured when the barrier is built and patched by ResizeImages.
type ImageBarrier struct {
	Texture   TextureHandle
	Image     gpu.Image
	NewLayout vk.ImageLayout
}

type Node struct {
	Info             NodeInfo
	Pass             RenderPass
	ImageBarriers    []ImageBarrier
	AccessedTextures []TextureHandle
}
