package framegraph

import (
	units "github.com/docker/go-units"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"golang.org/x/exp/slices"
)

// ResourcePool owns the nodes of the frame graph and every resource they
// declare. Concrete buffers and textures live in value arrays and are only
// reachable through handles.
type ResourcePool struct {
	device   gpu.Device
	deletion *gpu.DeletionQueue
	bindless *descriptor.BindlessDescriptorSet

	nodes     []Node
	resources []Resource
	buffers   []Buffer
	textures  []Texture

	defaultExtent vk.Extent2D
	generation    uint32
	created       bool
}

// NewResourcePool creates an empty pool. bindless may be nil, in which case no
// descriptors are registered for the created resources.
func NewResourcePool(device gpu.Device, deletion *gpu.DeletionQueue, bindless *descriptor.BindlessDescriptorSet, width, height uint32) *ResourcePool {
	return &ResourcePool{
		device:        device,
		deletion:      deletion,
		bindless:      bindless,
		defaultExtent: vk.Extent2D{Width: width, Height: height},
	}
}

func (p *ResourcePool) AddNode(pass RenderPass) NodeHandle {
	p.assertMutable("node")
	core.Assert(len(p.nodes) < maxHandleEntries, "too many frame graph nodes")
	p.nodes = append(p.nodes, Node{
		Info: pass.Info(),
		Pass: pass,
	})
	return NodeHandle(packHandle(p.generation, len(p.nodes)-1))
}

func (p *ResourcePool) AddBuffer(name string, usage Usage, info BufferInfo) ResourceHandle {
	return p.addResource(name, usage, &info)
}

func (p *ResourcePool) AddImage(name string, usage Usage, info TextureInfo) ResourceHandle {
	return p.addResource(name, usage, &info)
}

// AddReference declares an access to a buffer or texture another pass adds
// under the same name.
func (p *ResourcePool) AddReference(name string, usage Usage) ResourceHandle {
	core.Assert(name != "", "frame graph references need a name")
	return p.addResource(name, usage, &ReferenceInfo{Resolved: InvalidResource})
}

func (p *ResourcePool) addResource(name string, usage Usage, info ResourceInfo) ResourceHandle {
	p.assertMutable("resource " + name)
	core.Assert(len(p.resources) < maxHandleEntries, "too many frame graph resources")
	if name == "" {
		name = "anonymous-" + uuid.NewString()
	}
	p.resources = append(p.resources, Resource{
		Name:    name,
		Usage:   usage,
		Info:    info,
		Buffer:  InvalidBuffer,
		Texture: InvalidTexture,
	})
	return ResourceHandle(packHandle(p.generation, len(p.resources)-1))
}

func (p *ResourcePool) assertMutable(what string) {
	core.Assert(!p.created, "cannot declare %s after the frame graph resources were created", what)
}

// ResolveReferences binds every reference to the first buffer or texture
// declared with the same name. An unmatched reference means the graph is
// malformed.
func (p *ResourcePool) ResolveReferences() {
	for i := range p.resources {
		ref, ok := p.resources[i].Info.(*ReferenceInfo)
		if !ok {
			continue
		}
		name := p.resources[i].Name
		ref.Resolved = InvalidResource
		for j := range p.resources {
			if p.resources[j].IsReference() || p.resources[j].Name != name {
				continue
			}
			ref.Resolved = ResourceHandle(packHandle(p.generation, j))
			break
		}
		if !ref.Resolved.IsValid() {
			core.LogFatal("frame graph reference %q does not match any declared buffer or texture", name)
		}
		core.Assert(ref.Resolved.IsValid(), "unresolved frame graph reference %q", name)
	}
}

// CreateResources turns the declarations into GPU objects. References must
// have been resolved.
func (p *ResourcePool) CreateResources() {
	core.Assert(!p.created, "frame graph resources already created")

	// Accumulate usage on the actual resource of every declaration.
	for i := range p.resources {
		r := &p.resources[i]
		actual := p.ActualResource(ResourceHandle(packHandle(p.generation, i)))
		actual.Accumulated |= r.Usage
		switch info := actual.Info.(type) {
		case *BufferInfo:
			info.Usage |= toBufferUsage(r.Usage)
		case *TextureInfo:
			info.Usage |= toImageUsage(r.Usage)
		}
	}

	for i := range p.resources {
		r := &p.resources[i]
		switch info := r.Info.(type) {
		case *BufferInfo:
			r.Buffer = p.createBuffer(r, info)
		case *TextureInfo:
			r.Texture = p.createTexture(r, info)
		}
	}

	for i := range p.nodes {
		p.buildBarriers(&p.nodes[i])
	}
	p.created = true

	for _, node := range p.nodes {
		if creator, ok := node.Pass.(ResourceCreator); ok {
			creator.CreateResources(p)
		}
	}
	core.LogInfo("frame graph created: %d nodes, %d resources, %d buffers, %d textures",
		len(p.nodes), len(p.resources), len(p.buffers), len(p.textures))
}

func (p *ResourcePool) createBuffer(r *Resource, info *BufferInfo) BufferHandle {
	core.Assert(info.Usage != 0, "buffer %q has no buffer usage (declared %s)", r.Name, r.Accumulated)
	limits := p.device.Limits()
	alignment := limits.MinStorageBufferOffsetAlignment
	if info.Usage&vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit) != 0 {
		alignment = limits.MinUniformBufferOffsetAlignment
	}
	instances := math.Max(info.InstanceCount, 1)
	stride := math.AlignUp(info.Size, alignment)
	size := stride * uint64(instances)

	memory := info.MemoryProperties
	if memory == 0 {
		memory = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
	resource, err := p.device.CreateBuffer(gpu.BufferCreateInfo{
		Name:             r.Name,
		Size:             size,
		Usage:            info.Usage,
		MemoryProperties: memory,
	})
	core.AssertNoError(err, "failed to create frame graph buffer %q", r.Name)

	buffer := Buffer{
		Name:              r.Name,
		Resource:          resource,
		Size:              size,
		Stride:            stride,
		Alignment:         alignment,
		InstanceCount:     instances,
		Usage:             info.Usage,
		StorageDescriptor: descriptor.InvalidHandle,
		UniformDescriptor: descriptor.InvalidHandle,
	}
	if p.bindless != nil {
		if r.Accumulated.HasAny(usageStorage) {
			buffer.StorageDescriptor = p.bindless.AddStorageBuffer(resource)
		}
		if r.Accumulated.HasAny(UsageUniform) {
			if p.bindless.Config().UniformBuffers {
				buffer.UniformDescriptor = p.bindless.AddUniformBuffer(resource)
			} else {
				core.LogWarn("buffer %q is used as uniform but the bindless set has no uniform binding", r.Name)
			}
		}
	}
	core.LogDebug("frame graph buffer %q: %s (%d x %d bytes)", r.Name, units.BytesSize(float64(size)), instances, stride)

	p.buffers = append(p.buffers, buffer)
	return BufferHandle(packHandle(p.generation, len(p.buffers)-1))
}

func (p *ResourcePool) createTexture(r *Resource, info *TextureInfo) TextureHandle {
	extent := info.Extent
	if info.ResizeMode == ResizeSwapChainRelative {
		core.Assert(extent.Width == 0 && extent.Height == 0,
			"swapchain relative texture %q must be declared without an extent", r.Name)
		extent = vk.Extent3D{Width: p.defaultExtent.Width, Height: p.defaultExtent.Height, Depth: 1}
	}
	if extent.Depth == 0 {
		extent.Depth = 1
	}
	core.Assert(info.Usage != 0, "texture %q has no usage", r.Name)

	texture := Texture{
		Name:              r.Name,
		Format:            info.Format,
		Extent:            extent,
		MipLevels:         math.Max(info.MipLevels, 1),
		ArrayLayers:       math.Max(info.ArrayLayers, 1),
		Usage:             info.Usage,
		Aspect:            gpu.AspectFromFormat(info.Format),
		ResizeMode:        info.ResizeMode,
		Layout:            vk.ImageLayoutUndefined,
		SampledDescriptor: descriptor.InvalidHandle,
		StorageDescriptor: descriptor.InvalidHandle,
	}
	p.instantiateTexture(&texture, r.Accumulated)

	p.textures = append(p.textures, texture)
	return TextureHandle(packHandle(p.generation, len(p.textures)-1))
}

// instantiateTexture creates the image of t at t.Extent and registers its
// bindless descriptors.
func (p *ResourcePool) instantiateTexture(t *Texture, usage Usage) {
	image, err := p.device.CreateImage(gpu.ImageCreateInfo{
		Name:        t.Name,
		Format:      t.Format,
		Extent:      t.Extent,
		MipLevels:   t.MipLevels,
		ArrayLayers: t.ArrayLayers,
		Usage:       t.Usage,
		Aspect:      t.Aspect,
	})
	core.AssertNoError(err, "failed to create frame graph texture %q", t.Name)
	t.Resource = image

	if p.bindless != nil {
		if usage.HasAny(UsageSampled) {
			t.SampledDescriptor = p.bindless.AddSampledImage(image)
		}
		if usage.HasAny(usageStorage) {
			t.StorageDescriptor = p.bindless.AddStorageImage(image)
		}
	}
	core.LogDebug("frame graph texture %q: %dx%d format %d", t.Name, t.Extent.Width, t.Extent.Height, t.Format)
}

// buildBarriers records one barrier per texture the node touches. Accesses
// that resolve to the same texture are merged and the union of their usages
// picks the layout.
func (p *ResourcePool) buildBarriers(node *Node) {
	node.ImageBarriers = node.ImageBarriers[:0]
	node.AccessedTextures = node.AccessedTextures[:0]

	var usages []Usage
	accesses := append(append([]ResourceHandle(nil), node.Info.Reads...), node.Info.Writes...)
	for _, h := range accesses {
		declared := p.Resource(h)
		actual := p.ActualResource(h)
		if !actual.Texture.IsValid() {
			continue
		}
		i := slices.Index(node.AccessedTextures, actual.Texture)
		if i < 0 {
			node.AccessedTextures = append(node.AccessedTextures, actual.Texture)
			usages = append(usages, 0)
			i = len(usages) - 1
		}
		usages[i] |= declared.Usage
	}

	for i, texture := range node.AccessedTextures {
		layout := layoutForUsage(usages[i])
		if layout == vk.ImageLayoutUndefined {
			continue
		}
		node.ImageBarriers = append(node.ImageBarriers, ImageBarrier{
			Texture:   texture,
			Image:     p.Texture(texture).Resource,
			NewLayout: layout,
		})
	}
}

// ResizeImages recreates every swapchain relative texture at the new extent
// and brings it back to the layout it was in. The old images and descriptors
// are released through the deletion queue. A zero dimension is ignored.
func (p *ResourcePool) ResizeImages(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	p.defaultExtent = vk.Extent2D{Width: width, Height: height}
	if !p.created {
		return
	}

	err := p.device.ImmediateSubmit(func(cmd gpu.CommandBuffer) {
		for i := range p.textures {
			t := &p.textures[i]
			if t.ResizeMode != ResizeSwapChainRelative {
				continue
			}
			p.releaseTexture(t)

			previous := t.Layout
			t.Extent = vk.Extent3D{Width: width, Height: height, Depth: 1}
			p.instantiateTexture(t, p.textureUsage(TextureHandle(packHandle(p.generation, i))))
			if previous != vk.ImageLayoutUndefined {
				gpu.Transition(cmd, t.Resource, vk.ImageLayoutUndefined, previous)
			}
			t.Layout = previous
		}
	})
	core.AssertNoError(err, "failed to resize frame graph images to %dx%d", width, height)

	for i := range p.nodes {
		for j := range p.nodes[i].ImageBarriers {
			b := &p.nodes[i].ImageBarriers[j]
			b.Image = p.Texture(b.Texture).Resource
		}
	}
	core.LogDebug("frame graph images resized to %dx%d", width, height)
}

// textureUsage returns the accumulated usage of the resource owning texture.
func (p *ResourcePool) textureUsage(texture TextureHandle) Usage {
	for i := range p.resources {
		if p.resources[i].Texture == texture {
			return p.resources[i].Accumulated
		}
	}
	return 0
}

func (p *ResourcePool) releaseTexture(t *Texture) {
	if t.Resource != nil {
		image, device := t.Resource, p.device
		p.deletion.Schedule(func() {
			device.DestroyImage(image)
		})
		t.Resource = nil
	}
	if p.bindless != nil {
		p.bindless.Release(p.deletion, t.SampledDescriptor)
		p.bindless.Release(p.deletion, t.StorageDescriptor)
	}
	t.SampledDescriptor = descriptor.InvalidHandle
	t.StorageDescriptor = descriptor.InvalidHandle
}

func (p *ResourcePool) releaseBuffer(b *Buffer) {
	if b.Resource != nil {
		buffer, device := b.Resource, p.device
		p.deletion.Schedule(func() {
			device.DestroyBuffer(buffer)
		})
		b.Resource = nil
	}
	if p.bindless != nil {
		p.bindless.Release(p.deletion, b.StorageDescriptor)
		p.bindless.Release(p.deletion, b.UniformDescriptor)
	}
	b.StorageDescriptor = descriptor.InvalidHandle
	b.UniformDescriptor = descriptor.InvalidHandle
}

// Transition records a layout change of texture and tracks the new layout.
func (p *ResourcePool) Transition(cmd gpu.CommandBuffer, texture TextureHandle, layout vk.ImageLayout) {
	t := p.Texture(texture)
	if t.Layout == layout {
		return
	}
	gpu.Transition(cmd, t.Resource, t.Layout, layout)
	t.Layout = layout
}

// ApplyBarriers records the image barriers of node, skipping textures that
// already are in the required layout.
func (p *ResourcePool) ApplyBarriers(node NodeHandle, cmd gpu.CommandBuffer) {
	n := p.Node(node)
	var (
		barriers           []gpu.ImageBarrier
		srcStage, dstStage vk.PipelineStageFlags
	)
	for _, b := range n.ImageBarriers {
		t := p.Texture(b.Texture)
		if t.Layout == b.NewLayout {
			continue
		}
		srcAccess, src := gpu.LayoutScope(t.Layout)
		dstAccess, dst := gpu.LayoutScope(b.NewLayout)
		barriers = append(barriers, gpu.ImageBarrier{
			Image:     b.Image,
			OldLayout: t.Layout,
			NewLayout: b.NewLayout,
			SrcAccess: srcAccess,
			DstAccess: dstAccess,
		})
		srcStage |= src
		dstStage |= dst
		t.Layout = b.NewLayout
	}
	if len(barriers) > 0 {
		cmd.PipelineBarrier(srcStage, dstStage, barriers)
	}
}

// Reset schedules every concrete object for deletion and empties the pool.
// Handles issued before the reset no longer pass the accessors.
func (p *ResourcePool) Reset() {
	for i := range p.textures {
		p.releaseTexture(&p.textures[i])
	}
	for i := range p.buffers {
		p.releaseBuffer(&p.buffers[i])
	}
	p.nodes = nil
	p.resources = nil
	p.buffers = nil
	p.textures = nil
	p.created = false
	p.generation = (p.generation + 1) & handleGenMask
}

// Destroy releases every GPU object owned by the pool.
func (p *ResourcePool) Destroy() {
	p.Reset()
}

func (p *ResourcePool) checkHandle(kind string, h uint32, length int) uint32 {
	core.Assert(h != invalidHandle, "invalid %s handle", kind)
	core.Assert(handleGeneration(h) == p.generation, "stale %s from generation %d, pool is at %d",
		formatHandle(kind, h), handleGeneration(h), p.generation)
	index := handleIndex(h)
	core.Assert(index < uint32(length), "%s out of range (%d entries)", formatHandle(kind, h), length)
	return index
}

func (p *ResourcePool) Node(h NodeHandle) *Node {
	return &p.nodes[p.checkHandle("node", uint32(h), len(p.nodes))]
}

func (p *ResourcePool) Resource(h ResourceHandle) *Resource {
	return &p.resources[p.checkHandle("resource", uint32(h), len(p.resources))]
}

func (p *ResourcePool) Buffer(h BufferHandle) *Buffer {
	return &p.buffers[p.checkHandle("buffer", uint32(h), len(p.buffers))]
}

func (p *ResourcePool) Texture(h TextureHandle) *Texture {
	return &p.textures[p.checkHandle("texture", uint32(h), len(p.textures))]
}

// ActualHandle follows one level of reference indirection.
func (p *ResourcePool) ActualHandle(h ResourceHandle) ResourceHandle {
	if ref, ok := p.Resource(h).Info.(*ReferenceInfo); ok {
		core.Assert(ref.Resolved.IsValid(), "reference %q used before ResolveReferences", p.Resource(h).Name)
		return ref.Resolved
	}
	return h
}

func (p *ResourcePool) ActualResource(h ResourceHandle) *Resource {
	return p.Resource(p.ActualHandle(h))
}

// TextureOf returns the concrete texture a resource declaration maps to.
func (p *ResourcePool) TextureOf(h ResourceHandle) *Texture {
	actual := p.ActualResource(h)
	core.Assert(actual.Texture.IsValid(), "resource %q is not a created texture", actual.Name)
	return p.Texture(actual.Texture)
}

// TextureHandleOf returns the handle of the concrete texture of a declaration.
func (p *ResourcePool) TextureHandleOf(h ResourceHandle) TextureHandle {
	actual := p.ActualResource(h)
	core.Assert(actual.Texture.IsValid(), "resource %q is not a created texture", actual.Name)
	return actual.Texture
}

// BufferOf returns the concrete buffer a resource declaration maps to.
func (p *ResourcePool) BufferOf(h ResourceHandle) *Buffer {
	actual := p.ActualResource(h)
	core.Assert(actual.Buffer.IsValid(), "resource %q is not a created buffer", actual.Name)
	return p.Buffer(actual.Buffer)
}

// FindResource returns the first buffer or texture declared under name.
func (p *ResourcePool) FindResource(name string) (ResourceHandle, bool) {
	for i := range p.resources {
		if !p.resources[i].IsReference() && p.resources[i].Name == name {
			return ResourceHandle(packHandle(p.generation, i)), true
		}
	}
	return InvalidResource, false
}

// Nodes returns the node handles in registration order.
func (p *ResourcePool) Nodes() []NodeHandle {
	handles := make([]NodeHandle, len(p.nodes))
	for i := range p.nodes {
		handles[i] = NodeHandle(packHandle(p.generation, i))
	}
	return handles
}

// Resources returns every declaration handle in declaration order.
func (p *ResourcePool) Resources() []ResourceHandle {
	handles := make([]ResourceHandle, len(p.resources))
	for i := range p.resources {
		handles[i] = ResourceHandle(packHandle(p.generation, i))
	}
	return handles
}

func (p *ResourcePool) BufferCount() int  { return len(p.buffers) }
func (p *ResourcePool) TextureCount() int { return len(p.textures) }

// Extent is the extent swapchain relative textures are created with.
func (p *ResourcePool) Extent() vk.Extent2D {
	return p.defaultExtent
}

func (p *ResourcePool) Created() bool {
	return p.created
}

func (p *ResourcePool) Bindless() *descriptor.BindlessDescriptorSet {
	return p.bindless
}

func (p *ResourcePool) DeletionQueue() *gpu.DeletionQueue {
	return p.deletion
}
