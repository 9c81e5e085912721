package descriptor

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// Binding slots of the bindless set.
const (
	BindingSampledImages  uint32 = 0
	BindingStorageImages  uint32 = 1
	BindingStorageBuffers uint32 = 2
	BindingUniformBuffers uint32 = 3
)

type Config struct {
	MaxSampledImages uint32
	MaxStorageImages uint32
	MaxBuffers       uint32
	// UniformBuffers adds binding 3. Uniform and storage buffers share the
	// buffer index space.
	UniformBuffers bool
}

// BindlessDescriptorSet is the single descriptor set every shader indexes
// into. Each Add call allocates one slot and issues exactly one descriptor
// write; freeing only returns the slot, the GPU side entry is left stale.
type BindlessDescriptorSet struct {
	device gpu.Device
	set    gpu.DescriptorSet
	config Config

	sampledImages *HandleCache
	storageImages *HandleCache
	buffers       *HandleCache
}

func NewBindlessDescriptorSet(device gpu.Device, config Config) (*BindlessDescriptorSet, error) {
	set, err := device.CreateBindlessSet(gpu.BindlessLayout{
		SampledImages:  config.MaxSampledImages,
		StorageImages:  config.MaxStorageImages,
		Buffers:        config.MaxBuffers,
		UniformBuffers: config.UniformBuffers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bindless descriptor set")
	}
	core.LogDebug("bindless set created (sampled=%d storage=%d buffers=%d uniform=%t)",
		config.MaxSampledImages, config.MaxStorageImages, config.MaxBuffers, config.UniformBuffers)

	return &BindlessDescriptorSet{
		device:        device,
		set:           set,
		config:        config,
		sampledImages: NewHandleCache(config.MaxSampledImages),
		storageImages: NewHandleCache(config.MaxStorageImages),
		buffers:       NewHandleCache(config.MaxBuffers),
	}, nil
}

func (b *BindlessDescriptorSet) AddSampledImage(image gpu.Image) Handle {
	h := b.sampledImages.Fetch(Texture, ReadOnly)
	b.set.Update(gpu.DescriptorWrite{
		Binding:      BindingSampledImages,
		ArrayElement: h.Index(),
		Type:         vk.DescriptorTypeCombinedImageSampler,
		Image:        image,
		ImageLayout:  vk.ImageLayoutShaderReadOnlyOptimal,
	})
	return h
}

func (b *BindlessDescriptorSet) AddStorageImage(image gpu.Image) Handle {
	h := b.storageImages.Fetch(RWTexture, ReadWrite)
	b.set.Update(gpu.DescriptorWrite{
		Binding:      BindingStorageImages,
		ArrayElement: h.Index(),
		Type:         vk.DescriptorTypeStorageImage,
		Image:        image,
		ImageLayout:  vk.ImageLayoutGeneral,
	})
	return h
}

func (b *BindlessDescriptorSet) AddStorageBuffer(buffer gpu.Buffer) Handle {
	h := b.buffers.Fetch(Buffer, ReadWrite)
	b.set.Update(gpu.DescriptorWrite{
		Binding:      BindingStorageBuffers,
		ArrayElement: h.Index(),
		Type:         vk.DescriptorTypeStorageBuffer,
		Buffer:       buffer,
	})
	return h
}

func (b *BindlessDescriptorSet) AddUniformBuffer(buffer gpu.Buffer) Handle {
	core.Assert(b.config.UniformBuffers, "bindless set was created without a uniform buffer binding")
	h := b.buffers.Fetch(Buffer, ReadOnly)
	b.set.Update(gpu.DescriptorWrite{
		Binding:      BindingUniformBuffers,
		ArrayElement: h.Index(),
		Type:         vk.DescriptorTypeUniformBuffer,
		Buffer:       buffer,
	})
	return h
}

// FreeHandle returns h to the cache matching its type.
func (b *BindlessDescriptorSet) FreeHandle(h Handle) {
	b.cacheFor(h).Free(h)
}

// Release frees h once the current frame slot of queue is flushed again.
// Invalid handles are ignored.
func (b *BindlessDescriptorSet) Release(queue *gpu.DeletionQueue, h Handle) {
	if h == InvalidHandle {
		return
	}
	queue.Schedule(func() {
		b.FreeHandle(h)
	})
}

// IsCurrent reports whether h still refers to the slot's live resource.
func (b *BindlessDescriptorSet) IsCurrent(h Handle) bool {
	if !h.IsValid() {
		return false
	}
	return b.cacheFor(h).IsCurrent(h)
}

func (b *BindlessDescriptorSet) cacheFor(h Handle) *HandleCache {
	switch h.Type() {
	case Buffer:
		return b.buffers
	case Texture:
		return b.sampledImages
	case RWTexture:
		return b.storageImages
	}
	core.Assert(false, "unknown descriptor resource type in %s", h)
	return nil
}

func (b *BindlessDescriptorSet) Set() gpu.DescriptorSet {
	return b.set
}

func (b *BindlessDescriptorSet) Config() Config {
	return b.config
}

// Destroy releases the descriptor set immediately. The device must be idle.
func (b *BindlessDescriptorSet) Destroy() {
	if b.set != nil {
		b.device.DestroyDescriptorSet(b.set)
		b.set = nil
	}
}
