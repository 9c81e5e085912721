package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// VulkanDescriptorSet is the bindless set: one layout, one pool, one set and
// the sampler paired with every combined image sampler write.
type VulkanDescriptorSet struct {
	context *VulkanContext

	Layout  vk.DescriptorSetLayout
	Pool    vk.DescriptorPool
	handle  vk.DescriptorSet
	Sampler vk.Sampler
}

func (ds *VulkanDescriptorSet) Handle() vk.DescriptorSet { return ds.handle }

func BindlessSetCreate(context *VulkanContext, layout gpu.BindlessLayout) (*VulkanDescriptorSet, error) {
	ds := &VulkanDescriptorSet{context: context}
	device := context.Device.LogicalDevice
	stages := vk.ShaderStageFlags(vk.ShaderStageAll)

	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: layout.SampledImages, StageFlags: stages},
		{Binding: 1, DescriptorType: vk.DescriptorTypeStorageImage, DescriptorCount: layout.StorageImages, StageFlags: stages},
		{Binding: 2, DescriptorType: vk.DescriptorTypeStorageBuffer, DescriptorCount: layout.Buffers, StageFlags: stages},
	}
	if layout.UniformBuffers {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding: 3, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: layout.Buffers, StageFlags: stages,
		})
	}

	bindingFlags := make([]vk.DescriptorBindingFlags, len(bindings))
	for i := range bindingFlags {
		bindingFlags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit | vk.DescriptorBindingUpdateAfterBindBit)
	}
	flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  uint32(len(bindingFlags)),
		PBindingFlags: bindingFlags,
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		PNext:        unsafe.Pointer(&flagsInfo),
		Flags:        vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit),
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := checkResult(vk.CreateDescriptorSetLayout(device, &layoutInfo, context.Allocator, &ds.Layout), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}

	poolSizes := make([]vk.DescriptorPoolSize, 0, len(bindings))
	for _, b := range bindings {
		if b.DescriptorCount == 0 {
			continue
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: b.DescriptorType, DescriptorCount: b.DescriptorCount})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit),
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := checkResult(vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &ds.Pool), "vkCreateDescriptorPool"); err != nil {
		ds.Destroy()
		return nil, err
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     ds.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{ds.Layout},
	}
	if err := checkResult(vk.AllocateDescriptorSets(device, &allocateInfo, &ds.handle), "vkAllocateDescriptorSets"); err != nil {
		ds.Destroy()
		return nil, err
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		UnnormalizedCoordinates: vk.False,
		MinLod:                  0,
		MaxLod:                  vk.LodClampNone,
	}
	if err := checkResult(vk.CreateSampler(device, &samplerInfo, context.Allocator, &ds.Sampler), "vkCreateSampler"); err != nil {
		ds.Destroy()
		return nil, errors.Wrap(err, "bindless default sampler")
	}

	return ds, nil
}

// Update issues one vkUpdateDescriptorSets call for all writes.
func (ds *VulkanDescriptorSet) Update(writes ...gpu.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		vkWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          ds.handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  w.Type,
		}
		switch {
		case w.Image != nil:
			info := vk.DescriptorImageInfo{
				ImageView:   w.Image.View(),
				ImageLayout: w.ImageLayout,
			}
			if w.Type == vk.DescriptorTypeCombinedImageSampler {
				info.Sampler = ds.Sampler
			}
			vkWrites[i].PImageInfo = []vk.DescriptorImageInfo{info}
		case w.Buffer != nil:
			vkWrites[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.Handle(),
				Offset: 0,
				Range:  vk.DeviceSize(vk.WholeSize),
			}}
		default:
			core.Assert(false, "descriptor write to binding %d has no resource", w.Binding)
		}
	}
	vk.UpdateDescriptorSets(ds.context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
}

func (ds *VulkanDescriptorSet) Destroy() {
	device := ds.context.Device.LogicalDevice
	allocator := ds.context.Allocator
	if ds.Sampler != vk.NullSampler {
		vk.DestroySampler(device, ds.Sampler, allocator)
		ds.Sampler = vk.NullSampler
	}
	// Destroying the pool frees the set.
	if ds.Pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(device, ds.Pool, allocator)
		ds.Pool = vk.NullDescriptorPool
		ds.handle = vk.NullDescriptorSet
	}
	if ds.Layout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(device, ds.Layout, allocator)
		ds.Layout = vk.NullDescriptorSetLayout
	}
}
