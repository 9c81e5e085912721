package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type VulkanBuffer struct {
	Name   string
	handle vk.Buffer
	Memory vk.DeviceMemory
	size   uint64
}

func (vb *VulkanBuffer) Handle() vk.Buffer { return vb.handle }
func (vb *VulkanBuffer) Size() uint64      { return vb.size }

func BufferCreate(context *VulkanContext, info gpu.BufferCreateInfo) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{Name: info.Name, size: info.Size}
	device := context.Device.LogicalDevice

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       info.Usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if err := checkResult(vk.CreateBuffer(device, &bufferCreateInfo, context.Allocator, &buffer.handle), "vkCreateBuffer"); err != nil {
		return nil, errors.Wrapf(err, "buffer %q", info.Name)
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer.handle, &memoryRequirements)
	memoryRequirements.Deref()

	properties := info.MemoryProperties
	if properties == 0 {
		properties = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
	memoryType, err := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, properties)
	if err != nil {
		buffer.Destroy(context)
		return nil, errors.Wrapf(err, "buffer %q", info.Name)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	if err := checkResult(vk.AllocateMemory(device, &allocateInfo, context.Allocator, &buffer.Memory), "vkAllocateMemory"); err != nil {
		buffer.Destroy(context)
		return nil, errors.Wrapf(err, "buffer %q", info.Name)
	}
	if err := checkResult(vk.BindBufferMemory(device, buffer.handle, buffer.Memory, 0), "vkBindBufferMemory"); err != nil {
		buffer.Destroy(context)
		return nil, errors.Wrapf(err, "buffer %q", info.Name)
	}
	return buffer, nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.handle != vk.NullBuffer {
		vk.DestroyBuffer(device, vb.handle, context.Allocator)
		vb.handle = vk.NullBuffer
	}
}
