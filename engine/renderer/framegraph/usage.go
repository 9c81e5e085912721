package framegraph

import (
	"strings"

	vk "github.com/goki/vulkan"
)

// Usage is how a single pass accesses a resource. The concrete GPU object is
// created with the union of every pass's usage.
type Usage uint32

const (
	UsageColorAttachment Usage = 1 << iota
	UsageDepthStencilAttachment
	UsageComputeReadStorage
	UsageComputeWriteStorage
	UsageSampled
	UsageIndirectBuffer
	UsageUniform
	UsageVertexBuffer
	UsageIndexBuffer
	UsageTransferSrc
	UsageTransferDst
)

var usageNames = []string{
	"ColorAttachment",
	"DepthStencilAttachment",
	"ComputeReadStorage",
	"ComputeWriteStorage",
	"Sampled",
	"IndirectBuffer",
	"Uniform",
	"VertexBuffer",
	"IndexBuffer",
	"TransferSrc",
	"TransferDst",
}

func (u Usage) Has(flags Usage) bool {
	return u&flags == flags
}

func (u Usage) HasAny(flags Usage) bool {
	return u&flags != 0
}

func (u Usage) String() string {
	if u == 0 {
		return "None"
	}
	var parts []string
	for i, name := range usageNames {
		if u&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

const usageStorage = UsageComputeReadStorage | UsageComputeWriteStorage

func toImageUsage(u Usage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u.HasAny(UsageColorAttachment) {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u.HasAny(UsageDepthStencilAttachment) {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u.HasAny(usageStorage) {
		flags |= vk.ImageUsageStorageBit
	}
	if u.HasAny(UsageSampled) {
		flags |= vk.ImageUsageSampledBit
	}
	if u.HasAny(UsageTransferSrc) {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u.HasAny(UsageTransferDst) {
		flags |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}

func toBufferUsage(u Usage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u.HasAny(usageStorage) {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u.HasAny(UsageUniform) {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u.HasAny(UsageIndirectBuffer) {
		flags |= vk.BufferUsageIndirectBufferBit
	}
	if u.HasAny(UsageVertexBuffer) {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u.HasAny(UsageIndexBuffer) {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u.HasAny(UsageTransferSrc) {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u.HasAny(UsageTransferDst) {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}

// layoutForUsage is the layout a pass needs an image in. Usages that map to
// more than one layout fall back to General.
func layoutForUsage(u Usage) vk.ImageLayout {
	var layouts []vk.ImageLayout
	add := func(flag Usage, layout vk.ImageLayout) {
		if u.HasAny(flag) {
			layouts = append(layouts, layout)
		}
	}
	add(UsageDepthStencilAttachment, vk.ImageLayoutDepthStencilAttachmentOptimal)
	add(UsageColorAttachment, vk.ImageLayoutColorAttachmentOptimal)
	add(usageStorage, vk.ImageLayoutGeneral)
	add(UsageSampled, vk.ImageLayoutShaderReadOnlyOptimal)
	add(UsageTransferSrc, vk.ImageLayoutTransferSrcOptimal)
	add(UsageTransferDst, vk.ImageLayoutTransferDstOptimal)

	switch len(layouts) {
	case 0:
		return vk.ImageLayoutUndefined
	case 1:
		return layouts[0]
	default:
		return vk.ImageLayoutGeneral
	}
}
