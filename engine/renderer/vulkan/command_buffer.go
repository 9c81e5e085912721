package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// vkCmdUpdateBuffer accepts at most 64KiB per call.
const maxInlineUpdateSize = 65536

type VulkanCommandBuffer struct {
	handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := checkResult(vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	cb.handle = handles[0]
	cb.State = COMMAND_BUFFER_STATE_READY

	return cb, nil
}

func (v *VulkanCommandBuffer) Handle() vk.CommandBuffer { return v.handle }

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	if v.handle != nil {
		vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.handle})
	}
	v.handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(singleUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}

	if err := checkResult(vk.BeginCommandBuffer(v.handle, beginInfo), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := checkResult(vk.EndCommandBuffer(v.handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() error {
	if err := checkResult(vk.ResetCommandBuffer(v.handle, 0), "vkResetCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) PipelineBarrier(srcStage, dstStage vk.PipelineStageFlags, barriers []gpu.ImageBarrier) {
	if len(barriers) == 0 {
		return
	}
	imageBarriers := make([]vk.ImageMemoryBarrier, len(barriers))
	for i, b := range barriers {
		imageBarriers[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       b.SrcAccess,
			DstAccessMask:       b.DstAccess,
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               b.Image.Handle(),
			SubresourceRange:    fullRange(b.Image),
		}
	}
	vk.CmdPipelineBarrier(v.handle, srcStage, dstStage, 0, 0, nil, 0, nil, uint32(len(imageBarriers)), imageBarriers)
}

func (v *VulkanCommandBuffer) ClearColorImage(image gpu.Image, layout vk.ImageLayout, color [4]float32) {
	// VkClearValue is a union whose first member is VkClearColorValue.
	clear := vk.NewClearValue(color[:])
	ranges := []vk.ImageSubresourceRange{fullRange(image)}
	vk.CmdClearColorImage(v.handle, image.Handle(), layout, (*vk.ClearColorValue)(unsafe.Pointer(&clear)), uint32(len(ranges)), ranges)
}

func (v *VulkanCommandBuffer) ClearDepthStencilImage(image gpu.Image, layout vk.ImageLayout, depth float32, stencil uint32) {
	value := vk.ClearDepthStencilValue{Depth: depth, Stencil: stencil}
	ranges := []vk.ImageSubresourceRange{fullRange(image)}
	vk.CmdClearDepthStencilImage(v.handle, image.Handle(), layout, &value, uint32(len(ranges)), ranges)
}

func (v *VulkanCommandBuffer) UpdateBuffer(buffer gpu.Buffer, offset uint64, data []byte) {
	core.Assert(offset%4 == 0 && len(data)%4 == 0, "buffer updates must be 4 byte aligned (offset %d, size %d)", offset, len(data))
	for len(data) > 0 {
		n := min(len(data), maxInlineUpdateSize)
		vk.CmdUpdateBuffer(v.handle, buffer.Handle(), vk.DeviceSize(offset), vk.DeviceSize(n), (*uint32)(unsafe.Pointer(&data[0])))
		data = data[n:]
		offset += uint64(n)
	}
}

func (v *VulkanCommandBuffer) BlitImage(src gpu.Image, srcLayout vk.ImageLayout, dst gpu.Image, dstLayout vk.ImageLayout) {
	srcExtent, dstExtent := src.Extent(), dst.Extent()
	regions := []vk.ImageBlit{{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: src.Aspect(),
			MipLevel:   0,
			LayerCount: 1,
		},
		SrcOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(srcExtent.Width), Y: int32(srcExtent.Height), Z: 1},
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: dst.Aspect(),
			MipLevel:   0,
			LayerCount: 1,
		},
		DstOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(dstExtent.Width), Y: int32(dstExtent.Height), Z: 1},
		},
	}}
	vk.CmdBlitImage(v.handle, src.Handle(), srcLayout, dst.Handle(), dstLayout, uint32(len(regions)), regions, vk.FilterLinear)
}

func fullRange(image gpu.Image) vk.ImageSubresourceRange {
	if vi, ok := image.(*VulkanImage); ok {
		return vi.subresource()
	}
	return vk.ImageSubresourceRange{
		AspectMask: image.Aspect(),
		LevelCount: vk.RemainingMipLevels,
		LayerCount: vk.RemainingArrayLayers,
	}
}

// AllocateAndBeginSingleUse allocates a command buffer and begins recording a
// one-time submission into it.
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits, waits for the queue to drain and frees
// the command buffer.
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue) error {
	defer v.Free(context, pool)

	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.handle},
	}
	if err := checkResult(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence), "vkQueueSubmit"); err != nil {
		return errors.Wrap(err, "single use submit")
	}
	v.UpdateSubmitted()

	return checkResult(vk.QueueWaitIdle(queue), "vkQueueWaitIdle")
}
