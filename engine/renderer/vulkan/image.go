package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// VulkanImage is an image with dedicated memory and a default view covering
// every mip and layer. Swapchain images carry no memory and are never
// destroyed through it.
type VulkanImage struct {
	Name   string
	handle vk.Image
	Memory vk.DeviceMemory
	view   vk.ImageView
	extent vk.Extent3D
	format vk.Format
	aspect vk.ImageAspectFlags

	mipLevels   uint32
	arrayLayers uint32
	owned       bool
}

func (vi *VulkanImage) Handle() vk.Image            { return vi.handle }
func (vi *VulkanImage) View() vk.ImageView          { return vi.view }
func (vi *VulkanImage) Extent() vk.Extent3D         { return vi.extent }
func (vi *VulkanImage) Format() vk.Format           { return vi.format }
func (vi *VulkanImage) Aspect() vk.ImageAspectFlags { return vi.aspect }
func (vi *VulkanImage) subresource() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vi.aspect,
		BaseMipLevel:   0,
		LevelCount:     vi.mipLevels,
		BaseArrayLayer: 0,
		LayerCount:     vi.arrayLayers,
	}
}

func ImageCreate(context *VulkanContext, info gpu.ImageCreateInfo) (*VulkanImage, error) {
	image := &VulkanImage{
		Name:        info.Name,
		extent:      info.Extent,
		format:      info.Format,
		aspect:      info.Aspect,
		mipLevels:   max(info.MipLevels, 1),
		arrayLayers: max(info.ArrayLayers, 1),
		owned:       true,
	}
	if image.aspect == 0 {
		image.aspect = gpu.AspectFromFormat(info.Format)
	}
	if image.extent.Depth == 0 {
		image.extent.Depth = 1
	}

	device := context.Device.LogicalDevice
	imageCreateInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        info.Format,
		Extent:        image.extent,
		MipLevels:     image.mipLevels,
		ArrayLayers:   image.arrayLayers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         info.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := checkResult(vk.CreateImage(device, &imageCreateInfo, context.Allocator, &image.handle), "vkCreateImage"); err != nil {
		return nil, errors.Wrapf(err, "image %q", info.Name)
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image.handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		image.Destroy(context)
		return nil, errors.Wrapf(err, "image %q", info.Name)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	if err := checkResult(vk.AllocateMemory(device, &allocateInfo, context.Allocator, &image.Memory), "vkAllocateMemory"); err != nil {
		image.Destroy(context)
		return nil, errors.Wrapf(err, "image %q", info.Name)
	}
	if err := checkResult(vk.BindImageMemory(device, image.handle, image.Memory, 0), "vkBindImageMemory"); err != nil {
		image.Destroy(context)
		return nil, errors.Wrapf(err, "image %q", info.Name)
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            image.handle,
		ViewType:         vk.ImageViewType2d,
		Format:           info.Format,
		SubresourceRange: image.subresource(),
	}
	if image.arrayLayers > 1 {
		viewCreateInfo.ViewType = vk.ImageViewType2dArray
	}
	if err := checkResult(vk.CreateImageView(device, &viewCreateInfo, context.Allocator, &image.view), "vkCreateImageView"); err != nil {
		image.Destroy(context)
		return nil, errors.Wrapf(err, "image %q", info.Name)
	}
	return image, nil
}

// swapchainImage wraps an image owned by the swapchain together with the view
// created for it.
func swapchainImage(handle vk.Image, view vk.ImageView, format vk.Format, extent vk.Extent2D) *VulkanImage {
	return &VulkanImage{
		Name:        "swapchain",
		handle:      handle,
		view:        view,
		extent:      vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		format:      format,
		aspect:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		mipLevels:   1,
		arrayLayers: 1,
	}
}

func (vi *VulkanImage) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vi.view != vk.NullImageView {
		vk.DestroyImageView(device, vi.view, context.Allocator)
		vi.view = vk.NullImageView
	}
	if !vi.owned {
		return
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, vi.Memory, context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.handle != vk.NullImage {
		vk.DestroyImage(device, vi.handle, context.Allocator)
		vi.handle = vk.NullImage
	}
}
