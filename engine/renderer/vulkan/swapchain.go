package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	PresentMode vk.PresentMode
	// Images wrap the swapchain owned images and the views created for them.
	Images []*VulkanImage
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func SwapchainCreate(context *VulkanContext, width, height uint32, vsync bool) (*VulkanSwapchain, error) {
	return createSwapchain(context, width, height, vsync, vk.NullSwapchain)
}

// Recreate builds a new swapchain from this one and destroys the old handle.
// The caller must have waited for the device to go idle.
func (vs *VulkanSwapchain) Recreate(context *VulkanContext, width, height uint32, vsync bool) (*VulkanSwapchain, error) {
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, errors.Wrap(err, "failed to requery swapchain support")
	}
	sc, err := createSwapchain(context, width, height, vsync, vs.Handle)
	vs.Destroy(context)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (vs *VulkanSwapchain) Destroy(context *VulkanContext) {
	// Only destroy the views, not the images, since those are owned by the
	// swapchain and are thus destroyed when it is.
	for _, image := range vs.Images {
		image.Destroy(context)
	}
	vs.Images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

// AcquireNextImageIndex returns core.ErrSwapchainBooting when the surface no
// longer matches the swapchain.
func (vs *VulkanSwapchain) AcquireNextImageIndex(context *VulkanContext, timeoutNs uint64, imageAvailableSemaphore vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, timeoutNs, imageAvailableSemaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainBooting
	default:
		return 0, errors.Wrap(checkResult(result, "vkAcquireNextImageKHR"), "failed to acquire swapchain image")
	}
}

// Present hands imageIndex back to the presentation engine. An out of date or
// suboptimal swapchain reports core.ErrSwapchainBooting.
func (vs *VulkanSwapchain) Present(context *VulkanContext, renderCompleteSemaphore vk.Semaphore, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	result := vk.QueuePresent(context.Device.PresentQueue, &presentInfo)
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return core.ErrSwapchainBooting
	default:
		return errors.Wrap(checkResult(result, "vkQueuePresentKHR"), "failed to present swapchain image")
	}
}

func createSwapchain(context *VulkanContext, width, height uint32, vsync bool, old vk.Swapchain) (*VulkanSwapchain, error) {
	support := &context.Device.SwapchainSupport
	if len(support.Formats) == 0 {
		return nil, errors.New("surface reports no formats")
	}
	swapchain := &VulkanSwapchain{}

	// Choose a swap surface format.
	swapchain.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}

	// FIFO is always available and is the vsync mode.
	swapchain.PresentMode = vk.PresentModeFifo
	if !vsync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				swapchain.PresentMode = mode
				break
			}
		}
	}

	capabilities := support.Capabilities
	extent := vk.Extent2D{Width: width, Height: height}
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	extent.Width = pmath.Clamp(extent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	extent.Height = pmath.Clamp(extent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, core.ErrMinimized
	}
	swapchain.Extent = extent

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		// Frames reach the swapchain through a blit.
		ImageUsage:     vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: vk.CompositeAlphaOpaqueBit,
		PresentMode:    swapchain.PresentMode,
		Clipped:        vk.True,
		OldSwapchain:   old,
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	device := context.Device.LogicalDevice
	if err := checkResult(vk.CreateSwapchain(device, &swapchainCreateInfo, context.Allocator, &swapchain.Handle), "vkCreateSwapchainKHR"); err != nil {
		return nil, err
	}

	var count uint32
	if err := checkResult(vk.GetSwapchainImages(device, swapchain.Handle, &count, nil), "vkGetSwapchainImagesKHR"); err != nil {
		swapchain.Destroy(context)
		return nil, err
	}
	handles := make([]vk.Image, count)
	if err := checkResult(vk.GetSwapchainImages(device, swapchain.Handle, &count, handles), "vkGetSwapchainImagesKHR"); err != nil {
		swapchain.Destroy(context)
		return nil, err
	}

	swapchain.Images = make([]*VulkanImage, 0, count)
	for _, handle := range handles {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    handle,
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		var view vk.ImageView
		if err := checkResult(vk.CreateImageView(device, &viewInfo, context.Allocator, &view), "vkCreateImageView"); err != nil {
			swapchain.Destroy(context)
			return nil, err
		}
		swapchain.Images = append(swapchain.Images, swapchainImage(handle, view, swapchain.ImageFormat.Format, extent))
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", extent.Width, extent.Height, count)
	return swapchain, nil
}
