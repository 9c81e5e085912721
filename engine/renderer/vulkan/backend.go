package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

var (
	_ gpu.Device    = (*VulkanBackend)(nil)
	_ gpu.Swapchain = (*VulkanBackend)(nil)
)

// VulkanBackend implements gpu.Device and gpu.Swapchain on top of a glfw
// window surface.
type VulkanBackend struct {
	platform *platform.Platform
	context  *VulkanContext

	validation bool
	vsync      bool
}

func New(p *platform.Platform, validation, vsync bool) *VulkanBackend {
	return &VulkanBackend{
		platform: p,
		context: &VulkanContext{
			Allocator: nil,
			Device:    &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1},
		},
		validation: validation,
		vsync:      vsync,
	}
}

func (vb *VulkanBackend) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize vk")
	}

	vb.context.FramebufferWidth = appWidth
	vb.context.FramebufferHeight = appHeight

	if err := vb.createInstance(appName); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vb.validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := checkResult(vk.CreateDebugReportCallback(vb.context.Instance, &debugCreateInfo, vb.context.Allocator, &dbg), "vkCreateDebugReportCallbackEXT"); err != nil {
			return err
		}
		vb.context.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vb.platform.CreateVulkanSurface(vb.context.Instance)
	if err != nil {
		return err
	}
	vb.context.Surface = surface
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vb.context); err != nil {
		return errors.Wrap(err, "failed to create device")
	}

	sc, err := SwapchainCreate(vb.context, appWidth, appHeight, vb.vsync)
	if err != nil {
		return errors.Wrap(err, "failed to create swapchain")
	}
	vb.context.Swapchain = sc
	vb.context.ImagesInFlight = make([]*VulkanFence, len(sc.Images))

	if err := vb.createFrameResources(); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vb *VulkanBackend) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Prism"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{vk.KhrSurfaceExtensionName}
	requiredExtensions = append(requiredExtensions, vb.platform.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if vb.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)

		core.LogInfo("Validation layers enabled. Enumerating...")
		if err := checkValidationLayer(); err != nil {
			return err
		}
		layers = []string{validationLayerName}
	}
	for _, extension := range requiredExtensions {
		core.LogDebug("Required extension: %s", extension)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := checkResult(vk.CreateInstance(&createInfo, vb.context.Allocator, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	vb.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return errors.Wrap(err, "failed to load instance functions")
	}
	return nil
}

func checkValidationLayer() error {
	var count uint32
	if err := checkResult(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := checkResult(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		return err
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == validationLayerName {
			core.LogInfo("Found validation layer %s.", validationLayerName)
			return nil
		}
	}
	return errors.Newf("required validation layer is missing: %s", validationLayerName)
}

func (vb *VulkanBackend) createFrameResources() error {
	ctx := vb.context
	ctx.GraphicsCommandBuffers = make([]*VulkanCommandBuffer, gpu.MaxFramesInFlight)
	ctx.ImageAvailableSemaphores = make([]vk.Semaphore, gpu.MaxFramesInFlight)
	ctx.QueueCompleteSemaphores = make([]vk.Semaphore, gpu.MaxFramesInFlight)
	ctx.InFlightFences = make([]*VulkanFence, gpu.MaxFramesInFlight)

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	for i := 0; i < gpu.MaxFramesInFlight; i++ {
		cb, err := NewVulkanCommandBuffer(ctx, ctx.Device.GraphicsCommandPool)
		if err != nil {
			return errors.Wrap(err, "failed to allocate frame command buffer")
		}
		ctx.GraphicsCommandBuffers[i] = cb

		if err := checkResult(vk.CreateSemaphore(ctx.Device.LogicalDevice, &semaphoreCreateInfo, ctx.Allocator, &ctx.ImageAvailableSemaphores[i]), "vkCreateSemaphore"); err != nil {
			return errors.Wrap(err, "image available semaphore")
		}
		if err := checkResult(vk.CreateSemaphore(ctx.Device.LogicalDevice, &semaphoreCreateInfo, ctx.Allocator, &ctx.QueueCompleteSemaphores[i]), "vkCreateSemaphore"); err != nil {
			return errors.Wrap(err, "queue complete semaphore")
		}

		// Created signaled so the first wait on each slot returns at once.
		fence, err := NewFence(ctx, true)
		if err != nil {
			return err
		}
		ctx.InFlightFences[i] = fence
	}
	core.LogDebug("Vulkan frame resources created.")
	return nil
}

func (vb *VulkanBackend) Shutdown() error {
	ctx := vb.context
	if ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)

		// Destroy in the opposite order of creation.
		for i := range ctx.InFlightFences {
			if ctx.ImageAvailableSemaphores[i] != vk.NullSemaphore {
				vk.DestroySemaphore(ctx.Device.LogicalDevice, ctx.ImageAvailableSemaphores[i], ctx.Allocator)
				ctx.ImageAvailableSemaphores[i] = vk.NullSemaphore
			}
			if ctx.QueueCompleteSemaphores[i] != vk.NullSemaphore {
				vk.DestroySemaphore(ctx.Device.LogicalDevice, ctx.QueueCompleteSemaphores[i], ctx.Allocator)
				ctx.QueueCompleteSemaphores[i] = vk.NullSemaphore
			}
			if ctx.InFlightFences[i] != nil {
				ctx.InFlightFences[i].Destroy(ctx)
			}
			if ctx.GraphicsCommandBuffers[i] != nil {
				ctx.GraphicsCommandBuffers[i].Free(ctx, ctx.Device.GraphicsCommandPool)
			}
		}
		ctx.ImageAvailableSemaphores = nil
		ctx.QueueCompleteSemaphores = nil
		ctx.InFlightFences = nil
		ctx.ImagesInFlight = nil
		ctx.GraphicsCommandBuffers = nil

		if ctx.Swapchain != nil {
			ctx.Swapchain.Destroy(ctx)
			ctx.Swapchain = nil
		}

		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(ctx)
	}

	if ctx.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}

	if ctx.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = vk.NullDebugReportCallback
	}

	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
	return nil
}

func (vb *VulkanBackend) Limits() gpu.Limits {
	return vb.context.Device.Limits()
}

func (vb *VulkanBackend) CreateBuffer(info gpu.BufferCreateInfo) (gpu.Buffer, error) {
	return BufferCreate(vb.context, info)
}

func (vb *VulkanBackend) DestroyBuffer(buffer gpu.Buffer) {
	b, ok := buffer.(*VulkanBuffer)
	core.Assert(ok, "DestroyBuffer got a %T", buffer)
	b.Destroy(vb.context)
}

func (vb *VulkanBackend) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	return ImageCreate(vb.context, info)
}

func (vb *VulkanBackend) DestroyImage(image gpu.Image) {
	i, ok := image.(*VulkanImage)
	core.Assert(ok, "DestroyImage got a %T", image)
	core.Assert(i.owned, "DestroyImage called on a swapchain image")
	i.Destroy(vb.context)
}

func (vb *VulkanBackend) CreateBindlessSet(layout gpu.BindlessLayout) (gpu.DescriptorSet, error) {
	return BindlessSetCreate(vb.context, layout)
}

func (vb *VulkanBackend) DestroyDescriptorSet(set gpu.DescriptorSet) {
	ds, ok := set.(*VulkanDescriptorSet)
	core.Assert(ok, "DestroyDescriptorSet got a %T", set)
	ds.Destroy()
}

func (vb *VulkanBackend) ImmediateSubmit(record func(cmd gpu.CommandBuffer)) error {
	ctx := vb.context
	cb, err := AllocateAndBeginSingleUse(ctx, ctx.Device.GraphicsCommandPool)
	if err != nil {
		return errors.Wrap(err, "immediate submit")
	}
	record(cb)
	return cb.EndSingleUse(ctx, ctx.Device.GraphicsCommandPool, ctx.Device.GraphicsQueue)
}

func (vb *VulkanBackend) WaitIdle() error {
	return checkResult(vk.DeviceWaitIdle(vb.context.Device.LogicalDevice), "vkDeviceWaitIdle")
}

func (vb *VulkanBackend) Extent() vk.Extent2D {
	return vb.context.Swapchain.Extent
}

func (vb *VulkanBackend) Format() vk.Format {
	return vb.context.Swapchain.ImageFormat.Format
}

func (vb *VulkanBackend) ImageCount() uint32 {
	return uint32(len(vb.context.Swapchain.Images))
}

func (vb *VulkanBackend) BeginFrame(frameIndex uint32) (*gpu.Frame, error) {
	ctx := vb.context
	core.Assert(frameIndex < gpu.MaxFramesInFlight, "frame index %d out of range", frameIndex)
	fence := ctx.InFlightFences[frameIndex]

	// Wait for the execution of the frame that last used this slot.
	if err := fence.Wait(ctx, fenceTimeoutNs); err != nil {
		return nil, errors.Wrap(err, "in-flight fence wait failure")
	}

	imageIndex, err := ctx.Swapchain.AcquireNextImageIndex(ctx, fenceTimeoutNs, ctx.ImageAvailableSemaphores[frameIndex])
	if err != nil {
		return nil, err
	}

	// Make sure the previous frame is not using this image.
	if inFlight := ctx.ImagesInFlight[imageIndex]; inFlight != nil && inFlight != fence {
		if err := inFlight.Wait(ctx, fenceTimeoutNs); err != nil {
			return nil, errors.Wrap(err, "image fence wait failure")
		}
	}
	ctx.ImagesInFlight[imageIndex] = fence

	// Only reset once an image was acquired, a booted frame leaves the fence
	// signaled for the next attempt.
	if err := fence.Reset(ctx); err != nil {
		return nil, err
	}

	cb := ctx.GraphicsCommandBuffers[frameIndex]
	if err := cb.Reset(); err != nil {
		return nil, err
	}
	if err := cb.Begin(true); err != nil {
		return nil, err
	}

	return &gpu.Frame{
		Index:      frameIndex,
		ImageIndex: imageIndex,
		Cmd:        cb,
		Target:     ctx.Swapchain.Images[imageIndex],
	}, nil
}

func (vb *VulkanBackend) EndFrame(frame *gpu.Frame) error {
	ctx := vb.context
	cb := ctx.GraphicsCommandBuffers[frame.Index]
	if err := cb.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{ctx.ImageAvailableSemaphores[frame.Index]},
		// The first write to the target is the transfer into it.
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTransferBit | vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle()},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{ctx.QueueCompleteSemaphores[frame.Index]},
	}
	fence := ctx.InFlightFences[frame.Index]
	if err := checkResult(vk.QueueSubmit(ctx.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle), "vkQueueSubmit"); err != nil {
		return err
	}
	cb.UpdateSubmitted()

	return ctx.Swapchain.Present(ctx, ctx.QueueCompleteSemaphores[frame.Index], frame.ImageIndex)
}

// Recreate rebuilds the swapchain for the new window size. The renderer waits
// for the device before calling it.
func (vb *VulkanBackend) Recreate(width, height uint32) error {
	ctx := vb.context
	if width == 0 || height == 0 {
		return core.ErrMinimized
	}
	// On failure the old swapchain is already destroyed but keeps its extent,
	// the next attempt recreates from it.
	sc, err := ctx.Swapchain.Recreate(ctx, width, height, vb.vsync)
	if err != nil {
		return err
	}
	ctx.Swapchain = sc
	ctx.FramebufferWidth = sc.Extent.Width
	ctx.FramebufferHeight = sc.Extent.Height
	ctx.ImagesInFlight = make([]*VulkanFence, len(sc.Images))
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
