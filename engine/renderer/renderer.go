package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/framegraph"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/scene"
)

type Config struct {
	Bindless descriptor.Config
}

// Renderer drives the frame loop: wait for the frame slot, retire the objects
// deleted the last time the slot was used, run every pass in registration
// order and present.
type Renderer struct {
	device    gpu.Device
	swapchain gpu.Swapchain

	deletion *gpu.DeletionQueue
	bindless *descriptor.BindlessDescriptorSet
	pool     *framegraph.ResourcePool

	frameNumber uint64
	built       bool

	resizePending bool
	resizeWidth   uint32
	resizeHeight  uint32
}

func New(device gpu.Device, swapchain gpu.Swapchain, config *Config) (*Renderer, error) {
	bindless, err := descriptor.NewBindlessDescriptorSet(device, config.Bindless)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	deletion := gpu.NewDeletionQueue(gpu.MaxFramesInFlight)
	extent := swapchain.Extent()

	return &Renderer{
		device:    device,
		swapchain: swapchain,
		deletion:  deletion,
		bindless:  bindless,
		pool:      framegraph.NewResourcePool(device, deletion, bindless, extent.Width, extent.Height),
	}, nil
}

// Pool is where passes declare their resources before they are added.
func (r *Renderer) Pool() *framegraph.ResourcePool {
	return r.pool
}

func (r *Renderer) AddPass(pass framegraph.RenderPass) framegraph.NodeHandle {
	return r.pool.AddNode(pass)
}

// Build resolves references and creates every frame graph resource. It must
// be called once after the last AddPass.
func (r *Renderer) Build() {
	r.pool.ResolveReferences()
	r.pool.CreateResources()
	r.built = true
}

// OnResize records the new framebuffer size. The swapchain and the swapchain
// relative textures are recreated at the start of the next frame.
func (r *Renderer) OnResize(width, height uint32) {
	r.resizePending = true
	r.resizeWidth = width
	r.resizeHeight = height
}

func (r *Renderer) applyResize() error {
	if r.resizeWidth == 0 || r.resizeHeight == 0 {
		return core.ErrMinimized
	}
	if err := r.device.WaitIdle(); err != nil {
		return err
	}
	if err := r.swapchain.Recreate(r.resizeWidth, r.resizeHeight); err != nil {
		return errors.Wrapf(err, "failed to recreate swapchain at %dx%d", r.resizeWidth, r.resizeHeight)
	}
	extent := r.swapchain.Extent()
	r.pool.ResizeImages(extent.Width, extent.Height)
	r.resizePending = false
	core.LogDebug("renderer resized to %dx%d", extent.Width, extent.Height)
	return nil
}

// DrawFrame renders one frame of sc. It returns core.ErrMinimized without
// rendering while the framebuffer has no area.
func (r *Renderer) DrawFrame(sc scene.Scene, deltaTime float64) error {
	core.Assert(r.built, "DrawFrame called before Build")

	if r.resizePending {
		if err := r.applyResize(); err != nil {
			return err
		}
	}

	frameIndex := uint32(r.frameNumber % gpu.MaxFramesInFlight)
	frame, err := r.swapchain.BeginFrame(frameIndex)
	if errors.Is(err, core.ErrSwapchainBooting) {
		extent := r.swapchain.Extent()
		r.OnResize(extent.Width, extent.Height)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to begin frame")
	}

	// The fence of this slot has been waited on, nothing in flight can still
	// reference what was scheduled the last time the slot was current.
	r.deletion.Flush(frameIndex)

	extent := r.swapchain.Extent()
	info := &framegraph.FrameInfo{
		Cmd:         frame.Cmd,
		FrameIndex:  frameIndex,
		FrameNumber: r.frameNumber,
		Extent:      extent,
		AspectRatio: float32(extent.Width) / float32(extent.Height),
		Scene:       sc,
		Target:      frame.Target,
		DeltaTime:   deltaTime,
	}
	for _, node := range r.pool.Nodes() {
		info.Node = node
		n := r.pool.Node(node)
		if err := n.Pass.Execute(r.pool, info); err != nil {
			return errors.Wrapf(err, "render pass %q failed", n.Info.Name)
		}
	}

	err = r.swapchain.EndFrame(frame)
	r.frameNumber++
	if errors.Is(err, core.ErrSwapchainBooting) {
		extent := r.swapchain.Extent()
		r.OnResize(extent.Width, extent.Height)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to end frame")
	}
	return nil
}

// Inspect draws the frame graph with ui.
func (r *Renderer) Inspect(ui framegraph.UI) {
	framegraph.Inspect(r.pool, ui)
}

func (r *Renderer) FrameNumber() uint64 {
	return r.frameNumber
}

func (r *Renderer) DeletionQueue() *gpu.DeletionQueue {
	return r.deletion
}

func (r *Renderer) Bindless() *descriptor.BindlessDescriptorSet {
	return r.bindless
}

// Shutdown waits for the device and releases everything the renderer owns.
func (r *Renderer) Shutdown() error {
	if err := r.device.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle: %s", err)
	}
	r.pool.Destroy()
	r.deletion.FlushAll()
	r.bindless.Destroy()
	return nil
}
