package framegraph

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/scene"
)

// FrameInfo is handed to every pass once per frame.
type FrameInfo struct {
	Cmd         gpu.CommandBuffer
	FrameIndex  uint32
	FrameNumber uint64
	// Node is the handle of the node being executed.
	Node        NodeHandle
	Extent      vk.Extent2D
	AspectRatio float32
	Scene       scene.Scene
	// Target is the acquired swapchain image, in an undefined layout.
	Target    gpu.Image
	DeltaTime float64
}

// RenderPass is a unit of work in the graph. A pass declares its resources on
// the pool when it is constructed and reports them through Info. Execute runs
// once per frame in registration order and must look resources up through the
// pool every frame, since swapchain relative textures change on resize.
type RenderPass interface {
	Info() NodeInfo
	Execute(pool *ResourcePool, frame *FrameInfo) error
}

// ResourceCreator is implemented by passes that need a setup step once every
// resource of the graph is concrete.
type ResourceCreator interface {
	CreateResources(pool *ResourcePool)
}

// UIDrawer is implemented by passes that expose state to the graph inspector.
type UIDrawer interface {
	DrawUI(ui UI)
}
