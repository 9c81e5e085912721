package passes

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/framegraph"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

// PresentPass blits the scene color onto the acquired swapchain image and
// leaves it in the present layout.
type PresentPass struct {
	color framegraph.ResourceHandle
}

func NewPresentPass(pool *framegraph.ResourcePool) *PresentPass {
	return &PresentPass{
		color: pool.AddReference(SceneColorName, framegraph.UsageTransferSrc),
	}
}

func (p *PresentPass) Info() framegraph.NodeInfo {
	return framegraph.NodeInfo{
		Name:  "Present",
		Reads: []framegraph.ResourceHandle{p.color},
	}
}

func (p *PresentPass) Execute(pool *framegraph.ResourcePool, frame *framegraph.FrameInfo) error {
	pool.ApplyBarriers(frame.Node, frame.Cmd)

	color := pool.TextureOf(p.color)
	gpu.Transition(frame.Cmd, frame.Target, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	frame.Cmd.BlitImage(color.Resource, color.Layout, frame.Target, vk.ImageLayoutTransferDstOptimal)
	gpu.Transition(frame.Cmd, frame.Target, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc)
	return nil
}
