// Package passes holds the render passes the engine ships with.
package passes

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/framegraph"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/scene"
)

// Names the scene pass publishes its outputs under.
const (
	SceneColorName = "SceneColor"
	SceneDepthName = "SceneDepth"
	TransformsName = "Transforms"
)

const (
	// MaxSceneEntities is bounded by the 64KiB limit of vkCmdUpdateBuffer.
	MaxSceneEntities = 1024
	transformSize    = 16 * 4
)

// ScenePass clears the scene targets and uploads the model-view-projection
// matrix of every entity into the per frame instance of the transforms buffer.
type ScenePass struct {
	color      framegraph.ResourceHandle
	depth      framegraph.ResourceHandle
	transforms framegraph.ResourceHandle

	clearColor [4]float32
	staging    []byte
	uploaded   int
}

func NewScenePass(pool *framegraph.ResourcePool, clearColor [4]float32) *ScenePass {
	return &ScenePass{
		color: pool.AddImage(SceneColorName, framegraph.UsageColorAttachment|framegraph.UsageTransferDst, framegraph.TextureInfo{
			Format:     vk.FormatR8g8b8a8Unorm,
			ResizeMode: framegraph.ResizeSwapChainRelative,
		}),
		depth: pool.AddImage(SceneDepthName, framegraph.UsageDepthStencilAttachment|framegraph.UsageTransferDst, framegraph.TextureInfo{
			Format:     vk.FormatD32Sfloat,
			ResizeMode: framegraph.ResizeSwapChainRelative,
		}),
		transforms: pool.AddBuffer(TransformsName, framegraph.UsageComputeReadStorage|framegraph.UsageTransferDst, framegraph.BufferInfo{
			Size:          MaxSceneEntities * transformSize,
			InstanceCount: gpu.MaxFramesInFlight,
		}),
		clearColor: clearColor,
		staging:    make([]byte, 0, MaxSceneEntities*transformSize),
	}
}

func (p *ScenePass) Info() framegraph.NodeInfo {
	return framegraph.NodeInfo{
		Name:   "Scene",
		Writes: []framegraph.ResourceHandle{p.color, p.depth, p.transforms},
	}
}

func (p *ScenePass) Execute(pool *framegraph.ResourcePool, frame *framegraph.FrameInfo) error {
	pool.ApplyBarriers(frame.Node, frame.Cmd)

	color := pool.TextureOf(p.color)
	depth := pool.TextureOf(p.depth)
	frame.Cmd.ClearColorImage(color.Resource, color.Layout, p.clearColor)
	frame.Cmd.ClearDepthStencilImage(depth.Resource, depth.Layout, 1.0, 0)

	p.staging = p.staging[:0]
	p.uploaded = 0
	if frame.Scene != nil {
		viewProjection := mgl32.Ident4()
		if camera := frame.Scene.MainCamera(); camera != nil {
			viewProjection = camera.ViewProjection(frame.AspectRatio)
		}
		frame.Scene.Entities(func(e *scene.Entity) bool {
			if p.uploaded == MaxSceneEntities {
				return false
			}
			p.staging = appendMatrix(p.staging, viewProjection.Mul4(e.Transform))
			p.uploaded++
			return true
		})
	}
	if len(p.staging) > 0 {
		transforms := pool.BufferOf(p.transforms)
		frame.Cmd.UpdateBuffer(transforms.Resource, transforms.Offset(frame.FrameIndex), p.staging)
	}
	return nil
}

func (p *ScenePass) DrawUI(ui framegraph.UI) {
	ui.Text("entities", p.uploaded)
	ui.Text("clear color", p.clearColor)
}

// Uploaded returns the number of transforms written by the last Execute.
func (p *ScenePass) Uploaded() int {
	return p.uploaded
}

// appendMatrix writes m column major as little endian float32.
func appendMatrix(dst []byte, m mgl32.Mat4) []byte {
	for _, v := range m {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
