package passes

import (
	"encoding/binary"
	"math"

	"github.com/spaghettifunk/prism/engine/renderer/framegraph"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

const (
	ExposureName = "Exposure"
	// exposure, scene color descriptor, frame number, padding
	exposureParamsSize = 16
)

// ExposurePass samples the scene color and publishes the exposure parameters
// together with the bindless index of the scene color, so later shaders can
// fetch it without binding anything.
type ExposurePass struct {
	color    framegraph.ResourceHandle
	exposure framegraph.ResourceHandle

	Exposure float32
	params   [exposureParamsSize]byte
}

func NewExposurePass(pool *framegraph.ResourcePool, exposure float32) *ExposurePass {
	return &ExposurePass{
		color: pool.AddReference(SceneColorName, framegraph.UsageSampled),
		exposure: pool.AddBuffer(ExposureName, framegraph.UsageUniform|framegraph.UsageTransferDst, framegraph.BufferInfo{
			Size:          exposureParamsSize,
			InstanceCount: gpu.MaxFramesInFlight,
		}),
		Exposure: exposure,
	}
}

func (p *ExposurePass) Info() framegraph.NodeInfo {
	return framegraph.NodeInfo{
		Name:   "Exposure",
		Reads:  []framegraph.ResourceHandle{p.color},
		Writes: []framegraph.ResourceHandle{p.exposure},
	}
}

func (p *ExposurePass) Execute(pool *framegraph.ResourcePool, frame *framegraph.FrameInfo) error {
	pool.ApplyBarriers(frame.Node, frame.Cmd)

	color := pool.TextureOf(p.color)
	binary.LittleEndian.PutUint32(p.params[0:], math.Float32bits(p.Exposure))
	binary.LittleEndian.PutUint32(p.params[4:], uint32(color.SampledDescriptor))
	binary.LittleEndian.PutUint32(p.params[8:], uint32(frame.FrameNumber))
	binary.LittleEndian.PutUint32(p.params[12:], 0)

	buffer := pool.BufferOf(p.exposure)
	frame.Cmd.UpdateBuffer(buffer.Resource, buffer.Offset(frame.FrameIndex), p.params[:])
	return nil
}

func (p *ExposurePass) DrawUI(ui framegraph.UI) {
	ui.Text("exposure", p.Exposure)
}
