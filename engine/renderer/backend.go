package renderer

import "github.com/spaghettifunk/prism/engine/renderer/gpu"

// RendererBackend is a graphics API backend: it creates GPU objects and owns
// the swapchain the frame graph renders into.
type RendererBackend interface {
	gpu.Device
	gpu.Swapchain

	Initialize(appName string, appWidth, appHeight uint32) error
	Shutdown() error
}

type RendererType uint8

const (
	Vulkan RendererType = iota
)
