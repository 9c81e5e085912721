package engine

import (
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/scene"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Scene is handed to the renderer every frame.
	Scene        scene.Scene
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize registers the game's passes. The renderer builds the frame graph
// once it returns.
type Initialize func(r *renderer.Renderer, cfg *config.Config) error
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
