package engine

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// How long a suspended loop blocks on window events before checking for a
// quit request again.
const suspendedWaitSeconds = 0.1

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	watcher      *config.Watcher

	isRunning   atomic.Bool
	isSuspended bool

	platform *platform.Platform
	backend  renderer.RendererBackend
	renderer *renderer.Renderer

	width    uint32
	height   uint32
	clock    *core.Clock
	lastTime float64

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = &ApplicationConfig{}
	}
	cfg := config.Default()
	if g.ApplicationConfig.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(g.ApplicationConfig.ConfigPath); err != nil {
			core.LogError(err.Error())
			return nil, err
		}
	}
	if g.ApplicationConfig.Name != "" {
		cfg.Application.Name = g.ApplicationConfig.Name
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Log.Level)
	}

	p, err := platform.New()
	if err != nil {
		return nil, err
	}
	return newEngine(g, cfg, p), nil
}

func newEngine(g *Game, cfg *config.Config, p *platform.Platform) *Engine {
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		platform:     p,
		clock:        core.NewClock(),
		width:        cfg.Application.Width,
		height:       cfg.Application.Height,
	}
}

// Config returns the configuration the engine was started with.
func (e *Engine) Config() *config.Config {
	return e.config
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := e.initializeSystems(); err != nil {
		return err
	}

	app := e.config.Application
	if err := e.platform.Startup(app.Name, app.PosX, app.PosY, app.Width, app.Height); err != nil {
		return err
	}
	// The framebuffer can differ from the window size on high-DPI displays.
	e.width, e.height = e.platform.FramebufferSize()

	backend := vulkan.New(e.platform, e.config.Renderer.Validation, e.config.Renderer.VSync)
	if err := e.initializeRenderer(backend); err != nil {
		return err
	}

	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" {
		w, err := config.Watch(path, e.onConfigChanged)
		if err != nil {
			// Hot reload is a convenience, keep running without it.
			core.LogWarn("config hot reload disabled: %s", err)
		} else {
			e.watcher = w
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) initializeSystems() error {
	if !core.EventInitialize() {
		return errors.New("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(core.EVENT_CODE_CONFIG_RELOADED, e, e.onEvent)
	return nil
}

// initializeRenderer brings the backend up, lets the game register its passes
// and compiles the frame graph.
func (e *Engine) initializeRenderer(backend renderer.RendererBackend) error {
	if err := backend.Initialize(e.config.Application.Name, e.width, e.height); err != nil {
		return errors.Wrap(err, "failed to initialize the renderer backend")
	}
	e.backend = backend

	r, err := renderer.New(backend, backend, &renderer.Config{Bindless: e.config.DescriptorConfig()})
	if err != nil {
		return err
	}
	e.renderer = r

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(r, e.config); err != nil {
			return errors.Wrap(err, "game initialization failed")
		}
	}
	r.Build()

	if e.gameInstance.FnOnResize != nil {
		extent := backend.Extent()
		if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if e.isSuspended {
			e.platform.WaitMessages(suspendedWaitSeconds)
		} else {
			e.platform.PumpMessages()
		}
		if e.platform.ShouldClose() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		if err := e.frame(currentTime - e.lastTime); err != nil {
			core.LogError("frame failed, shutting down: %s", err)
			e.isRunning.Store(false)
			return err
		}
		e.lastTime = currentTime
	}
	return nil
}

// frame updates the game and draws one frame.
func (e *Engine) frame(delta float64) error {
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return errors.Wrap(err, "game update failed")
		}
	}
	err := e.renderer.DrawFrame(e.gameInstance.Scene, delta)
	if err != nil && !errors.Is(err, core.ErrMinimized) {
		return err
	}
	core.MetricsUpdate(delta)
	return nil
}

// Shutdown releases everything in reverse order of creation. It is safe to
// call more than once.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.currentStage = EngineStageShuttingDown
		e.isRunning.Store(false)

		if e.watcher != nil {
			if err := e.watcher.Close(); err != nil {
				core.LogWarn("failed to close config watcher: %s", err)
			}
		}
		if e.renderer != nil {
			e.shutdownErr = errors.CombineErrors(e.shutdownErr, e.renderer.Shutdown())
		}
		if e.gameInstance.FnShutdown != nil {
			e.shutdownErr = errors.CombineErrors(e.shutdownErr, e.gameInstance.FnShutdown())
		}
		if e.backend != nil {
			e.shutdownErr = errors.CombineErrors(e.shutdownErr, e.backend.Shutdown())
		}
		if e.platform != nil {
			e.shutdownErr = errors.CombineErrors(e.shutdownErr, e.platform.Shutdown())
		}
		e.shutdownErr = errors.CombineErrors(e.shutdownErr, core.EventShutdown())
		e.currentStage = EngineStageUninitialized
	})
	return e.shutdownErr
}

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onConfigChanged(cfg *config.Config) {
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("ignoring log level %q: %s", cfg.Log.Level, err)
	}
	// Only settings that can change at runtime are applied; the rest wait for
	// a restart.
	core.EventFire(core.EVENT_CODE_CONFIG_RELOADED, e, core.EventContext{})
}

func (e *Engine) onEvent(code core.SystemEventCode, sender, listenerInst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	case core.EVENT_CODE_CONFIG_RELOADED:
		core.LogInfo("configuration reloaded, log level is now %s", core.LogLevel())
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender, listenerInst interface{}, data core.EventContext) bool {
	core.LogDebug("key %d pressed", data.Data.U16[0])
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listenerInst interface{}, data core.EventContext) bool {
	width := data.Data.U32[0]
	height := data.Data.U32[1]

	// Check if different. If so, trigger a resize.
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
		// The time spent minimized is not part of the next frame.
		e.clock.Update()
		e.lastTime = e.clock.Elapsed()
	}
	if e.renderer != nil {
		e.renderer.OnResize(width, height)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	// Other listeners may care about the resize.
	return false
}
