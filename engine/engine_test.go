package engine

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/prism/engine/renderer/passes"
	"github.com/spaghettifunk/prism/engine/scene"
)

type gameRecorder struct {
	updates  int
	resizes  [][2]uint32
	shutdown bool
}

func newTestGame(rec *gameRecorder) *Game {
	sc := scene.NewSimpleScene()
	sc.Spawn("cube", mgl32.Ident4())
	return &Game{
		ApplicationConfig: &ApplicationConfig{},
		Scene:             sc,
		FnInitialize: func(r *renderer.Renderer, cfg *config.Config) error {
			pool := r.Pool()
			r.AddPass(passes.NewScenePass(pool, cfg.Renderer.ClearColor))
			r.AddPass(passes.NewExposurePass(pool, cfg.Renderer.Exposure))
			r.AddPass(passes.NewPresentPass(pool))
			return nil
		},
		FnUpdate: func(deltaTime float64) error {
			rec.updates++
			return nil
		},
		FnOnResize: func(width, height uint32) error {
			rec.resizes = append(rec.resizes, [2]uint32{width, height})
			return nil
		},
		FnShutdown: func() error {
			rec.shutdown = true
			return nil
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *gputest.Backend, *gameRecorder) {
	t.Helper()
	rec := &gameRecorder{}
	cfg := config.Default()
	cfg.Bindless.MaxSampledImages = 64
	cfg.Bindless.MaxStorageImages = 64
	cfg.Bindless.MaxBuffers = 64

	e := newEngine(newTestGame(rec), cfg, nil)
	if err := e.initializeSystems(); err != nil {
		t.Fatalf("initializeSystems: %v", err)
	}
	backend := gputest.NewBackend(1, 1)
	if err := e.initializeRenderer(backend); err != nil {
		e.Shutdown()
		t.Fatalf("initializeRenderer: %v", err)
	}
	t.Cleanup(func() { e.Shutdown() })
	return e, backend, rec
}

func resize(width, height uint32) {
	var ctx core.EventContext
	ctx.Data.U32[0] = width
	ctx.Data.U32[1] = height
	core.EventFire(core.EVENT_CODE_RESIZED, nil, ctx)
}

func TestInitializeRendererUsesConfiguredSize(t *testing.T) {
	_, backend, rec := newTestEngine(t)

	if !backend.Initialized || backend.AppName != "Prism" {
		t.Fatalf("backend not initialized with the app name: %+v", backend)
	}
	extent := backend.Extent()
	if extent.Width != 1280 || extent.Height != 720 {
		t.Fatalf("extent = %dx%d, want 1280x720", extent.Width, extent.Height)
	}
	if len(rec.resizes) != 1 || rec.resizes[0] != [2]uint32{1280, 720} {
		t.Fatalf("initial resize not reported: %v", rec.resizes)
	}
}

func TestFrameUpdatesAndPresents(t *testing.T) {
	e, backend, rec := newTestEngine(t)

	for i := 0; i < 4; i++ {
		if err := e.frame(1.0 / 60.0); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if rec.updates != 4 {
		t.Errorf("updates = %d, want 4", rec.updates)
	}
	if backend.Presented != 4 {
		t.Errorf("presented = %d, want 4", backend.Presented)
	}
	if e.renderer.FrameNumber() != 4 {
		t.Errorf("frame number = %d, want 4", e.renderer.FrameNumber())
	}
}

func TestResizeEventRecreatesSwapchain(t *testing.T) {
	e, backend, rec := newTestEngine(t)

	resize(800, 600)
	if w, h := e.GetFramebufferSize(); w != 800 || h != 600 {
		t.Fatalf("framebuffer size = %dx%d", w, h)
	}
	if got := rec.resizes[len(rec.resizes)-1]; got != [2]uint32{800, 600} {
		t.Fatalf("game saw resize %v", got)
	}
	if err := e.frame(0.016); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if backend.Recreations != 1 {
		t.Fatalf("recreations = %d, want 1", backend.Recreations)
	}
	if extent := backend.Extent(); extent.Width != 800 || extent.Height != 600 {
		t.Fatalf("extent = %dx%d", extent.Width, extent.Height)
	}

	// Same size again is ignored.
	resize(800, 600)
	if err := e.frame(0.016); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if backend.Recreations != 1 {
		t.Fatalf("recreations = %d after duplicate resize", backend.Recreations)
	}
}

func TestMinimizeSuspendsAndRestoreResumes(t *testing.T) {
	e, _, _ := newTestEngine(t)

	resize(0, 0)
	if !e.isSuspended {
		t.Fatal("engine should suspend on a zero sized framebuffer")
	}
	resize(1024, 768)
	if e.isSuspended {
		t.Fatal("engine should resume once the framebuffer has an area")
	}
}

func TestResumeDropsTimeSpentMinimized(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.clock.Start()
	e.lastTime = -60

	resize(0, 0)
	resize(1024, 768)
	if e.lastTime < 0 {
		t.Fatalf("last frame time %v kept across the suspension", e.lastTime)
	}
	e.clock.Update()
	if delta := e.clock.Elapsed() - e.lastTime; delta > 1 {
		t.Fatalf("first delta after resume is %vs", delta)
	}
}

func TestQuitEventStopsTheLoop(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.isRunning.Store(true)

	core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	if e.isRunning.Load() {
		t.Fatal("quit event did not stop the engine")
	}
}

func TestShutdownReleasesEverythingOnce(t *testing.T) {
	e, backend, rec := newTestEngine(t)

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if !backend.ShutDown || !rec.shutdown {
		t.Fatalf("backend shut down = %v, game shut down = %v", backend.ShutDown, rec.shutdown)
	}
	if live := backend.LiveImages(); len(live) != 0 {
		t.Fatalf("%d images still alive after shutdown", len(live))
	}
	for _, s := range backend.Sets {
		if !s.Destroyed {
			t.Fatal("bindless set not destroyed")
		}
	}
}
