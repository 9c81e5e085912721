package testbed

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/framegraph"
	"github.com/spaghettifunk/prism/engine/renderer/passes"
	"github.com/spaghettifunk/prism/engine/scene"
)

// Seconds between two frame graph dumps in the log.
const inspectInterval = 5.0

type TestGame struct {
	*engine.Game
}

type gameState struct {
	scene    *scene.SimpleScene
	renderer *renderer.Renderer
	exposure *passes.ExposurePass

	orbiters []*orbiter
	elapsed  float64
	sinceLog float64

	width  uint32
	height uint32
}

// orbiter is an entity circling the origin.
type orbiter struct {
	entity *scene.Entity
	radius float32
	speed  float32
	angle  float32
}

func NewTestGame(configPath string) *TestGame {
	sc := scene.NewSimpleScene()
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				ConfigPath: configPath,
			},
			Scene: sc,
			State: &gameState{scene: sc},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(r *renderer.Renderer, cfg *config.Config) error {
	core.LogInfo("initializing testbed...")
	state := g.state()
	state.renderer = r

	camera := state.scene.MainCamera()
	camera.Position = mgl32.Vec3{0, 8, 24}

	for i := 0; i < 8; i++ {
		o := &orbiter{
			radius: 4 + float32(i)*1.5,
			speed:  0.5 + float32(i%3)*0.25,
			angle:  float32(i) * math.Pi / 4,
		}
		o.entity = state.scene.Spawn(fmt.Sprintf("orbiter_%d", i), o.transform())
		state.orbiters = append(state.orbiters, o)
	}

	pool := r.Pool()
	r.AddPass(passes.NewScenePass(pool, cfg.Renderer.ClearColor))
	state.exposure = passes.NewExposurePass(pool, cfg.Renderer.Exposure)
	r.AddPass(state.exposure)
	r.AddPass(passes.NewPresentPass(pool))
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.elapsed += deltaTime
	state.sinceLog += deltaTime

	for _, o := range state.orbiters {
		o.angle += o.speed * float32(deltaTime)
		o.entity.Transform = o.transform()
	}

	if state.sinceLog >= inspectInterval {
		state.sinceLog = 0
		ui := &framegraph.LogUI{}
		state.renderer.Inspect(ui)
		ui.Flush()
		core.LogInfo("frame %d: %.1f fps, %.2f ms, exposure %.2f", state.renderer.FrameNumber(), core.MetricsFPS(), core.MetricsFrameTime(), state.exposure.Exposure)
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed after %.1fs", g.state().elapsed)
	return nil
}

func (o *orbiter) transform() mgl32.Mat4 {
	return mgl32.HomogRotate3DY(o.angle).Mul4(mgl32.Translate3D(o.radius, 0, 0))
}
