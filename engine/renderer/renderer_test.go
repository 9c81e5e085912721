package renderer

import (
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/framegraph"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/prism/engine/renderer/passes"
	"github.com/spaghettifunk/prism/engine/scene"
)

var testConfig = &Config{
	Bindless: descriptor.Config{
		MaxSampledImages: 64,
		MaxStorageImages: 64,
		MaxBuffers:       64,
		UniformBuffers:   true,
	},
}

type recordingPass struct {
	name  string
	log   *[]string
	fail  error
	frame framegraph.FrameInfo
}

func (p *recordingPass) Info() framegraph.NodeInfo {
	return framegraph.NodeInfo{Name: p.name}
}

func (p *recordingPass) Execute(pool *framegraph.ResourcePool, frame *framegraph.FrameInfo) error {
	*p.log = append(*p.log, p.name)
	p.frame = *frame
	return p.fail
}

func newTestRenderer(t *testing.T) (*Renderer, *gputest.Device, *gputest.Swapchain) {
	t.Helper()
	device := gputest.NewDevice()
	swapchain := gputest.NewSwapchain(1280, 720)
	r, err := New(device, swapchain, testConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, device, swapchain
}

func TestDrawFrameRunsPassesInOrder(t *testing.T) {
	r, _, swapchain := newTestRenderer(t)
	var log []string
	first := &recordingPass{name: "first", log: &log}
	second := &recordingPass{name: "second", log: &log}
	r.AddPass(second)
	r.AddPass(first)
	r.Build()

	for i := 0; i < 3; i++ {
		if err := r.DrawFrame(nil, 0.016); err != nil {
			t.Fatalf("DrawFrame: %v", err)
		}
	}
	want := []string{"second", "first", "second", "first", "second", "first"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("execution order %v, want %v", log, want)
	}
	if swapchain.Presented != 3 || r.FrameNumber() != 3 {
		t.Errorf("presented %d frames, frame number %d", swapchain.Presented, r.FrameNumber())
	}
	if first.frame.FrameIndex != 0 || first.frame.FrameNumber != 2 {
		t.Errorf("third frame got index %d number %d", first.frame.FrameIndex, first.frame.FrameNumber)
	}
	if !mgl32.FloatEqual(first.frame.AspectRatio, 1280.0/720.0) {
		t.Errorf("aspect ratio %v", first.frame.AspectRatio)
	}
}

func TestDrawFrameFlushesSlotAfterBegin(t *testing.T) {
	r, _, swapchain := newTestRenderer(t)
	r.Build()

	ran := 0
	r.DeletionQueue().Schedule(func() { ran++ })
	var ranAtBegin []int
	swapchain.OnBegin = func(frameIndex uint32) {
		ranAtBegin = append(ranAtBegin, ran)
	}

	for i := 0; i < 3; i++ {
		if err := r.DrawFrame(nil, 0); err != nil {
			t.Fatalf("DrawFrame: %v", err)
		}
	}
	if want := []int{0, 1, 1}; !reflect.DeepEqual(ranAtBegin, want) {
		t.Errorf("closure counts at BeginFrame %v, want %v", ranAtBegin, want)
	}
	if ran != 1 {
		t.Errorf("closure ran %d times", ran)
	}
}

func TestDrawFrameAppliesResize(t *testing.T) {
	r, device, swapchain := newTestRenderer(t)
	color := r.Pool().AddImage("Color", framegraph.UsageColorAttachment, framegraph.TextureInfo{
		Format:     vk.FormatR8g8b8a8Unorm,
		ResizeMode: framegraph.ResizeSwapChainRelative,
	})
	r.Build()

	r.OnResize(800, 600)
	if err := r.DrawFrame(nil, 0); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	if swapchain.Recreations != 1 || device.WaitIdleCalls != 1 {
		t.Errorf("recreations=%d waitIdle=%d", swapchain.Recreations, device.WaitIdleCalls)
	}
	tex := r.Pool().TextureOf(color)
	if tex.Extent.Width != 800 || tex.Extent.Height != 600 {
		t.Errorf("texture extent %dx%d", tex.Extent.Width, tex.Extent.Height)
	}

	if err := r.DrawFrame(nil, 0); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	if swapchain.Recreations != 1 {
		t.Errorf("resize applied twice")
	}
}

func TestDrawFrameMinimized(t *testing.T) {
	r, _, swapchain := newTestRenderer(t)
	r.Build()
	r.OnResize(0, 0)
	if err := r.DrawFrame(nil, 0); !errors.Is(err, core.ErrMinimized) {
		t.Fatalf("DrawFrame = %v, want ErrMinimized", err)
	}
	if swapchain.Presented != 0 {
		t.Errorf("presented while minimized")
	}
	r.OnResize(640, 480)
	if err := r.DrawFrame(nil, 0); err != nil {
		t.Fatalf("DrawFrame after restore: %v", err)
	}
}

func TestDrawFrameSwapchainBooting(t *testing.T) {
	r, _, swapchain := newTestRenderer(t)
	var log []string
	r.AddPass(&recordingPass{name: "pass", log: &log})
	r.Build()

	swapchain.BootNext = true
	if err := r.DrawFrame(nil, 0); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	if len(log) != 0 || r.FrameNumber() != 0 {
		t.Errorf("frame rendered while the swapchain was booting")
	}
	if err := r.DrawFrame(nil, 0); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	if swapchain.Recreations != 1 || len(log) != 1 {
		t.Errorf("recreations=%d executed=%d", swapchain.Recreations, len(log))
	}
}

func TestDrawFramePassError(t *testing.T) {
	r, _, _ := newTestRenderer(t)
	var log []string
	r.AddPass(&recordingPass{name: "broken", log: &log, fail: core.ErrUnknown})
	r.Build()
	err := r.DrawFrame(nil, 0)
	if !errors.Is(err, core.ErrUnknown) {
		t.Errorf("DrawFrame = %v, want wrapped ErrUnknown", err)
	}
}

func TestDemoGraph(t *testing.T) {
	r, device, swapchain := newTestRenderer(t)
	scenePass := passes.NewScenePass(r.Pool(), [4]float32{0.1, 0.1, 0.1, 1})
	r.AddPass(scenePass)
	r.AddPass(passes.NewExposurePass(r.Pool(), 1))
	r.AddPass(passes.NewPresentPass(r.Pool()))
	r.Build()

	if got := len(device.Images); got != 2 {
		t.Fatalf("created %d images, want scene color and depth", got)
	}

	sc := scene.NewSimpleScene()
	sc.Spawn("a", mgl32.Ident4())
	sc.Spawn("b", mgl32.Translate3D(2, 0, 0))
	if err := r.DrawFrame(sc, 0.016); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	if scenePass.Uploaded() != 2 {
		t.Errorf("uploaded %d transforms, want 2", scenePass.Uploaded())
	}

	cmd := swapchain.Frames[0].Cmd.(*gputest.CommandBuffer)
	want := []string{
		"PipelineBarrier", "ClearColorImage", "ClearDepthStencilImage", "UpdateBuffer",
		"PipelineBarrier", "UpdateBuffer",
		"PipelineBarrier", "PipelineBarrier", "BlitImage", "PipelineBarrier",
	}
	if got := cmd.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("recorded %v\nwant %v", got, want)
	}
	blit := cmd.Commands[8]
	if blit.Dst != swapchain.Frames[0].Target || blit.Layout != vk.ImageLayoutTransferDstOptimal {
		t.Errorf("blit into %v layout %d", blit.Dst, blit.Layout)
	}
	last := cmd.Commands[9].Barriers[0]
	if last.NewLayout != vk.ImageLayoutPresentSrc {
		t.Errorf("swapchain image left in layout %d", last.NewLayout)
	}
	if got := len(cmd.Commands[3].Data); got != 2*64 {
		t.Errorf("transform upload of %d bytes", got)
	}

	// The scene color cycles TransferSrc -> General on the next frame.
	if err := r.DrawFrame(sc, 0.016); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	next := swapchain.Frames[1].Cmd.(*gputest.CommandBuffer)
	if b := next.Commands[0].Barriers[0]; b.OldLayout != vk.ImageLayoutTransferSrcOptimal || b.NewLayout != vk.ImageLayoutGeneral {
		t.Errorf("second frame scene color barrier %d -> %d", b.OldLayout, b.NewLayout)
	}

	ui := &framegraph.LogUI{}
	r.Inspect(ui)
	if len(ui.Lines()) == 0 {
		t.Errorf("inspector drew nothing")
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	r, device, _ := newTestRenderer(t)
	r.AddPass(passes.NewScenePass(r.Pool(), [4]float32{}))
	r.AddPass(passes.NewPresentPass(r.Pool()))
	r.Build()
	if err := r.DrawFrame(nil, 0); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	r.OnResize(300, 200)
	if err := r.DrawFrame(nil, 0); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}

	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if live := device.LiveImages(); len(live) != 0 {
		t.Errorf("%d images alive after shutdown", len(live))
	}
	for _, b := range device.Buffers {
		if !b.Destroyed {
			t.Errorf("buffer %q alive after shutdown", b.Info.Name)
		}
	}
	if !device.Sets[0].Destroyed {
		t.Errorf("bindless set alive after shutdown")
	}
	if r.DeletionQueue().Pending() != 0 {
		t.Errorf("%d deletions pending after shutdown", r.DeletionQueue().Pending())
	}
}

var _ gpu.Device = (*gputest.Device)(nil)
var _ gpu.Swapchain = (*gputest.Swapchain)(nil)
