package framegraph

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
	"github.com/spaghettifunk/prism/engine/renderer/gpu/gputest"
)

func expectAssertion(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("%s: expected an assertion failure", name)
			return
		}
		if err, ok := r.(error); !ok || !errors.IsAssertionFailure(err) {
			t.Errorf("%s: unexpected panic %v", name, r)
		}
	}()
	fn()
}

type testPass struct {
	info     NodeInfo
	created  int
	executed int
}

func (p *testPass) Info() NodeInfo { return p.info }

func (p *testPass) Execute(pool *ResourcePool, frame *FrameInfo) error {
	p.executed++
	return nil
}

func (p *testPass) CreateResources(pool *ResourcePool) {
	p.created++
}

type fixture struct {
	device   *gputest.Device
	deletion *gpu.DeletionQueue
	bindless *descriptor.BindlessDescriptorSet
	pool     *ResourcePool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	device := gputest.NewDevice()
	bindless, err := descriptor.NewBindlessDescriptorSet(device, descriptor.Config{
		MaxSampledImages: 16,
		MaxStorageImages: 16,
		MaxBuffers:       16,
		UniformBuffers:   true,
	})
	if err != nil {
		t.Fatalf("NewBindlessDescriptorSet: %v", err)
	}
	deletion := gpu.NewDeletionQueue(gpu.MaxFramesInFlight)
	return &fixture{
		device:   device,
		deletion: deletion,
		bindless: bindless,
		pool:     NewResourcePool(device, deletion, bindless, 1280, 720),
	}
}

var colorInfo = TextureInfo{
	Format:     vk.FormatR8g8b8a8Unorm,
	ResizeMode: ResizeSwapChainRelative,
}

func TestEndToEndColorSampled(t *testing.T) {
	f := newFixture(t)
	pool := f.pool

	color := pool.AddImage("Color", UsageColorAttachment, colorInfo)
	a := &testPass{info: NodeInfo{Name: "A", Writes: []ResourceHandle{color}}}
	pool.AddNode(a)

	sampled := pool.AddReference("Color", UsageSampled)
	b := &testPass{info: NodeInfo{Name: "B", Reads: []ResourceHandle{sampled}}}
	pool.AddNode(b)

	pool.ResolveReferences()
	pool.CreateResources()

	if len(f.device.Images) != 1 || pool.TextureCount() != 1 {
		t.Fatalf("created %d images, %d textures, want 1", len(f.device.Images), pool.TextureCount())
	}
	tex := pool.TextureOf(sampled)
	want := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)
	if tex.Usage&want != want {
		t.Errorf("usage %#x does not contain %#x", tex.Usage, want)
	}
	if f.device.Images[0].Info.Usage != tex.Usage {
		t.Errorf("image created with %#x, texture records %#x", f.device.Images[0].Info.Usage, tex.Usage)
	}
	if tex.Extent.Width != 1280 || tex.Extent.Height != 720 {
		t.Errorf("extent %dx%d, want 1280x720", tex.Extent.Width, tex.Extent.Height)
	}
	if pool.TextureOf(color) != tex {
		t.Errorf("reference and declaration map to different textures")
	}
	if !f.bindless.IsCurrent(tex.SampledDescriptor) {
		t.Errorf("sampled texture not registered in the bindless set")
	}
	if tex.StorageDescriptor != descriptor.InvalidHandle {
		t.Errorf("texture without storage usage got %s", tex.StorageDescriptor)
	}
	if a.created != 1 || b.created != 1 {
		t.Errorf("CreateResources called %d/%d times", a.created, b.created)
	}
}

func TestResolveReferencesIdempotent(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	pool.AddImage("Depth", UsageDepthStencilAttachment, TextureInfo{Format: vk.FormatD32Sfloat, ResizeMode: ResizeSwapChainRelative})
	target := pool.AddBuffer("Lights", UsageComputeWriteStorage, BufferInfo{Size: 128})
	ref := pool.AddReference("Lights", UsageComputeReadStorage)

	pool.ResolveReferences()
	first := pool.Resource(ref).Info.(*ReferenceInfo).Resolved
	pool.ResolveReferences()
	second := pool.Resource(ref).Info.(*ReferenceInfo).Resolved

	if first != second || first != target {
		t.Errorf("resolved %s then %s, want %s", first, second, target)
	}
	if pool.ActualHandle(ref) != target || pool.ActualHandle(target) != target {
		t.Errorf("ActualHandle does not follow the reference")
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	first := pool.AddBuffer("Shared", UsageUniform, BufferInfo{Size: 16})
	pool.AddBuffer("Shared", UsageUniform, BufferInfo{Size: 32})
	ref := pool.AddReference("Shared", UsageUniform)
	pool.ResolveReferences()
	if got := pool.ActualHandle(ref); got != first {
		t.Errorf("resolved to %s, want %s", got, first)
	}
}

func TestUnresolvedReferenceAsserts(t *testing.T) {
	f := newFixture(t)
	f.pool.AddImage("Color", UsageColorAttachment, colorInfo)
	f.pool.AddReference("Colour", UsageSampled)
	expectAssertion(t, "unresolved reference", f.pool.ResolveReferences)
}

func TestReferenceToReferenceDoesNotResolve(t *testing.T) {
	f := newFixture(t)
	f.pool.AddReference("Ghost", UsageSampled)
	f.pool.AddReference("Ghost", UsageTransferSrc)
	expectAssertion(t, "reference chain", f.pool.ResolveReferences)
}

func TestBufferAlignment(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	uniform := pool.AddBuffer("Camera", UsageUniform, BufferInfo{Size: 200, InstanceCount: 2})
	storage := pool.AddBuffer("Particles", UsageComputeWriteStorage, BufferInfo{Size: 100, InstanceCount: 3})
	promoted := pool.AddBuffer("Mixed", UsageComputeReadStorage, BufferInfo{Size: 10})
	pool.AddReference("Mixed", UsageUniform)
	pool.ResolveReferences()
	pool.CreateResources()

	tests := []struct {
		handle            ResourceHandle
		alignment, stride uint64
		size              uint64
	}{
		{uniform, 256, 256, 512},
		{storage, 64, 128, 384},
		{promoted, 256, 256, 256},
	}
	for _, tt := range tests {
		b := pool.BufferOf(tt.handle)
		if b.Alignment != tt.alignment || b.Stride != tt.stride || b.Size != tt.size {
			t.Errorf("%s: alignment=%d stride=%d size=%d, want %d/%d/%d",
				b.Name, b.Alignment, b.Stride, b.Size, tt.alignment, tt.stride, tt.size)
		}
		if b.Resource.Size() != b.Size {
			t.Errorf("%s: device buffer of %d bytes", b.Name, b.Resource.Size())
		}
	}

	mixed := pool.BufferOf(promoted)
	want := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageUniformBufferBit)
	if mixed.Usage&want != want {
		t.Errorf("Mixed usage %#x lacks %#x", mixed.Usage, want)
	}
	if !f.bindless.IsCurrent(mixed.StorageDescriptor) || !f.bindless.IsCurrent(mixed.UniformDescriptor) {
		t.Errorf("Mixed descriptors %s / %s", mixed.StorageDescriptor, mixed.UniformDescriptor)
	}
	if got := mixed.Offset(1); got != 0 {
		t.Errorf("single instance Offset(1) = %d", got)
	}
	if got := pool.BufferOf(storage).Offset(2); got != 256 {
		t.Errorf("Offset(2) = %d, want 256", got)
	}
}

func TestSwapChainRelativeNeedsZeroExtent(t *testing.T) {
	f := newFixture(t)
	info := colorInfo
	info.Extent = vk.Extent3D{Width: 64, Height: 64, Depth: 1}
	f.pool.AddImage("Bad", UsageColorAttachment, info)
	f.pool.ResolveReferences()
	expectAssertion(t, "non zero extent", f.pool.CreateResources)
}

func TestFixedTextureKeepsExtent(t *testing.T) {
	f := newFixture(t)
	h := f.pool.AddImage("Shadow", UsageDepthStencilAttachment|UsageSampled, TextureInfo{
		Format: vk.FormatD32Sfloat,
		Extent: vk.Extent3D{Width: 2048, Height: 2048},
	})
	f.pool.ResolveReferences()
	f.pool.CreateResources()
	f.pool.ResizeImages(800, 600)

	tex := f.pool.TextureOf(h)
	if tex.Extent.Width != 2048 || tex.Extent.Depth != 1 {
		t.Errorf("fixed texture extent %+v", tex.Extent)
	}
	if tex.Aspect != vk.ImageAspectFlags(vk.ImageAspectDepthBit) {
		t.Errorf("depth texture aspect %#x", tex.Aspect)
	}
	if len(f.device.Images) != 1 {
		t.Errorf("fixed texture recreated on resize")
	}
}

func TestResizeRestoresLayout(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	color := pool.AddImage("Color", UsageColorAttachment, colorInfo)
	node := pool.AddNode(&testPass{info: NodeInfo{Name: "A", Writes: []ResourceHandle{color}}})
	sampled := pool.AddReference("Color", UsageSampled)
	reader := pool.AddNode(&testPass{info: NodeInfo{Name: "B", Reads: []ResourceHandle{sampled}}})
	pool.ResolveReferences()
	pool.CreateResources()

	cmd := &gputest.CommandBuffer{}
	pool.ApplyBarriers(node, cmd)
	pool.ApplyBarriers(reader, cmd)
	tex := pool.TextureOf(color)
	if tex.Layout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("layout %d after barriers, want shader read only", tex.Layout)
	}
	old := tex.Resource.(*gputest.Image)
	oldDescriptor := tex.SampledDescriptor

	pool.ResizeImages(800, 600)

	tex = pool.TextureOf(color)
	if tex.Extent.Width != 800 || tex.Extent.Height != 600 {
		t.Errorf("extent %dx%d, want 800x600", tex.Extent.Width, tex.Extent.Height)
	}
	if tex.Layout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("layout %d after resize, want shader read only", tex.Layout)
	}
	if tex.Resource == old {
		t.Fatalf("image was not recreated")
	}

	if len(f.device.Submitted) != 1 {
		t.Fatalf("%d immediate submits, want 1", len(f.device.Submitted))
	}
	barriers := f.device.Submitted[0].Barriers()
	if len(barriers) != 1 || barriers[0].OldLayout != vk.ImageLayoutUndefined ||
		barriers[0].NewLayout != vk.ImageLayoutShaderReadOnlyOptimal || barriers[0].Image != tex.Resource {
		t.Errorf("resize barriers %+v", barriers)
	}

	if old.Destroyed {
		t.Errorf("old image destroyed before its frame slot was flushed")
	}
	if !f.bindless.IsCurrent(oldDescriptor) {
		t.Errorf("old descriptor freed before its frame slot was flushed")
	}
	f.deletion.Flush(1)
	f.deletion.Flush(0)
	if !old.Destroyed {
		t.Errorf("old image never destroyed")
	}
	if f.bindless.IsCurrent(oldDescriptor) {
		t.Errorf("old descriptor %s still current", oldDescriptor)
	}
	if !f.bindless.IsCurrent(tex.SampledDescriptor) {
		t.Errorf("new descriptor %s not current", tex.SampledDescriptor)
	}

	for _, h := range []NodeHandle{node, reader} {
		for _, b := range pool.Node(h).ImageBarriers {
			if b.Image != tex.Resource {
				t.Errorf("%s barrier still points at the old image", pool.Node(h).Info.Name)
			}
		}
	}
}

func TestResizeIgnoresZero(t *testing.T) {
	f := newFixture(t)
	f.pool.AddImage("Color", UsageColorAttachment, colorInfo)
	f.pool.ResolveReferences()
	f.pool.CreateResources()
	f.pool.ResizeImages(0, 600)
	if len(f.device.Submitted) != 0 || f.pool.Extent().Width != 1280 {
		t.Errorf("zero sized resize was applied")
	}
}

func TestResizeBeforeCreateUpdatesDefault(t *testing.T) {
	f := newFixture(t)
	h := f.pool.AddImage("Color", UsageColorAttachment, colorInfo)
	f.pool.ResizeImages(640, 480)
	f.pool.ResolveReferences()
	f.pool.CreateResources()
	if tex := f.pool.TextureOf(h); tex.Extent.Width != 640 || tex.Extent.Height != 480 {
		t.Errorf("extent %dx%d, want 640x480", tex.Extent.Width, tex.Extent.Height)
	}
}

func TestNodeBarriers(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	color := pool.AddImage("Color", UsageColorAttachment, colorInfo)
	depth := pool.AddImage("Depth", UsageDepthStencilAttachment, TextureInfo{Format: vk.FormatD32Sfloat, ResizeMode: ResizeSwapChainRelative})
	transforms := pool.AddBuffer("Transforms", UsageComputeReadStorage, BufferInfo{Size: 64})
	h := pool.AddNode(&testPass{info: NodeInfo{
		Name:   "Scene",
		Reads:  []ResourceHandle{transforms},
		Writes: []ResourceHandle{color, depth, color},
	}})
	pool.ResolveReferences()
	pool.CreateResources()

	node := pool.Node(h)
	if len(node.AccessedTextures) != 2 {
		t.Errorf("accessed textures %v, want 2 entries", node.AccessedTextures)
	}
	cmd := &gputest.CommandBuffer{}
	pool.ApplyBarriers(h, cmd)
	if len(cmd.Commands) != 1 {
		t.Fatalf("recorded %v, want a single barrier batch", cmd.Names())
	}
	barriers := cmd.Barriers()
	if len(barriers) != 2 {
		t.Fatalf("%d barriers, want 2", len(barriers))
	}
	if barriers[1].NewLayout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("depth barrier to layout %d", barriers[1].NewLayout)
	}

	cmd = &gputest.CommandBuffer{}
	pool.ApplyBarriers(h, cmd)
	if len(cmd.Commands) != 0 {
		t.Errorf("textures already in place still got barriers: %v", cmd.Names())
	}
}

func TestLayoutForUsage(t *testing.T) {
	tests := []struct {
		usage Usage
		want  vk.ImageLayout
	}{
		{UsageDepthStencilAttachment, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{UsageColorAttachment, vk.ImageLayoutColorAttachmentOptimal},
		{UsageComputeReadStorage, vk.ImageLayoutGeneral},
		{UsageComputeReadStorage | UsageComputeWriteStorage, vk.ImageLayoutGeneral},
		{UsageSampled, vk.ImageLayoutShaderReadOnlyOptimal},
		{UsageTransferSrc, vk.ImageLayoutTransferSrcOptimal},
		{UsageTransferDst, vk.ImageLayoutTransferDstOptimal},
		{UsageColorAttachment | UsageTransferDst, vk.ImageLayoutGeneral},
		{UsageUniform, vk.ImageLayoutUndefined},
	}
	for _, tt := range tests {
		if got := layoutForUsage(tt.usage); got != tt.want {
			t.Errorf("layoutForUsage(%s) = %d, want %d", tt.usage, got, tt.want)
		}
	}
}

func TestUsageConversion(t *testing.T) {
	img := toImageUsage(UsageColorAttachment | UsageComputeWriteStorage | UsageTransferSrc)
	wantImg := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageStorageBit | vk.ImageUsageTransferSrcBit)
	if img != wantImg {
		t.Errorf("toImageUsage = %#x, want %#x", img, wantImg)
	}
	buf := toBufferUsage(UsageIndirectBuffer | UsageVertexBuffer | UsageIndexBuffer | UsageTransferDst)
	wantBuf := vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit | vk.BufferUsageVertexBufferBit |
		vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit)
	if buf != wantBuf {
		t.Errorf("toBufferUsage = %#x, want %#x", buf, wantBuf)
	}
	if s := (UsageSampled | UsageTransferDst).String(); s != "Sampled|TransferDst" {
		t.Errorf("String() = %q", s)
	}
}

func TestAccessorsAssert(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	h := pool.AddBuffer("Data", UsageComputeReadStorage, BufferInfo{Size: 16})
	pool.ResolveReferences()
	pool.CreateResources()

	expectAssertion(t, "invalid resource", func() { pool.Resource(InvalidResource) })
	expectAssertion(t, "out of range", func() { pool.Buffer(BufferHandle(packHandle(0, 5))) })
	expectAssertion(t, "buffer as texture", func() { pool.TextureOf(h) })
	expectAssertion(t, "declare after create", func() { pool.AddBuffer("Late", UsageUniform, BufferInfo{Size: 4}) })
	expectAssertion(t, "create twice", pool.CreateResources)
}

func TestResetInvalidatesHandles(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	old := pool.AddImage("Color", UsageSampled, colorInfo)
	node := pool.AddNode(&testPass{info: NodeInfo{Name: "A", Reads: []ResourceHandle{old}}})
	pool.ResolveReferences()
	pool.CreateResources()
	image := f.device.Images[0]

	pool.Reset()
	fresh := pool.AddImage("Color", UsageSampled, colorInfo)
	if fresh.Index() != old.Index() || fresh.Generation() == old.Generation() {
		t.Fatalf("fresh handle %s vs old %s", fresh, old)
	}
	expectAssertion(t, "stale resource", func() { pool.Resource(old) })
	expectAssertion(t, "stale node", func() { pool.Node(node) })

	f.deletion.FlushAll()
	if !image.Destroyed {
		t.Errorf("Reset did not schedule the image for deletion")
	}
}

func TestAnonymousResourcesGetUniqueNames(t *testing.T) {
	f := newFixture(t)
	a := f.pool.AddBuffer("", UsageUniform, BufferInfo{Size: 4})
	b := f.pool.AddBuffer("", UsageUniform, BufferInfo{Size: 4})
	na, nb := f.pool.Resource(a).Name, f.pool.Resource(b).Name
	if na == nb || !strings.HasPrefix(na, "anonymous-") {
		t.Errorf("anonymous names %q and %q", na, nb)
	}
	expectAssertion(t, "anonymous reference", func() { f.pool.AddReference("", UsageSampled) })
}

func TestCreateImageFailureAsserts(t *testing.T) {
	f := newFixture(t)
	f.device.FailImages = errors.New("out of device memory")
	f.pool.AddImage("Color", UsageColorAttachment, colorInfo)
	f.pool.ResolveReferences()
	expectAssertion(t, "create failure", f.pool.CreateResources)
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	color := pool.AddImage("Color", UsageColorAttachment, colorInfo)
	pool.AddNode(&testPass{info: NodeInfo{Name: "Scene", Writes: []ResourceHandle{color}}})
	pool.ResolveReferences()
	pool.CreateResources()

	ui := &LogUI{}
	Inspect(pool, ui)
	out := strings.Join(ui.Lines(), "\n")
	for _, want := range []string{"Frame graph (1280x720)", "== Scene", "write: Color [texture] ColorAttachment 1280x720 SwapChainRelative"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspector output lacks %q:\n%s", want, out)
		}
	}
	ui.Flush()
	if len(ui.Lines()) != 0 {
		t.Errorf("Flush kept %d lines", len(ui.Lines()))
	}
}

func TestReadWriteSameTextureMergesBarrier(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	color := pool.AddImage("Color", UsageColorAttachment, colorInfo)
	sampled := pool.AddReference("Color", UsageSampled)
	h := pool.AddNode(&testPass{info: NodeInfo{
		Name:   "Feedback",
		Reads:  []ResourceHandle{sampled},
		Writes: []ResourceHandle{color},
	}})
	pool.ResolveReferences()
	pool.CreateResources()

	node := pool.Node(h)
	if len(node.ImageBarriers) != 1 {
		t.Fatalf("%d node barriers, want one per texture", len(node.ImageBarriers))
	}
	cmd := &gputest.CommandBuffer{}
	pool.ApplyBarriers(h, cmd)
	barriers := cmd.Barriers()
	if len(barriers) != 1 {
		t.Fatalf("%d barriers recorded, want 1", len(barriers))
	}
	if barriers[0].OldLayout != vk.ImageLayoutUndefined || barriers[0].NewLayout != vk.ImageLayoutGeneral {
		t.Errorf("barrier %d -> %d, want undefined -> general", barriers[0].OldLayout, barriers[0].NewLayout)
	}
	if tex := pool.TextureOf(color); tex.Layout != vk.ImageLayoutGeneral {
		t.Errorf("texture left in layout %d", tex.Layout)
	}
}

func TestStaleHandleAssertsAfterManyResets(t *testing.T) {
	f := newFixture(t)
	pool := f.pool
	old := pool.AddBuffer("Data", UsageUniform, BufferInfo{Size: 4})
	for i := 0; i < 256; i++ {
		pool.Reset()
	}
	pool.AddBuffer("Other", UsageUniform, BufferInfo{Size: 4})
	expectAssertion(t, "stale after 256 resets", func() { pool.Resource(old) })
}

func TestBufferWithoutBufferUsageAsserts(t *testing.T) {
	f := newFixture(t)
	f.pool.AddBuffer("Params", UsageSampled, BufferInfo{Size: 16})
	f.pool.ResolveReferences()
	expectAssertion(t, "buffer with image usage only", f.pool.CreateResources)
}
