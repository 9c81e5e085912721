// Package gputest provides an in-memory gpu.Device and gpu.Swapchain that
// record every call, for tests that exercise the frame graph without a GPU.
package gputest

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/gpu"
)

type Buffer struct {
	ID        int
	Info      gpu.BufferCreateInfo
	Destroyed bool
}

func (b *Buffer) Handle() vk.Buffer { return vk.NullBuffer }
func (b *Buffer) Size() uint64      { return b.Info.Size }

type Image struct {
	ID        int
	Info      gpu.ImageCreateInfo
	Destroyed bool
}

func (i *Image) Handle() vk.Image            { return vk.NullImage }
func (i *Image) View() vk.ImageView          { return vk.NullImageView }
func (i *Image) Extent() vk.Extent3D         { return i.Info.Extent }
func (i *Image) Format() vk.Format           { return i.Info.Format }
func (i *Image) Aspect() vk.ImageAspectFlags { return i.Info.Aspect }
func (i *Image) String() string              { return fmt.Sprintf("image#%d(%s)", i.ID, i.Info.Name) }

type DescriptorSet struct {
	Layout    gpu.BindlessLayout
	Writes    []gpu.DescriptorWrite
	Destroyed bool
}

func (s *DescriptorSet) Handle() vk.DescriptorSet { return nil }

func (s *DescriptorSet) Update(writes ...gpu.DescriptorWrite) {
	s.Writes = append(s.Writes, writes...)
}

// Command is one recorded command buffer call.
type Command struct {
	Name     string
	Barriers []gpu.ImageBarrier
	Image    gpu.Image
	Dst      gpu.Image
	Buffer   gpu.Buffer
	Layout   vk.ImageLayout
	Data     []byte
}

type CommandBuffer struct {
	Commands []Command
}

func (c *CommandBuffer) Handle() vk.CommandBuffer { return nil }

func (c *CommandBuffer) PipelineBarrier(srcStage, dstStage vk.PipelineStageFlags, barriers []gpu.ImageBarrier) {
	c.Commands = append(c.Commands, Command{Name: "PipelineBarrier", Barriers: append([]gpu.ImageBarrier(nil), barriers...)})
}

func (c *CommandBuffer) ClearColorImage(image gpu.Image, layout vk.ImageLayout, color [4]float32) {
	c.Commands = append(c.Commands, Command{Name: "ClearColorImage", Image: image, Layout: layout})
}

func (c *CommandBuffer) ClearDepthStencilImage(image gpu.Image, layout vk.ImageLayout, depth float32, stencil uint32) {
	c.Commands = append(c.Commands, Command{Name: "ClearDepthStencilImage", Image: image, Layout: layout})
}

func (c *CommandBuffer) UpdateBuffer(buffer gpu.Buffer, offset uint64, data []byte) {
	c.Commands = append(c.Commands, Command{Name: "UpdateBuffer", Buffer: buffer, Data: append([]byte(nil), data...)})
}

func (c *CommandBuffer) BlitImage(src gpu.Image, srcLayout vk.ImageLayout, dst gpu.Image, dstLayout vk.ImageLayout) {
	c.Commands = append(c.Commands, Command{Name: "BlitImage", Image: src, Dst: dst, Layout: dstLayout})
}

// Barriers returns every image barrier recorded so far, in order.
func (c *CommandBuffer) Barriers() []gpu.ImageBarrier {
	var out []gpu.ImageBarrier
	for _, cmd := range c.Commands {
		out = append(out, cmd.Barriers...)
	}
	return out
}

// Names returns the names of the recorded commands, in order.
func (c *CommandBuffer) Names() []string {
	names := make([]string, len(c.Commands))
	for i, cmd := range c.Commands {
		names[i] = cmd.Name
	}
	return names
}

// Device implements gpu.Device in memory.
type Device struct {
	DeviceLimits gpu.Limits

	Buffers []*Buffer
	Images  []*Image
	Sets    []*DescriptorSet

	// Submitted holds the command buffers recorded through ImmediateSubmit.
	Submitted     []*CommandBuffer
	WaitIdleCalls int

	// FailImages makes CreateImage fail when set.
	FailImages error

	nextID int
}

func NewDevice() *Device {
	return &Device{
		DeviceLimits: gpu.Limits{
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 64,
			MaxImageDimension2D:             16384,
		},
	}
}

func (d *Device) Limits() gpu.Limits { return d.DeviceLimits }

func (d *Device) CreateBuffer(info gpu.BufferCreateInfo) (gpu.Buffer, error) {
	d.nextID++
	b := &Buffer{ID: d.nextID, Info: info}
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

func (d *Device) DestroyBuffer(buffer gpu.Buffer) {
	b := buffer.(*Buffer)
	core.Assert(!b.Destroyed, "buffer %d destroyed twice", b.ID)
	b.Destroyed = true
}

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	if d.FailImages != nil {
		return nil, d.FailImages
	}
	d.nextID++
	i := &Image{ID: d.nextID, Info: info}
	d.Images = append(d.Images, i)
	return i, nil
}

func (d *Device) DestroyImage(image gpu.Image) {
	i := image.(*Image)
	core.Assert(!i.Destroyed, "image %d destroyed twice", i.ID)
	i.Destroyed = true
}

func (d *Device) CreateBindlessSet(layout gpu.BindlessLayout) (gpu.DescriptorSet, error) {
	s := &DescriptorSet{Layout: layout}
	d.Sets = append(d.Sets, s)
	return s, nil
}

func (d *Device) DestroyDescriptorSet(set gpu.DescriptorSet) {
	set.(*DescriptorSet).Destroyed = true
}

func (d *Device) ImmediateSubmit(record func(cmd gpu.CommandBuffer)) error {
	cmd := &CommandBuffer{}
	record(cmd)
	d.Submitted = append(d.Submitted, cmd)
	return nil
}

func (d *Device) WaitIdle() error {
	d.WaitIdleCalls++
	return nil
}

// LiveImages returns the images that were created and not destroyed yet.
func (d *Device) LiveImages() []*Image {
	var out []*Image
	for _, i := range d.Images {
		if !i.Destroyed {
			out = append(out, i)
		}
	}
	return out
}

// Swapchain implements gpu.Swapchain in memory. Every frame gets a fresh
// CommandBuffer that stays reachable through Frames.
type Swapchain struct {
	Size        vk.Extent2D
	SurfaceFmt  vk.Format
	Images      []*Image
	Frames      []*gpu.Frame
	Presented   int
	Recreations int

	// BootNext makes the next BeginFrame report an out of date swapchain.
	BootNext bool

	// OnBegin runs at the start of BeginFrame, before the frame is handed out.
	OnBegin func(frameIndex uint32)

	next uint32
}

func NewSwapchain(width, height uint32) *Swapchain {
	s := &Swapchain{
		Size:       vk.Extent2D{Width: width, Height: height},
		SurfaceFmt: vk.FormatB8g8r8a8Unorm,
	}
	s.createImages()
	return s
}

func (s *Swapchain) createImages() {
	s.Images = make([]*Image, 3)
	for i := range s.Images {
		s.Images[i] = &Image{ID: -(i + 1), Info: gpu.ImageCreateInfo{
			Name:   fmt.Sprintf("swapchain_%d", i),
			Format: s.SurfaceFmt,
			Extent: vk.Extent3D{Width: s.Size.Width, Height: s.Size.Height, Depth: 1},
			Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		}}
	}
}

func (s *Swapchain) Extent() vk.Extent2D { return s.Size }
func (s *Swapchain) Format() vk.Format   { return s.SurfaceFmt }
func (s *Swapchain) ImageCount() uint32  { return uint32(len(s.Images)) }

func (s *Swapchain) BeginFrame(frameIndex uint32) (*gpu.Frame, error) {
	if s.OnBegin != nil {
		s.OnBegin(frameIndex)
	}
	if s.BootNext {
		s.BootNext = false
		return nil, core.ErrSwapchainBooting
	}
	imageIndex := s.next
	s.next = (s.next + 1) % uint32(len(s.Images))
	frame := &gpu.Frame{
		Index:      frameIndex,
		ImageIndex: imageIndex,
		Cmd:        &CommandBuffer{},
		Target:     s.Images[imageIndex],
	}
	s.Frames = append(s.Frames, frame)
	return frame, nil
}

func (s *Swapchain) EndFrame(frame *gpu.Frame) error {
	s.Presented++
	return nil
}

func (s *Swapchain) Recreate(width, height uint32) error {
	s.Size = vk.Extent2D{Width: width, Height: height}
	s.Recreations++
	s.next = 0
	s.createImages()
	return nil
}

// Backend pairs a Device with a Swapchain and records the backend lifecycle.
type Backend struct {
	*Device
	*Swapchain

	AppName     string
	Initialized bool
	ShutDown    bool
}

func NewBackend(width, height uint32) *Backend {
	return &Backend{
		Device:    NewDevice(),
		Swapchain: NewSwapchain(width, height),
	}
}

func (b *Backend) Initialize(appName string, appWidth, appHeight uint32) error {
	b.AppName = appName
	b.Initialized = true
	b.Swapchain.Size = vk.Extent2D{Width: appWidth, Height: appHeight}
	b.Swapchain.createImages()
	return nil
}

func (b *Backend) Shutdown() error {
	b.ShutDown = true
	return nil
}
