package framegraph

import "fmt"

// Frame graph handles pack the pool generation they were issued under with an
// index into one of the pool arrays: [20 bits generation][12 bits index].
// Reset bumps the generation, so handles from a previous build are caught by
// the accessors instead of silently aliasing new entries. The generation wraps
// after 1<<20 resets; a handle kept that long aliases again.
const (
	handleIndexBits  = 12
	handleIndexMask  = 1<<handleIndexBits - 1
	handleGenShift   = handleIndexBits
	handleGenMask    = 1<<(32-handleIndexBits) - 1
	maxHandleEntries = handleIndexMask
)

const invalidHandle = 0xFFFFFFFF

type ResourceHandle uint32
type BufferHandle uint32
type TextureHandle uint32
type NodeHandle uint32

const (
	InvalidResource ResourceHandle = invalidHandle
	InvalidBuffer   BufferHandle   = invalidHandle
	InvalidTexture  TextureHandle  = invalidHandle
	InvalidNode     NodeHandle     = invalidHandle
)

func packHandle(generation uint32, index int) uint32 {
	return uint32(generation)<<handleGenShift | uint32(index)&handleIndexMask
}

func handleIndex(h uint32) uint32      { return h & handleIndexMask }
func handleGeneration(h uint32) uint32 { return h >> handleGenShift }

func formatHandle(kind string, h uint32) string {
	if h == invalidHandle {
		return kind + "(invalid)"
	}
	return fmt.Sprintf("%s(%d g%d)", kind, handleIndex(h), handleGeneration(h))
}

func (h ResourceHandle) Index() uint32      { return handleIndex(uint32(h)) }
func (h ResourceHandle) Generation() uint32 { return handleGeneration(uint32(h)) }
func (h ResourceHandle) IsValid() bool      { return h != InvalidResource }
func (h ResourceHandle) String() string     { return formatHandle("resource", uint32(h)) }

func (h BufferHandle) Index() uint32      { return handleIndex(uint32(h)) }
func (h BufferHandle) Generation() uint32 { return handleGeneration(uint32(h)) }
func (h BufferHandle) IsValid() bool      { return h != InvalidBuffer }
func (h BufferHandle) String() string     { return formatHandle("buffer", uint32(h)) }

func (h TextureHandle) Index() uint32      { return handleIndex(uint32(h)) }
func (h TextureHandle) Generation() uint32 { return handleGeneration(uint32(h)) }
func (h TextureHandle) IsValid() bool      { return h != InvalidTexture }
func (h TextureHandle) String() string     { return formatHandle("texture", uint32(h)) }

func (h NodeHandle) Index() uint32      { return handleIndex(uint32(h)) }
func (h NodeHandle) Generation() uint32 { return handleGeneration(uint32(h)) }
func (h NodeHandle) IsValid() bool      { return h != InvalidNode }
func (h NodeHandle) String() string     { return formatHandle("node", uint32(h)) }
