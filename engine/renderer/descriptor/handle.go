// Package descriptor hands out bindless descriptor indices. A Handle packs the
// slot index of a resource in the global descriptor arrays together with its
// resource type, access mode and a small version counter, so shaders receive a
// single 32-bit value per resource.
package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
)

// ResourceType selects the descriptor array a handle indexes into.
type ResourceType uint8

const (
	Buffer ResourceType = iota
	Texture
	RWTexture
)

func (t ResourceType) String() string {
	switch t {
	case Buffer:
		return "buffer"
	case Texture:
		return "texture"
	case RWTexture:
		return "rwtexture"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "rw"
	}
	return "ro"
}

// Layout of a Handle, from the least significant bit:
// [23 bits index][2 bits type][1 bit access][6 bits version]
const (
	indexBits   = 23
	typeBits    = 2
	accessBits  = 1
	versionBits = 6

	typeShift    = indexBits
	accessShift  = typeShift + typeBits
	versionShift = accessShift + accessBits

	indexMask   = 1<<indexBits - 1
	typeMask    = 1<<typeBits - 1
	accessMask  = 1<<accessBits - 1
	versionMask = 1<<versionBits - 1

	// MaxCapacity is the number of distinct indices a handle can address.
	MaxCapacity = 1 << indexBits
	// MaxVersion is the largest version before it wraps back to zero.
	MaxVersion = versionMask
)

type Handle uint32

// InvalidHandle decodes to type 3, which is never issued.
const InvalidHandle Handle = 0xFFFFFFFF

func NewHandle(index uint32, resourceType ResourceType, access Access, version uint8) Handle {
	core.Assert(index <= indexMask, "descriptor index %d does not fit in %d bits", index, indexBits)
	core.Assert(resourceType <= RWTexture, "invalid descriptor resource type %d", resourceType)
	core.Assert(access <= ReadWrite, "invalid descriptor access %d", access)
	core.Assert(version <= MaxVersion, "descriptor version %d does not fit in %d bits", version, versionBits)

	return Handle(index |
		uint32(resourceType)<<typeShift |
		uint32(access)<<accessShift |
		uint32(version)<<versionShift)
}

func (h Handle) Index() uint32 {
	return uint32(h) & indexMask
}

func (h Handle) Type() ResourceType {
	return ResourceType(uint32(h) >> typeShift & typeMask)
}

func (h Handle) Access() Access {
	return Access(uint32(h) >> accessShift & accessMask)
}

func (h Handle) Version() uint8 {
	return uint8(uint32(h) >> versionShift & versionMask)
}

func (h Handle) IsValid() bool {
	return h != InvalidHandle && h.Type() <= RWTexture
}

// Recycle returns a handle for the same index with the version bumped (modulo
// 64) and the new type and access tags.
func (h Handle) Recycle(resourceType ResourceType, access Access) Handle {
	return NewHandle(h.Index(), resourceType, access, (h.Version()+1)&versionMask)
}

func (h Handle) String() string {
	if h == InvalidHandle {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%s[%d] %s v%d)", h.Type(), h.Index(), h.Access(), h.Version())
}
