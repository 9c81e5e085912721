package vulkan

import "math"

// Fence waits never time out, a hung GPU surfaces as a device lost error.
const fenceTimeoutNs uint64 = math.MaxUint64

const validationLayerName = "VK_LAYER_KHRONOS_validation"

const portabilitySubsetExtensionName = "VK_KHR_portability_subset"
