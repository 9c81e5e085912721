package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrMinimized        = errors.New("window minimized, nothing to render")
	ErrUnknown          = errors.New("unknown")
)
