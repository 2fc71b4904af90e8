package vkframe

import "time"

// Opaque backend handles. The zero value of every handle is the null handle.
type (
	Fence         uint64
	Semaphore     uint64
	CommandBuffer uint64
	Queue         uint64
	SwapchainID   uint64
	Image         uint64
	ImageView     uint64
	Framebuffer   uint64
	Attachment    uint64
)

// Format is a backend pixel format identifier.
type Format uint32

// ColorSpace is a backend color space identifier.
type ColorSpace uint32

// Common formats understood by every backend.
const (
	FormatUndefined     Format = 0
	FormatB8G8R8A8Unorm Format = 44
	FormatB8G8R8A8Srgb  Format = 50

	ColorSpaceSrgbNonlinear ColorSpace = 0
)

// PresentMode selects how presented images are queued for display.
type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

// PresentStatus is the non-error outcome of an acquire or present call.
type PresentStatus int

const (
	StatusOK PresentStatus = iota
	StatusSuboptimal
	StatusOutOfDate
)

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Zero reports whether either dimension is zero, which is what a minimized
// window reports.
func (e Extent) Zero() bool {
	return e.Width == 0 || e.Height == 0
}

// SurfaceFormat pairs a pixel format with its color space.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SurfaceCapabilities mirrors the platform surface capability query.
// CurrentExtent is undefined (both dimensions MaxUint32) when the surface
// lets the swapchain choose its size.
type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32 // 0 means no upper bound
	CurrentExtent  Extent
	MinImageExtent Extent
	MaxImageExtent Extent
}

// SurfaceSupport is everything the swapchain manager needs to know about the
// surface before building.
type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

// SwapchainCreateInfo is handed to the device when creating the swapchain object.
type SwapchainCreateInfo struct {
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent
	PresentMode   PresentMode
}

// ClearValue is the fixed clear applied at the start of every render pass.
type ClearValue struct {
	Color [4]float32
	Depth float32
}

// SubmitInfo describes a single queue submission.
// A zero CommandBuffer submits an empty batch that only waits and signals.
type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	Signal        Semaphore
	Fence         Fence
}

// Pipeline is an externally owned graphics pipeline.
type Pipeline interface {
	Valid() bool
}

// Mesh is an externally owned vertex (and optional index) buffer pair.
// IndexCount 0 means draw non-indexed vertices only.
type Mesh interface {
	Valid() bool
	VertexCount() uint32
	IndexCount() uint32
}

// Surface is the presentation target provider.
type Surface interface {
	// CurrentExtent returns the drawable size in pixels.
	CurrentExtent() Extent
	// IsClosed reports whether the user asked to close the surface.
	IsClosed() bool
}

// EventPoller is an optional Surface decorator. When present, Run polls
// events once per tick before rendering.
type EventPoller interface {
	PollEvents()
}

// Device is the logical device capability consumed by the core.
// All calls are made from the single driving goroutine.
type Device interface {
	GraphicsQueue() Queue
	PresentQueue() Queue

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitFence blocks until f is signaled. A non-positive timeout waits
	// without bound. Expiry returns an error matching ErrDeviceLost.
	WaitFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	AllocateCommandBuffers(count int) ([]CommandBuffer, error)
	FreeCommandBuffers(buffers []CommandBuffer)

	QuerySurface() (SurfaceSupport, error)
	CreateSwapchain(info SwapchainCreateInfo) (SwapchainID, []Image, error)
	DestroySwapchain(sc SwapchainID)
	CreateImageView(img Image, format Format) (ImageView, error)
	DestroyImageView(v ImageView)
	CreateDepthAttachment(extent Extent) (Attachment, error)
	DestroyDepthAttachment(a Attachment)
	CreateFramebuffer(view ImageView, depth Attachment, extent Extent) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	AcquireNextImage(sc SwapchainID, signal Semaphore) (uint32, PresentStatus, error)
	Submit(q Queue, info SubmitInfo) error
	Present(q Queue, sc SwapchainID, image uint32, wait Semaphore) (PresentStatus, error)
	WaitIdle() error

	Recorder
}

// Recorder is the command recording subset of Device.
type Recorder interface {
	// BeginCommandBuffer resets cmd and puts it in the recording state.
	BeginCommandBuffer(cmd CommandBuffer) error
	BeginRenderPass(cmd CommandBuffer, fb Framebuffer, extent Extent, clear ClearValue)
	SetViewport(cmd CommandBuffer, extent Extent)
	BindPipeline(cmd CommandBuffer, p Pipeline)
	BindMesh(cmd CommandBuffer, m Mesh)
	Draw(cmd CommandBuffer, vertexCount uint32)
	DrawIndexed(cmd CommandBuffer, indexCount uint32)
	EndRenderPass(cmd CommandBuffer)
	EndCommandBuffer(cmd CommandBuffer) error
}
