package vkframe

import (
	"math"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SwapchainImage is one presentable image with the objects built on it.
type SwapchainImage struct {
	Image       Image
	View        ImageView
	Framebuffer Framebuffer
}

// Swapchain is one generation of the presentable image set. Every image
// shares Format and Extent. A Swapchain is rebuilt whole, never patched.
type Swapchain struct {
	ID          SwapchainID
	Generation  uint64
	Format      SurfaceFormat
	Extent      Extent
	PresentMode PresentMode
	Depth       Attachment
	Images      []SwapchainImage

	destroyed bool
}

// Len is N, the number of images.
func (s *Swapchain) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Images)
}

// Target returns what the command recorder needs to draw into image i.
func (s *Swapchain) Target(i uint32) RenderTarget {
	return RenderTarget{
		Framebuffer: s.Images[i].Framebuffer,
		Extent:      s.Extent,
	}
}

// Destroyed reports whether Destroy has released this generation.
func (s *Swapchain) Destroyed() bool {
	return s == nil || s.destroyed
}

// SwapchainManager owns the current swap chain of a render context.
type SwapchainManager struct {
	ctx        *Context
	current    *Swapchain
	generation uint64
}

func NewSwapchainManager(ctx *Context) *SwapchainManager {
	return &SwapchainManager{ctx: ctx}
}

// Current is the live swap chain, nil before Build or after Destroy.
func (m *SwapchainManager) Current() *Swapchain {
	return m.current
}

// Build queries the surface and creates the swap chain, one view per image,
// the optional depth attachment and one framebuffer per image, in that
// order. On failure everything created so far is released and no swap chain
// is returned.
func (m *SwapchainManager) Build(desired Extent) (sc *Swapchain, err error) {
	if m.current != nil {
		return nil, pkgerrors.Errorf("swap chain generation %d still live", m.current.Generation)
	}
	dev := m.ctx.Device
	cfg := m.ctx.Config

	support, err := dev.QuerySurface()
	if err != nil {
		return nil, pkgerrors.Wrap(Mark(err, ErrSurfaceIncompatible), "query surface")
	}
	if len(support.Formats) == 0 {
		return nil, pkgerrors.Wrap(ErrSurfaceIncompatible, "no surface formats")
	}
	if len(support.PresentModes) == 0 {
		return nil, pkgerrors.Wrap(ErrSurfaceIncompatible, "no present modes")
	}

	caps := support.Capabilities
	extent := ChooseExtent(caps, desired)
	if extent.Zero() {
		// Minimized. Nothing can be presented until the surface grows again.
		return nil, pkgerrors.Wrapf(ErrOutOfDate, "zero extent %dx%d", extent.Width, extent.Height)
	}
	format := ChooseSurfaceFormat(support.Formats)
	mode := ChoosePresentMode(support.PresentModes, cfg.VSync, cfg.PreferLowLatency)
	count := ChooseImageCount(caps, cfg.ImageCount)

	var rel releaser
	defer func() {
		if err != nil {
			err = multierr.Append(err, rel.Unwind())
		}
	}()

	id, images, err := dev.CreateSwapchain(SwapchainCreateInfo{
		MinImageCount: count,
		Format:        format,
		Extent:        extent,
		PresentMode:   mode,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(Mark(err, ErrDeviceRejected), "create swap chain")
	}
	rel.Defer(func() { dev.DestroySwapchain(id) })
	if len(images) == 0 {
		return nil, pkgerrors.Wrap(ErrDeviceRejected, "swap chain has no images")
	}

	sc = &Swapchain{
		ID:          id,
		Format:      format,
		Extent:      extent,
		PresentMode: mode,
		Images:      make([]SwapchainImage, len(images)),
	}

	for i, img := range images {
		view, err := dev.CreateImageView(img, format.Format)
		if err != nil {
			return nil, pkgerrors.Wrapf(Mark(err, ErrDeviceRejected), "create image view %d", i)
		}
		rel.Defer(func() { dev.DestroyImageView(view) })
		sc.Images[i] = SwapchainImage{Image: img, View: view}
	}

	if cfg.DepthAttachment {
		depth, err := dev.CreateDepthAttachment(extent)
		if err != nil {
			return nil, pkgerrors.Wrap(Mark(err, ErrDeviceRejected), "create depth attachment")
		}
		rel.Defer(func() { dev.DestroyDepthAttachment(depth) })
		sc.Depth = depth
	}

	for i := range sc.Images {
		fb, err := dev.CreateFramebuffer(sc.Images[i].View, sc.Depth, extent)
		if err != nil {
			return nil, pkgerrors.Wrapf(Mark(err, ErrDeviceRejected), "create framebuffer %d", i)
		}
		rel.Defer(func() { dev.DestroyFramebuffer(fb) })
		sc.Images[i].Framebuffer = fb
	}

	rel.Commit()
	m.generation++
	sc.Generation = m.generation
	m.current = sc

	m.ctx.Logger.Info("swap chain built",
		zap.Uint64("generation", sc.Generation),
		zap.Int("images", len(sc.Images)),
		zap.Uint32("width", extent.Width),
		zap.Uint32("height", extent.Height),
		zap.Stringer("present_mode", mode),
		zap.Uint32("format", uint32(format.Format)),
	)
	return sc, nil
}

// Destroy releases framebuffers, views, the swap chain object and the depth
// attachment, in that order. A nil or already destroyed swap chain is a
// no-op.
func (m *SwapchainManager) Destroy(sc *Swapchain) error {
	if sc.Destroyed() {
		return nil
	}
	dev := m.ctx.Device
	for i := range sc.Images {
		if sc.Images[i].Framebuffer != 0 {
			dev.DestroyFramebuffer(sc.Images[i].Framebuffer)
		}
	}
	for i := range sc.Images {
		if sc.Images[i].View != 0 {
			dev.DestroyImageView(sc.Images[i].View)
		}
	}
	if sc.ID != 0 {
		dev.DestroySwapchain(sc.ID)
	}
	if sc.Depth != 0 {
		dev.DestroyDepthAttachment(sc.Depth)
	}
	sc.Images = nil
	sc.destroyed = true
	if m.current == sc {
		m.current = nil
	}
	m.ctx.Logger.Debug("swap chain destroyed", zap.Uint64("generation", sc.Generation))
	return nil
}

// Rebuild destroys the current swap chain and builds a new one at the
// surface's present size. The caller guarantees the device is idle.
func (m *SwapchainManager) Rebuild() (*Swapchain, error) {
	if err := m.Destroy(m.current); err != nil {
		return nil, err
	}
	return m.Build(m.ctx.Surface.CurrentExtent())
}

// ChoosePresentMode prefers mailbox, then immediate when lowLatency is set,
// and falls back to FIFO, which every surface supports. vsync forces FIFO.
func ChoosePresentMode(available []PresentMode, vsync, lowLatency bool) PresentMode {
	if vsync {
		return PresentModeFifo
	}
	if hasPresentMode(available, PresentModeMailbox) {
		return PresentModeMailbox
	}
	if lowLatency && hasPresentMode(available, PresentModeImmediate) {
		return PresentModeImmediate
	}
	return PresentModeFifo
}

func hasPresentMode(available []PresentMode, mode PresentMode) bool {
	for _, m := range available {
		if m == mode {
			return true
		}
	}
	return false
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB in the sRGB nonlinear color
// space and otherwise returns the first reported format. A lone undefined
// format means the surface accepts anything. formats must not be empty.
func ChooseSurfaceFormat(formats []SurfaceFormat) SurfaceFormat {
	preferred := SurfaceFormat{Format: FormatB8G8R8A8Srgb, ColorSpace: ColorSpaceSrgbNonlinear}
	if len(formats) == 1 && formats[0].Format == FormatUndefined {
		return preferred
	}
	for _, f := range formats {
		if f == preferred {
			return f
		}
	}
	return formats[0]
}

// ChooseExtent returns the surface's current extent when it is defined and
// otherwise clamps desired to the supported range.
func ChooseExtent(caps SurfaceCapabilities, desired Extent) Extent {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return Extent{
		Width:  clamp(desired.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(desired.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// ChooseImageCount asks for one more than the surface minimum, or requested
// when larger, capped at the surface maximum. A zero maximum is unbounded.
func ChooseImageCount(caps SurfaceCapabilities, requested uint32) uint32 {
	count := caps.MinImageCount + 1
	if requested > count {
		count = requested
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}
