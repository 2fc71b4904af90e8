package vkframe

import (
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SlotState tracks a frame slot through one use.
type SlotState int

const (
	SlotIdle SlotState = iota
	SlotRecording
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	}
	return "unknown"
}

// FrameSlot holds the synchronization objects and command buffer reused by
// every F-th frame.
type FrameSlot struct {
	ImageAcquired  Semaphore
	RenderComplete Semaphore
	Fence          Fence
	CommandBuffer  CommandBuffer
	State          SlotState
}

// Frame is handed out by BeginFrame and must be returned to EndFrame or
// AbortFrame before the next BeginFrame.
type Frame struct {
	Slot          int
	Image         uint32
	CommandBuffer CommandBuffer

	swapchain SwapchainID
}

// FrameSynchronizer paces the CPU against the GPU with F frame slots and
// tracks which slot last rendered into each swap chain image.
type FrameSynchronizer struct {
	ctx   *Context
	swap  *SwapchainManager
	slots []FrameSlot

	active int
	// imagesInFlight is indexed by image index and holds the fence of the
	// slot that last submitted work for that image.
	imagesInFlight []Fence
	// suboptimal is set by an acquire that reported a stale swap chain and
	// reported back by the matching present.
	suboptimal bool
	destroyed  bool
}

// NewFrameSynchronizer allocates framesInFlight command buffers, twice as
// many semaphores and as many fences, created signaled so the first wait on
// each slot returns at once.
func NewFrameSynchronizer(ctx *Context, swap *SwapchainManager, framesInFlight int) (fs *FrameSynchronizer, err error) {
	if framesInFlight < 1 || framesInFlight > MaxFramesInFlight {
		return nil, pkgerrors.Wrapf(ErrInvalidConfig, "frames in flight %d", framesInFlight)
	}
	dev := ctx.Device

	var rel releaser
	defer func() {
		if err != nil {
			err = multierr.Append(err, rel.Unwind())
		}
	}()

	cmds, err := dev.AllocateCommandBuffers(framesInFlight)
	if err != nil {
		return nil, pkgerrors.Wrap(Mark(err, ErrDeviceRejected), "allocate command buffers")
	}
	rel.Defer(func() { dev.FreeCommandBuffers(cmds) })
	if len(cmds) != framesInFlight {
		return nil, pkgerrors.Wrapf(ErrDeviceRejected, "allocated %d command buffers, want %d", len(cmds), framesInFlight)
	}

	slots := make([]FrameSlot, framesInFlight)
	for i := range slots {
		acquired, err := dev.CreateSemaphore()
		if err != nil {
			return nil, pkgerrors.Wrapf(Mark(err, ErrDeviceRejected), "slot %d image acquired semaphore", i)
		}
		rel.Defer(func() { dev.DestroySemaphore(acquired) })

		complete, err := dev.CreateSemaphore()
		if err != nil {
			return nil, pkgerrors.Wrapf(Mark(err, ErrDeviceRejected), "slot %d render complete semaphore", i)
		}
		rel.Defer(func() { dev.DestroySemaphore(complete) })

		fence, err := dev.CreateFence(true)
		if err != nil {
			return nil, pkgerrors.Wrapf(Mark(err, ErrDeviceRejected), "slot %d fence", i)
		}
		rel.Defer(func() { dev.DestroyFence(fence) })

		slots[i] = FrameSlot{
			ImageAcquired:  acquired,
			RenderComplete: complete,
			Fence:          fence,
			CommandBuffer:  cmds[i],
		}
	}
	rel.Commit()

	fs = &FrameSynchronizer{
		ctx:   ctx,
		swap:  swap,
		slots: slots,
	}
	fs.ResetImages(swap.Current().Len())
	return fs, nil
}

// FramesInFlight is F.
func (fs *FrameSynchronizer) FramesInFlight() int {
	return len(fs.slots)
}

// Active is the index of the slot the next BeginFrame uses.
func (fs *FrameSynchronizer) Active() int {
	return fs.active
}

// Slot returns a copy of slot i.
func (fs *FrameSynchronizer) Slot(i int) FrameSlot {
	return fs.slots[i]
}

// InFlight counts slots whose work is submitted and not yet observed
// complete.
func (fs *FrameSynchronizer) InFlight() int {
	n := 0
	for i := range fs.slots {
		if fs.slots[i].State == SlotSubmitted {
			n++
		}
	}
	return n
}

// ResetImages sizes the image-in-flight table for a swap chain of n images
// and forgets every previous owner. Only valid while the device is idle.
func (fs *FrameSynchronizer) ResetImages(n int) {
	fs.imagesInFlight = make([]Fence, n)
	fs.suboptimal = false
	for i := range fs.slots {
		if fs.slots[i].State == SlotSubmitted {
			fs.slots[i].State = SlotIdle
		}
	}
	fs.ctx.Metrics.setInFlight(fs.InFlight())
}

// BeginFrame waits for the active slot to retire, acquires the next
// swap chain image and hands out the slot's command buffer for recording.
//
// An out-of-date swap chain returns ErrOutOfDate and leaves the slot fence
// signaled. The caller rebuilds and tries again on the next tick.
func (fs *FrameSynchronizer) BeginFrame() (Frame, error) {
	if fs.destroyed {
		return Frame{}, pkgerrors.WithStack(ErrShutdown)
	}
	sc := fs.swap.Current()
	if sc == nil {
		return Frame{}, pkgerrors.Wrap(ErrOutOfDate, "no swap chain")
	}
	slot := &fs.slots[fs.active]
	if slot.State == SlotRecording {
		return Frame{}, pkgerrors.Wrapf(ErrFrameNotActive, "slot %d already recording", fs.active)
	}
	dev := fs.ctx.Device

	if err := fs.waitFence(slot.Fence); err != nil {
		return Frame{}, pkgerrors.Wrapf(err, "slot %d fence", fs.active)
	}
	slot.State = SlotIdle

	image, status, err := dev.AcquireNextImage(sc.ID, slot.ImageAcquired)
	if err != nil {
		return Frame{}, pkgerrors.Wrap(Mark(err, ErrDeviceLost), "acquire next image")
	}
	switch status {
	case StatusOutOfDate:
		return Frame{}, pkgerrors.WithStack(ErrOutOfDate)
	case StatusSuboptimal:
		fs.suboptimal = true
	}
	if int(image) >= len(fs.imagesInFlight) {
		return Frame{}, pkgerrors.Wrapf(ErrDeviceLost, "acquired image %d of %d", image, len(fs.imagesInFlight))
	}

	if owner := fs.imagesInFlight[image]; owner != 0 && owner != slot.Fence {
		if err := fs.waitFence(owner); err != nil {
			return Frame{}, pkgerrors.Wrapf(err, "image %d previous owner", image)
		}
		for i := range fs.slots {
			if fs.slots[i].Fence == owner && fs.slots[i].State == SlotSubmitted {
				fs.slots[i].State = SlotIdle
			}
		}
	}
	fs.imagesInFlight[image] = slot.Fence

	if err := dev.ResetFence(slot.Fence); err != nil {
		return Frame{}, pkgerrors.Wrap(Mark(err, ErrDeviceLost), "reset fence")
	}
	slot.State = SlotRecording
	fs.ctx.Metrics.setInFlight(fs.InFlight())

	return Frame{
		Slot:          fs.active,
		Image:         image,
		CommandBuffer: slot.CommandBuffer,
		swapchain:     sc.ID,
	}, nil
}

// EndFrame submits the recorded command buffer and presents the image. The
// active slot advances whatever the outcome. ErrOutOfDate and ErrSuboptimal
// mean the frame was presented and the swap chain wants a rebuild.
func (fs *FrameSynchronizer) EndFrame(frame Frame) error {
	return fs.finish(frame, frame.CommandBuffer)
}

// AbortFrame retires a frame whose recording failed. An empty batch
// consumes the image acquired semaphore and signals the render complete
// semaphore and fence, and the image is presented unchanged, so no
// synchronization object is left pending.
func (fs *FrameSynchronizer) AbortFrame(frame Frame) error {
	return fs.finish(frame, 0)
}

func (fs *FrameSynchronizer) finish(frame Frame, cmd CommandBuffer) error {
	if fs.destroyed {
		return pkgerrors.WithStack(ErrShutdown)
	}
	slot := &fs.slots[fs.active]
	if frame.Slot != fs.active || slot.State != SlotRecording {
		return pkgerrors.Wrapf(ErrFrameNotActive, "frame slot %d, active slot %d is %s", frame.Slot, fs.active, slot.State)
	}
	defer func() {
		fs.active = (fs.active + 1) % len(fs.slots)
	}()
	dev := fs.ctx.Device

	err := dev.Submit(dev.GraphicsQueue(), SubmitInfo{
		CommandBuffer: cmd,
		Wait:          slot.ImageAcquired,
		Signal:        slot.RenderComplete,
		Fence:         slot.Fence,
	})
	if err != nil {
		slot.State = SlotIdle
		return pkgerrors.Wrapf(Mark(err, ErrSubmitFailed), "slot %d", frame.Slot)
	}
	slot.State = SlotSubmitted
	fs.ctx.Metrics.setInFlight(fs.InFlight())

	status, err := dev.Present(dev.PresentQueue(), frame.swapchain, frame.Image, slot.RenderComplete)
	if err != nil {
		return pkgerrors.Wrapf(Mark(err, ErrPresentFailed), "image %d", frame.Image)
	}
	suboptimal := fs.suboptimal
	fs.suboptimal = false
	switch {
	case status == StatusOutOfDate:
		return pkgerrors.WithStack(ErrOutOfDate)
	case status == StatusSuboptimal || suboptimal:
		return pkgerrors.WithStack(ErrSuboptimal)
	}
	return nil
}

func (fs *FrameSynchronizer) waitFence(f Fence) error {
	start := time.Now()
	err := fs.ctx.Device.WaitFence(f, fs.ctx.Config.FenceTimeout)
	fs.ctx.Metrics.observeFenceWait(time.Since(start))
	return Mark(err, ErrDeviceLost)
}

// Destroy releases every semaphore, fence and command buffer. The caller
// guarantees the device is idle. Calling Destroy again is a no-op.
func (fs *FrameSynchronizer) Destroy() error {
	if fs.destroyed {
		return nil
	}
	fs.destroyed = true
	dev := fs.ctx.Device
	cmds := make([]CommandBuffer, 0, len(fs.slots))
	for i := range fs.slots {
		dev.DestroySemaphore(fs.slots[i].ImageAcquired)
		dev.DestroySemaphore(fs.slots[i].RenderComplete)
		dev.DestroyFence(fs.slots[i].Fence)
		cmds = append(cmds, fs.slots[i].CommandBuffer)
		fs.slots[i].State = SlotIdle
	}
	dev.FreeCommandBuffers(cmds)
	fs.imagesInFlight = nil
	fs.ctx.Metrics.setInFlight(0)
	fs.ctx.Logger.Debug("frame synchronizer destroyed", zap.Int("slots", len(fs.slots)))
	return nil
}
