package vkframe

import (
	"context"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FrameResult is the outcome of one Tick.
type FrameResult int

const (
	FrameRendered FrameResult = iota
	FrameSkipped
	FrameFatal
)

func (r FrameResult) String() string {
	switch r {
	case FrameRendered:
		return "rendered"
	case FrameSkipped:
		return "skipped"
	case FrameFatal:
		return "fatal"
	}
	return "unknown"
}

// Renderer drives the frame loop of one render context. It is not safe for
// concurrent use, except RequestRebuild.
type Renderer struct {
	ctx      *Context
	swap     *SwapchainManager
	frames   *FrameSynchronizer
	recorder *CommandRecorder

	rebuild  atomic.Bool
	shutdown bool
}

// Initialize builds the swap chain, the frame synchronizer and the command
// recorder. Anything built before a failure is released again.
func Initialize(ctx *Context) (r *Renderer, err error) {
	var rel releaser
	defer func() {
		if err != nil {
			err = multierr.Append(err, rel.Unwind())
		}
	}()

	swap := NewSwapchainManager(ctx)
	desired := ctx.Surface.CurrentExtent()
	if desired.Zero() {
		desired = ctx.Config.Desired()
	}
	sc, err := swap.Build(desired)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build swap chain")
	}
	rel.DeferErr(func() error { return swap.Destroy(sc) })

	frames, err := NewFrameSynchronizer(ctx, swap, ctx.Config.FramesInFlight)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create frame synchronizer")
	}
	rel.Commit()

	ctx.Logger.Info("renderer initialized",
		zap.Int("frames_in_flight", frames.FramesInFlight()),
		zap.Int("images", sc.Len()),
	)
	return &Renderer{
		ctx:      ctx,
		swap:     swap,
		frames:   frames,
		recorder: NewCommandRecorder(ctx.Device, ctx.Config.Clear()),
	}, nil
}

// Swapchain is the live swap chain, nil while a rebuild is outstanding.
func (r *Renderer) Swapchain() *Swapchain {
	return r.swap.Current()
}

func (r *Renderer) Frames() *FrameSynchronizer {
	return r.frames
}

// RequestRebuild asks the next Tick to rebuild the swap chain before
// rendering. Safe to call from any goroutine, e.g. a resize callback.
func (r *Renderer) RequestRebuild() {
	r.rebuild.Store(true)
}

// RebuildPending reports whether the next Tick rebuilds first.
func (r *Renderer) RebuildPending() bool {
	return r.rebuild.Load()
}

// Tick renders at most one frame. The error is non-nil exactly when the
// result is FrameFatal, after which the caller is expected to Shutdown.
func (r *Renderer) Tick(pipeline Pipeline, mesh Mesh) (FrameResult, error) {
	if r.shutdown {
		return FrameFatal, pkgerrors.WithStack(ErrShutdown)
	}

	if r.rebuild.Load() || r.swap.Current() == nil {
		if r.ctx.Surface.CurrentExtent().Zero() {
			return r.skipped("surface minimized", nil), nil
		}
		if err := r.rebuildSwapchain(); err != nil {
			if IsRecoverable(err) {
				return r.skipped("swap chain rebuild deferred", err), nil
			}
			return r.fatal(err)
		}
	}

	frame, err := r.frames.BeginFrame()
	if err != nil {
		if IsRecoverable(err) {
			r.rebuild.Store(true)
			return r.skipped("acquire needs rebuild", err), nil
		}
		return r.fatal(err)
	}

	target := r.swap.Current().Target(frame.Image)
	if err := r.recorder.Record(frame.CommandBuffer, frame.Image, target, pipeline, mesh); err != nil {
		if aerr := r.frames.AbortFrame(frame); aerr != nil {
			if !IsRecoverable(aerr) {
				return r.fatal(multierr.Append(err, aerr))
			}
			r.rebuild.Store(true)
		}
		return r.skipped("recording failed", err), nil
	}

	if err := r.frames.EndFrame(frame); err != nil {
		if !IsRecoverable(err) {
			return r.fatal(err)
		}
		r.rebuild.Store(true)
		r.ctx.Logger.Debug("present needs rebuild", zap.Error(err))
	}
	r.ctx.Metrics.observeFrame(FrameRendered)
	return FrameRendered, nil
}

func (r *Renderer) rebuildSwapchain() error {
	if err := r.ctx.Device.WaitIdle(); err != nil {
		return pkgerrors.Wrap(Mark(err, ErrDeviceLost), "wait idle before rebuild")
	}
	sc, err := r.swap.Rebuild()
	if err != nil {
		return pkgerrors.Wrap(err, "rebuild swap chain")
	}
	r.frames.ResetImages(sc.Len())
	r.rebuild.Store(false)
	r.ctx.Metrics.observeRebuild()
	r.ctx.Logger.Info("swap chain rebuilt", zap.Uint64("generation", sc.Generation))
	return nil
}

func (r *Renderer) skipped(reason string, err error) FrameResult {
	r.ctx.Logger.Warn("frame skipped", zap.String("reason", reason), zap.Error(err))
	r.ctx.Metrics.observeFrame(FrameSkipped)
	return FrameSkipped
}

func (r *Renderer) fatal(err error) (FrameResult, error) {
	r.ctx.Logger.Error("frame failed", zap.Error(err))
	r.ctx.Metrics.observeFrame(FrameFatal)
	return FrameFatal, err
}

// Run ticks until the surface closes, ctx is cancelled or a tick fails
// fatally. Surfaces that implement EventPoller are polled before each tick.
// Cancellation is only observed between ticks.
func (r *Renderer) Run(ctx context.Context, pipeline Pipeline, mesh Mesh) error {
	poller, _ := r.ctx.Surface.(EventPoller)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if poller != nil {
			poller.PollEvents()
		}
		if r.ctx.Surface.IsClosed() {
			return nil
		}
		if _, err := r.Tick(pipeline, mesh); err != nil {
			return err
		}
	}
}

// Shutdown waits for the device to go idle exactly once, then destroys the
// frame synchronizer and the swap chain. Calling it again is a no-op.
func (r *Renderer) Shutdown() error {
	if r.shutdown {
		return nil
	}
	r.shutdown = true

	err := Mark(r.ctx.Device.WaitIdle(), ErrDeviceLost)
	err = multierr.Append(err, r.frames.Destroy())
	err = multierr.Append(err, r.swap.Destroy(r.swap.Current()))
	r.ctx.Logger.Info("renderer shut down", zap.Error(err))
	return err
}
