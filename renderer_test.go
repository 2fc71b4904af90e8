package vkframe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T, dev *fakeDevice, surface *fakeSurface, cfg Config) *Renderer {
	t.Helper()
	r, err := Initialize(newTestContext(t, dev, surface, cfg))
	require.NoError(t, err)
	return r
}

func TestRenderer_TickRenders(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))

	for i := 0; i < 6; i++ {
		result, err := r.Tick(pipeline, triangle)
		require.NoError(t, err)
		assert.Equal(t, FrameRendered, result)
	}
	assert.Equal(t, 6, dev.count("Draw"))
	assert.Equal(t, 6, dev.count("Present"))
	assert.Zero(t, dev.count("WaitIdle"))
	assert.Empty(t, dev.violations)
}

func TestRenderer_ZeroVertexMeshDrawsNothing(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))

	result, err := r.Tick(pipeline, fakeMesh{valid: true})
	require.NoError(t, err)
	assert.Equal(t, FrameRendered, result)
	assert.Zero(t, dev.count("Draw"))
	assert.Zero(t, dev.count("DrawIndexed"))
	assert.Equal(t, 1, dev.count("BeginRenderPass"))
	assert.Equal(t, 1, dev.count("Present"))
}

// An out-of-date acquire skips the frame. The next tick idles the device and
// rebuilds the swap chain before acquiring again.
func TestRenderer_OutOfDateAcquireRebuildsNextTick(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))
	dev.acquire = []acquireStep{{status: StatusOutOfDate}}

	result, err := r.Tick(pipeline, triangle)
	require.NoError(t, err)
	assert.Equal(t, FrameSkipped, result)
	assert.True(t, r.RebuildPending())
	assert.Zero(t, dev.count("Submit"))

	from := len(dev.calls)
	dev.support.Capabilities.CurrentExtent = Extent{Width: 1024, Height: 768}
	result, err = r.Tick(pipeline, triangle)
	require.NoError(t, err)
	assert.Equal(t, FrameRendered, result)
	assert.False(t, r.RebuildPending())

	idle := dev.index("WaitIdle", from)
	destroy := dev.index("DestroySwapchain", from)
	create := dev.index("CreateSwapchain", from)
	acquire := dev.index("AcquireNextImage", from)
	require.NotEqual(t, -1, idle)
	assert.Less(t, idle, destroy)
	assert.Less(t, destroy, create)
	assert.Less(t, create, acquire)
	assert.Equal(t, uint64(2), r.Swapchain().Generation)
	assert.Equal(t, Extent{Width: 1024, Height: 768}, r.Swapchain().Extent)
	assert.Empty(t, dev.violations)
}

func TestRenderer_RebuildThenTick(t *testing.T) {
	for _, images := range []int{2, 3, 5} {
		dev := newFakeDevice()
		r := newTestRenderer(t, dev, newFakeSurface(), testConfig(3))
		_, err := r.Tick(pipeline, triangle)
		require.NoError(t, err)

		dev.imageCount = images
		r.RequestRebuild()
		for i := 0; i < 2*images; i++ {
			result, err := r.Tick(pipeline, triangle)
			require.NoError(t, err)
			assert.Equal(t, FrameRendered, result)
		}
		assert.Equal(t, images, r.Swapchain().Len())
		for _, present := range dev.callsNamed("Present") {
			assert.Less(t, present.arg, uint64(max(images, 3)))
		}
		assert.Len(t, r.Frames().imagesInFlight, images)
		assert.Empty(t, dev.violations)
	}
}

func TestRenderer_PresentOutOfDateStillRenders(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))
	dev.present = []PresentStatus{StatusOutOfDate}

	result, err := r.Tick(pipeline, triangle)
	require.NoError(t, err)
	assert.Equal(t, FrameRendered, result)
	assert.True(t, r.RebuildPending())

	_, err = r.Tick(pipeline, triangle)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.count("CreateSwapchain"))
}

func TestRenderer_MinimizedDefersRebuild(t *testing.T) {
	dev := newFakeDevice()
	surface := newFakeSurface()
	r := newTestRenderer(t, dev, surface, testConfig(2))

	surface.extent = Extent{}
	r.RequestRebuild()
	for i := 0; i < 3; i++ {
		result, err := r.Tick(pipeline, triangle)
		require.NoError(t, err)
		assert.Equal(t, FrameSkipped, result)
	}
	assert.Zero(t, dev.count("WaitIdle"))
	assert.Zero(t, dev.count("AcquireNextImage"))
	assert.True(t, r.RebuildPending())

	surface.extent = Extent{Width: 640, Height: 480}
	result, err := r.Tick(pipeline, triangle)
	require.NoError(t, err)
	assert.Equal(t, FrameRendered, result)
	assert.Equal(t, 1, dev.count("WaitIdle"))
}

func TestRenderer_RecordingFailureSkipsFrame(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))
	dev.fail("EndCommandBuffer", 1)

	result, err := r.Tick(pipeline, triangle)
	require.NoError(t, err)
	assert.Equal(t, FrameSkipped, result)

	submits := dev.callsNamed("Submit")
	require.Len(t, submits, 1)
	assert.Zero(t, submits[0].arg, "aborted frame submits an empty batch")

	for i := 0; i < 4; i++ {
		result, err = r.Tick(pipeline, triangle)
		require.NoError(t, err)
		assert.Equal(t, FrameRendered, result)
	}
	assert.Empty(t, dev.violations)
}

func TestRenderer_FatalErrors(t *testing.T) {
	tests := []struct {
		method string
		want   error
	}{
		{"Submit", ErrSubmitFailed},
		{"Present", ErrPresentFailed},
		{"WaitFence", ErrDeviceLost},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			dev := newFakeDevice()
			r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))
			dev.fail(tt.method, 1)

			result, err := r.Tick(pipeline, triangle)
			assert.Equal(t, FrameFatal, result)
			assert.True(t, errors.Is(err, tt.want), "%+v", err)
			assert.True(t, IsFatal(err))
			require.NoError(t, r.Shutdown())
		})
	}
}

// Shutdown idles the device exactly once and before any object is
// destroyed.
func TestRenderer_Shutdown(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(3))
	for i := 0; i < 4; i++ {
		_, err := r.Tick(pipeline, triangle)
		require.NoError(t, err)
	}

	from := len(dev.calls)
	require.NoError(t, r.Shutdown())

	shutdown := dev.names(from)
	require.NotEmpty(t, shutdown)
	assert.Equal(t, "WaitIdle", shutdown[0])
	assert.Equal(t, 1, dev.count("WaitIdle"))
	for _, name := range shutdown[1:] {
		assert.True(t, strings.HasPrefix(name, "Destroy") || name == "FreeCommandBuffers", name)
	}
	assert.Less(t, dev.index("DestroyFence", from), dev.index("DestroyFramebuffer", from), "frame objects go before the swap chain")
	assert.Zero(t, dev.liveCount())
	assert.Empty(t, dev.violations)

	from = len(dev.calls)
	require.NoError(t, r.Shutdown())
	assert.Len(t, dev.calls, from, "second shutdown is a no-op")

	result, err := r.Tick(pipeline, triangle)
	assert.Equal(t, FrameFatal, result)
	assert.True(t, errors.Is(err, ErrShutdown))
}

func TestRenderer_ShutdownAfterDeviceLoss(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))
	dev.fail("WaitIdle", 1)

	err := r.Shutdown()
	assert.True(t, errors.Is(err, ErrDeviceLost))
	assert.Zero(t, dev.liveCount(), "objects are released even when idling fails")
}

func TestInitialize_FailureReleasesEverything(t *testing.T) {
	steps := []struct {
		method string
		nth    int
	}{
		{"CreateFramebuffer", 2},
		{"AllocateCommandBuffers", 1},
		{"CreateFence", 2},
	}
	for _, step := range steps {
		t.Run(step.method, func(t *testing.T) {
			dev := newFakeDevice()
			dev.fail(step.method, step.nth)
			r, err := Initialize(newTestContext(t, dev, newFakeSurface(), testConfig(2)))
			assert.Nil(t, r)
			assert.True(t, errors.Is(err, ErrDeviceRejected), "%+v", err)
			assert.Zero(t, dev.liveCount())
			assert.Empty(t, dev.violations)
		})
	}
}

func TestRenderer_Run(t *testing.T) {
	dev := newFakeDevice()
	surface := newFakeSurface()
	surface.closeAfter = 3
	r := newTestRenderer(t, dev, surface, testConfig(2))

	require.NoError(t, r.Run(context.Background(), pipeline, triangle))
	assert.Equal(t, 4, surface.polls)
	assert.Equal(t, 3, dev.count("Present"))
	require.NoError(t, r.Shutdown())
}

func TestRenderer_RunStopsOnCancel(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, pipeline, triangle)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, dev.count("AcquireNextImage"))
}

func TestRenderer_RunStopsOnFatal(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRenderer(t, dev, newFakeSurface(), testConfig(2))
	dev.fail("Submit", 2)

	err := r.Run(context.Background(), pipeline, triangle)
	assert.True(t, errors.Is(err, ErrSubmitFailed))
	assert.Equal(t, 1, dev.count("Present"))
}

func TestRenderer_Metrics(t *testing.T) {
	dev := newFakeDevice()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	ctx, err := NewContext(dev, newFakeSurface(), testConfig(2), WithMetrics(metrics))
	require.NoError(t, err)
	r, err := Initialize(ctx)
	require.NoError(t, err)

	dev.acquire = []acquireStep{{status: StatusOutOfDate}}
	for i := 0; i < 4; i++ {
		_, err := r.Tick(pipeline, triangle)
		require.NoError(t, err)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Frames.WithLabelValues("rendered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Frames.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Rebuilds))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.InFlight))

	families, err := reg.Gather()
	require.NoError(t, err)
	var waits uint64
	for _, mf := range families {
		if mf.GetName() == "vkframe_fence_wait_seconds" {
			waits = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(4), waits)
	require.NoError(t, r.Shutdown())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
}
