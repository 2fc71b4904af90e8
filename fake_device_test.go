package vkframe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	arg  uint64
}

type acquireStep struct {
	image  uint32
	status PresentStatus
	err    error
}

// fakeDevice records every call in order and simulates a GPU that finishes
// submitted work the moment the CPU waits for it.
type fakeDevice struct {
	next  uint64
	calls []call

	support    SurfaceSupport
	imageCount int // overrides the requested swap chain depth when > 0
	images     int // image count of the live swap chain

	signaled    map[Fence]bool
	pending     map[Fence]bool
	maxInFlight int
	waits       []Fence
	violations  []string

	acquire   []acquireStep
	nextImage uint32
	present   []PresentStatus

	live    map[uint64]string
	counts  map[string]int
	failAt  map[string]int
	failErr error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		support: SurfaceSupport{
			Capabilities: SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  4,
				CurrentExtent:  Extent{Width: 800, Height: 600},
				MinImageExtent: Extent{Width: 1, Height: 1},
				MaxImageExtent: Extent{Width: 4096, Height: 4096},
			},
			Formats: []SurfaceFormat{
				{Format: FormatB8G8R8A8Unorm, ColorSpace: ColorSpaceSrgbNonlinear},
				{Format: FormatB8G8R8A8Srgb, ColorSpace: ColorSpaceSrgbNonlinear},
			},
			PresentModes: []PresentMode{PresentModeFifo, PresentModeMailbox},
		},
		signaled: make(map[Fence]bool),
		pending:  make(map[Fence]bool),
		live:     make(map[uint64]string),
		counts:   make(map[string]int),
		failAt:   make(map[string]int),
		failErr:  fmt.Errorf("injected failure"),
	}
}

// fail makes the nth call (1-based) of method return an error.
func (d *fakeDevice) fail(method string, nth int) {
	d.failAt[method] = nth
}

func (d *fakeDevice) record(name string, arg uint64) error {
	d.calls = append(d.calls, call{name: name, arg: arg})
	d.counts[name]++
	if nth, ok := d.failAt[name]; ok && nth == d.counts[name] {
		return d.failErr
	}
	return nil
}

func (d *fakeDevice) create(kind string) uint64 {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *fakeDevice) release(kind string, h uint64) {
	if got, ok := d.live[h]; !ok || got != kind {
		d.violations = append(d.violations, fmt.Sprintf("destroy unknown %s %d", kind, h))
		return
	}
	delete(d.live, h)
}

func (d *fakeDevice) liveCount() int {
	return len(d.live)
}

func (d *fakeDevice) count(name string) int {
	n := 0
	for _, c := range d.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

// index is the position of the first call named name at or after from, or -1.
func (d *fakeDevice) index(name string, from int) int {
	for i := from; i < len(d.calls); i++ {
		if d.calls[i].name == name {
			return i
		}
	}
	return -1
}

func (d *fakeDevice) callsNamed(name string) []call {
	var out []call
	for _, c := range d.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (d *fakeDevice) names(from int) []string {
	var out []string
	for _, c := range d.calls[from:] {
		out = append(out, c.name)
	}
	return out
}

func (d *fakeDevice) inFlight() int {
	return len(d.pending)
}

func (d *fakeDevice) GraphicsQueue() Queue { return 1 }
func (d *fakeDevice) PresentQueue() Queue  { return 2 }

func (d *fakeDevice) CreateFence(signaled bool) (Fence, error) {
	if err := d.record("CreateFence", 0); err != nil {
		return 0, err
	}
	f := Fence(d.create("fence"))
	d.signaled[f] = signaled
	return f, nil
}

func (d *fakeDevice) DestroyFence(f Fence) {
	d.record("DestroyFence", uint64(f))
	if d.pending[f] {
		d.violations = append(d.violations, fmt.Sprintf("destroy pending fence %d", f))
	}
	d.release("fence", uint64(f))
}

func (d *fakeDevice) WaitFence(f Fence, timeout time.Duration) error {
	d.waits = append(d.waits, f)
	if err := d.record("WaitFence", uint64(f)); err != nil {
		return err
	}
	d.signaled[f] = true
	delete(d.pending, f)
	return nil
}

func (d *fakeDevice) ResetFence(f Fence) error {
	if err := d.record("ResetFence", uint64(f)); err != nil {
		return err
	}
	if !d.signaled[f] {
		d.violations = append(d.violations, fmt.Sprintf("reset unsignaled fence %d", f))
	}
	d.signaled[f] = false
	return nil
}

func (d *fakeDevice) CreateSemaphore() (Semaphore, error) {
	if err := d.record("CreateSemaphore", 0); err != nil {
		return 0, err
	}
	return Semaphore(d.create("semaphore")), nil
}

func (d *fakeDevice) DestroySemaphore(s Semaphore) {
	d.record("DestroySemaphore", uint64(s))
	d.release("semaphore", uint64(s))
}

func (d *fakeDevice) AllocateCommandBuffers(count int) ([]CommandBuffer, error) {
	if err := d.record("AllocateCommandBuffers", uint64(count)); err != nil {
		return nil, err
	}
	out := make([]CommandBuffer, count)
	for i := range out {
		out[i] = CommandBuffer(d.create("command buffer"))
	}
	return out, nil
}

func (d *fakeDevice) FreeCommandBuffers(buffers []CommandBuffer) {
	d.record("FreeCommandBuffers", uint64(len(buffers)))
	for _, b := range buffers {
		d.release("command buffer", uint64(b))
	}
}

func (d *fakeDevice) QuerySurface() (SurfaceSupport, error) {
	if err := d.record("QuerySurface", 0); err != nil {
		return SurfaceSupport{}, err
	}
	return d.support, nil
}

func (d *fakeDevice) CreateSwapchain(info SwapchainCreateInfo) (SwapchainID, []Image, error) {
	if err := d.record("CreateSwapchain", uint64(info.MinImageCount)); err != nil {
		return 0, nil, err
	}
	n := int(info.MinImageCount)
	if d.imageCount > 0 {
		n = d.imageCount
	}
	id := SwapchainID(d.create("swapchain"))
	images := make([]Image, n)
	for i := range images {
		d.next++
		images[i] = Image(d.next)
	}
	d.images = n
	d.nextImage = 0
	return id, images, nil
}

func (d *fakeDevice) DestroySwapchain(sc SwapchainID) {
	d.record("DestroySwapchain", uint64(sc))
	d.release("swapchain", uint64(sc))
}

func (d *fakeDevice) CreateImageView(img Image, format Format) (ImageView, error) {
	if err := d.record("CreateImageView", uint64(img)); err != nil {
		return 0, err
	}
	return ImageView(d.create("image view")), nil
}

func (d *fakeDevice) DestroyImageView(v ImageView) {
	d.record("DestroyImageView", uint64(v))
	d.release("image view", uint64(v))
}

func (d *fakeDevice) CreateDepthAttachment(extent Extent) (Attachment, error) {
	if err := d.record("CreateDepthAttachment", 0); err != nil {
		return 0, err
	}
	return Attachment(d.create("depth")), nil
}

func (d *fakeDevice) DestroyDepthAttachment(a Attachment) {
	d.record("DestroyDepthAttachment", uint64(a))
	d.release("depth", uint64(a))
}

func (d *fakeDevice) CreateFramebuffer(view ImageView, depth Attachment, extent Extent) (Framebuffer, error) {
	if err := d.record("CreateFramebuffer", uint64(view)); err != nil {
		return 0, err
	}
	return Framebuffer(d.create("framebuffer")), nil
}

func (d *fakeDevice) DestroyFramebuffer(fb Framebuffer) {
	d.record("DestroyFramebuffer", uint64(fb))
	d.release("framebuffer", uint64(fb))
}

func (d *fakeDevice) AcquireNextImage(sc SwapchainID, signal Semaphore) (uint32, PresentStatus, error) {
	if err := d.record("AcquireNextImage", uint64(signal)); err != nil {
		return 0, StatusOK, err
	}
	if len(d.acquire) > 0 {
		step := d.acquire[0]
		d.acquire = d.acquire[1:]
		return step.image, step.status, step.err
	}
	img := d.nextImage % uint32(d.images)
	d.nextImage++
	return img, StatusOK, nil
}

func (d *fakeDevice) Submit(q Queue, info SubmitInfo) error {
	if err := d.record("Submit", uint64(info.CommandBuffer)); err != nil {
		return err
	}
	if info.Fence != 0 {
		if d.signaled[info.Fence] {
			d.violations = append(d.violations, fmt.Sprintf("submit with signaled fence %d", info.Fence))
		}
		d.pending[info.Fence] = true
		if len(d.pending) > d.maxInFlight {
			d.maxInFlight = len(d.pending)
		}
	}
	return nil
}

func (d *fakeDevice) Present(q Queue, sc SwapchainID, image uint32, wait Semaphore) (PresentStatus, error) {
	if err := d.record("Present", uint64(image)); err != nil {
		return StatusOK, err
	}
	if len(d.present) > 0 {
		status := d.present[0]
		d.present = d.present[1:]
		return status, nil
	}
	return StatusOK, nil
}

func (d *fakeDevice) WaitIdle() error {
	if err := d.record("WaitIdle", 0); err != nil {
		return err
	}
	for f := range d.pending {
		d.signaled[f] = true
	}
	d.pending = make(map[Fence]bool)
	return nil
}

func (d *fakeDevice) BeginCommandBuffer(cmd CommandBuffer) error {
	return d.record("BeginCommandBuffer", uint64(cmd))
}

func (d *fakeDevice) BeginRenderPass(cmd CommandBuffer, fb Framebuffer, extent Extent, clear ClearValue) {
	d.record("BeginRenderPass", uint64(fb))
}

func (d *fakeDevice) SetViewport(cmd CommandBuffer, extent Extent) {
	d.record("SetViewport", uint64(extent.Width))
}

func (d *fakeDevice) BindPipeline(cmd CommandBuffer, p Pipeline) {
	d.record("BindPipeline", uint64(cmd))
}

func (d *fakeDevice) BindMesh(cmd CommandBuffer, m Mesh) {
	d.record("BindMesh", uint64(cmd))
}

func (d *fakeDevice) Draw(cmd CommandBuffer, vertexCount uint32) {
	d.record("Draw", uint64(vertexCount))
}

func (d *fakeDevice) DrawIndexed(cmd CommandBuffer, indexCount uint32) {
	d.record("DrawIndexed", uint64(indexCount))
}

func (d *fakeDevice) EndRenderPass(cmd CommandBuffer) {
	d.record("EndRenderPass", uint64(cmd))
}

func (d *fakeDevice) EndCommandBuffer(cmd CommandBuffer) error {
	return d.record("EndCommandBuffer", uint64(cmd))
}

type fakeSurface struct {
	extent     Extent
	closeAfter int // closes once PollEvents ran more often than this; <0 never
	polls      int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{extent: Extent{Width: 800, Height: 600}, closeAfter: -1}
}

func (s *fakeSurface) CurrentExtent() Extent { return s.extent }

func (s *fakeSurface) IsClosed() bool {
	return s.closeAfter >= 0 && s.polls > s.closeAfter
}

func (s *fakeSurface) PollEvents() { s.polls++ }

type fakePipeline struct{ valid bool }

func (p fakePipeline) Valid() bool { return p.valid }

type fakeMesh struct {
	valid    bool
	vertices uint32
	indices  uint32
}

func (m fakeMesh) Valid() bool         { return m.valid }
func (m fakeMesh) VertexCount() uint32 { return m.vertices }
func (m fakeMesh) IndexCount() uint32  { return m.indices }

var (
	triangle = fakeMesh{valid: true, vertices: 3}
	pipeline = fakePipeline{valid: true}
)

func testConfig(framesInFlight int) Config {
	cfg := DefaultConfig()
	cfg.FramesInFlight = framesInFlight
	return cfg
}

func newTestContext(t *testing.T, dev *fakeDevice, surface *fakeSurface, cfg Config) *Context {
	t.Helper()
	ctx, err := NewContext(dev, surface, cfg)
	require.NoError(t, err)
	return ctx
}
