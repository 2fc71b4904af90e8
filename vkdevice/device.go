package vkdevice

import (
	"unsafe"

	"github.com/andewx/vkframe"
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Device is the vulkan-go implementation of vkframe.Device. It owns the
// instance, the surface of one Display, the logical device, the command
// pool and the single render pass every framebuffer is built against.
// Core objects are exposed as ids into per-kind tables.
type Device struct {
	opts   Options
	logger *zap.Logger

	instance vk.Instance
	debug    vk.DebugReportCallback
	surface  vk.Surface
	gpu      vk.PhysicalDevice
	gpuName  string
	memory   vk.PhysicalDeviceMemoryProperties
	device   vk.Device
	families queueFamilies
	graphics vk.Queue
	present  vk.Queue
	pool     vk.CommandPool

	transform   vk.SurfaceTransformFlagBits
	colorFormat vk.Format
	depthFormat vk.Format
	renderPass  vk.RenderPass

	fences       table[vk.Fence]
	semaphores   table[vk.Semaphore]
	commands     table[vk.CommandBuffer]
	swapchains   table[*swapchain]
	images       table[vk.Image]
	views        table[vk.ImageView]
	depths       table[*depthAttachment]
	framebuffers table[vk.Framebuffer]

	// recording errors by command buffer id, reported at EndCommandBuffer
	broken map[uint64]error
}

var _ vkframe.Device = (*Device)(nil)

// Open creates everything from the instance up to the render pass for the
// surface of display. Anything created before a failure is destroyed again.
func Open(display *Display, opts Options) (_ *Device, err error) {
	d := &Device{opts: opts, logger: opts.logger()}
	defer func() {
		if err != nil {
			err = multierr.Append(err, d.Close())
		}
	}()

	if err = d.createInstance(display.RequiredExtensions()); err != nil {
		return nil, err
	}
	if d.surface, err = display.createSurface(d.instance); err != nil {
		return nil, err
	}
	if err = d.pickGPU(); err != nil {
		return nil, err
	}
	if err = d.createDevice(); err != nil {
		return nil, err
	}
	if err = d.createCommandPool(); err != nil {
		return nil, err
	}
	if err = d.createRenderPass(); err != nil {
		return nil, err
	}
	d.logger.Info("vulkan device ready",
		zap.String("gpu", d.gpuName),
		zap.Uint32("graphics_family", d.families.graphics),
		zap.Uint32("present_family", d.families.present),
		zap.Int32("color_format", int32(d.colorFormat)),
		zap.Bool("depth", d.opts.Depth),
	)
	return d, nil
}

func (d *Device) createInstance(windowExtensions []string) error {
	available, err := InstanceExtensions()
	if err != nil {
		return err
	}
	extensions, err := requireAll(available, d.opts.instanceExtensions(windowExtensions), "instance extensions")
	if err != nil {
		return err
	}

	var layers []string
	if wanted := d.opts.layers(); len(wanted) > 0 {
		availableLayers, err := ValidationLayers()
		if err != nil {
			return err
		}
		var missing []string
		layers, missing = checkExisting(availableLayers, wanted)
		if len(missing) > 0 {
			d.logger.Warn("validation layers unavailable", zap.Strings("missing", missing))
		}
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(d.opts.APIVersion),
			ApplicationVersion: uint32(d.opts.AppVersion),
			PApplicationName:   safeString(d.opts.AppName),
			PEngineName:        safeString("vkframe"),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &instance)
	if err := result(ret, "create instance"); err != nil {
		return err
	}
	d.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return pkgerrors.Wrap(err, "init instance")
	}
	d.logger.Debug("vulkan instance created",
		zap.Int("extensions", len(extensions)),
		zap.Int("layers", len(layers)),
	)

	if d.opts.Debug {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: d.debugReport,
		}, nil, &d.debug)
		if err := result(ret, "create debug report callback"); err != nil {
			return err
		}
	}
	return nil
}

// pickGPU takes the first device that can draw to the surface, preferring
// a discrete GPU.
func (d *Device) pickGPU() error {
	var count uint32
	if err := result(vk.EnumeratePhysicalDevices(d.instance, &count, nil), "count physical devices"); err != nil {
		return err
	}
	if count == 0 {
		return pkgerrors.New("no GPU devices found")
	}
	gpus := make([]vk.PhysicalDevice, count)
	if err := result(vk.EnumeratePhysicalDevices(d.instance, &count, gpus), "list physical devices"); err != nil {
		return err
	}

	var found bool
	for _, gpu := range gpus {
		families := findQueueFamilies(gpu, d.surface)
		if !families.complete() {
			continue
		}
		available, err := DeviceExtensions(gpu)
		if err != nil {
			return err
		}
		if _, missing := checkExisting(available, d.opts.DeviceExtensions); len(missing) > 0 {
			continue
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		discrete := props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu
		if found && !discrete {
			continue
		}
		d.gpu = gpu
		d.gpuName = vk.ToString(props.DeviceName[:])
		d.families = families
		found = true
		if discrete {
			break
		}
	}
	if !found {
		return pkgerrors.New("no GPU supports graphics and present for this surface")
	}

	vk.GetPhysicalDeviceMemoryProperties(d.gpu, &d.memory)
	d.memory.Deref()
	return nil
}

func (d *Device) createDevice() error {
	infos := d.families.createInfos()
	extensions := safeStrings(d.opts.DeviceExtensions)
	var device vk.Device
	ret := vk.CreateDevice(d.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(infos)),
		PQueueCreateInfos:       infos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}, nil, &device)
	if err := result(ret, "create device"); err != nil {
		return err
	}
	d.device = device

	vk.GetDeviceQueue(d.device, d.families.graphics, 0, &d.graphics)
	d.present = d.graphics
	if d.families.separate() {
		vk.GetDeviceQueue(d.device, d.families.present, 0, &d.present)
	}
	return nil
}

func (d *Device) WaitIdle() error {
	return result(vk.DeviceWaitIdle(d.device), "device wait idle")
}

// Close waits for the device and destroys everything Open created, plus
// whatever core objects are still live. It is safe on a partly opened
// device and on repeated calls.
func (d *Device) Close() error {
	var err error
	if d.device != nil {
		err = multierr.Append(err, d.WaitIdle())
		if leaked := d.live(); leaked > 0 {
			d.logger.Warn("destroying leaked core objects", zap.Int("count", leaked))
		}
		d.destroyLive()
		if d.renderPass != vk.NullRenderPass {
			vk.DestroyRenderPass(d.device, d.renderPass, nil)
			d.renderPass = vk.NullRenderPass
		}
		if d.pool != vk.NullCommandPool {
			vk.DestroyCommandPool(d.device, d.pool, nil)
			d.pool = vk.NullCommandPool
		}
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
	return err
}

func (d *Device) live() int {
	return d.fences.len() + d.semaphores.len() + d.commands.len() +
		d.swapchains.len() + d.views.len() + d.depths.len() + d.framebuffers.len()
}

// destroyLive releases core objects in dependency order.
func (d *Device) destroyLive() {
	for id := range d.framebuffers.items {
		d.DestroyFramebuffer(vkframe.Framebuffer(id))
	}
	for id := range d.views.items {
		d.DestroyImageView(vkframe.ImageView(id))
	}
	for id := range d.depths.items {
		d.DestroyDepthAttachment(vkframe.Attachment(id))
	}
	for id := range d.swapchains.items {
		d.DestroySwapchain(vkframe.SwapchainID(id))
	}
	buffers := make([]vkframe.CommandBuffer, 0, d.commands.len())
	for id := range d.commands.items {
		buffers = append(buffers, vkframe.CommandBuffer(id))
	}
	d.FreeCommandBuffers(buffers)
	for id := range d.semaphores.items {
		d.DestroySemaphore(vkframe.Semaphore(id))
	}
	for id := range d.fences.items {
		d.DestroyFence(vkframe.Fence(id))
	}
}

func (d *Device) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	fields := []zap.Field{
		zap.String("layer", pLayerPrefix),
		zap.Int32("code", messageCode),
	}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		d.logger.Error(pMessage, fields...)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		d.logger.Warn(pMessage, fields...)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		d.logger.Warn(pMessage, append(fields, zap.Bool("performance", true))...)
	default:
		d.logger.Debug(pMessage, fields...)
	}
	return vk.Bool32(vk.False)
}
