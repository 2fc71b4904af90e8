package vkdevice

import (
	"github.com/andewx/vkframe"
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type swapchain struct {
	handle vk.Swapchain
	images []uint64
}

func toExtent(e vk.Extent2D) vkframe.Extent {
	e.Deref()
	return vkframe.Extent{Width: e.Width, Height: e.Height}
}

func toExtent2D(e vkframe.Extent) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

// QuerySurface reads capabilities, formats and present modes of the
// surface. The current transform is kept for the next CreateSwapchain.
func (d *Device) QuerySurface() (vkframe.SurfaceSupport, error) {
	var support vkframe.SurfaceSupport

	var caps vk.SurfaceCapabilities
	if err := result(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps), "surface capabilities"); err != nil {
		return support, err
	}
	caps.Deref()
	d.transform = caps.CurrentTransform
	support.Capabilities = vkframe.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  toExtent(caps.CurrentExtent),
		MinImageExtent: toExtent(caps.MinImageExtent),
		MaxImageExtent: toExtent(caps.MaxImageExtent),
	}

	var count uint32
	if err := result(vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, nil), "count surface formats"); err != nil {
		return support, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := result(vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, formats), "list surface formats"); err != nil {
		return support, err
	}
	for _, f := range formats[:count] {
		f.Deref()
		support.Formats = append(support.Formats, vkframe.SurfaceFormat{
			Format:     vkframe.Format(f.Format),
			ColorSpace: vkframe.ColorSpace(f.ColorSpace),
		})
	}

	count = 0
	if err := result(vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, nil), "count present modes"); err != nil {
		return support, err
	}
	modes := make([]vk.PresentMode, count)
	if err := result(vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, modes), "list present modes"); err != nil {
		return support, err
	}
	for _, m := range modes[:count] {
		support.PresentModes = append(support.PresentModes, vkframe.PresentMode(m))
	}
	return support, nil
}

// CreateSwapchain builds the swapchain and registers its images. The format
// must be the one the render pass was built for.
func (d *Device) CreateSwapchain(info vkframe.SwapchainCreateInfo) (vkframe.SwapchainID, []vkframe.Image, error) {
	if vk.Format(info.Format.Format) != d.colorFormat {
		return 0, nil, pkgerrors.Errorf("swapchain format %d does not match render pass format %d",
			info.Format.Format, d.colorFormat)
	}

	create := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      vk.Format(info.Format.Format),
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      toExtent2D(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     d.transform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if indices := d.families.indices(); indices != nil {
		create.ImageSharingMode = vk.SharingModeConcurrent
		create.QueueFamilyIndexCount = uint32(len(indices))
		create.PQueueFamilyIndices = indices
	}

	var handle vk.Swapchain
	if err := result(vk.CreateSwapchain(d.device, &create, nil, &handle), "create swapchain"); err != nil {
		return 0, nil, err
	}

	var count uint32
	ret := vk.GetSwapchainImages(d.device, handle, &count, nil)
	images := make([]vk.Image, count)
	if ret == vk.Success {
		ret = vk.GetSwapchainImages(d.device, handle, &count, images)
	}
	if err := result(ret, "get swapchain images"); err != nil {
		vk.DestroySwapchain(d.device, handle, nil)
		return 0, nil, err
	}

	sc := &swapchain{handle: handle}
	ids := make([]vkframe.Image, count)
	for i, img := range images[:count] {
		id := d.images.put(img)
		sc.images = append(sc.images, id)
		ids[i] = vkframe.Image(id)
	}
	return vkframe.SwapchainID(d.swapchains.put(sc)), ids, nil
}

// DestroySwapchain destroys the swapchain. Its images go with it.
func (d *Device) DestroySwapchain(id vkframe.SwapchainID) {
	sc, ok := d.swapchains.take(uint64(id))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.take(img)
	}
	vk.DestroySwapchain(d.device, sc.handle, nil)
}

func (d *Device) CreateImageView(img vkframe.Image, format vkframe.Format) (vkframe.ImageView, error) {
	image, ok := d.images.get(uint64(img))
	if !ok {
		return 0, pkgerrors.Errorf("create image view: unknown image %d", img)
	}
	view, err := d.createView(image, vk.Format(format), vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return 0, err
	}
	return vkframe.ImageView(d.views.put(view)), nil
}

func (d *Device) DestroyImageView(id vkframe.ImageView) {
	if view, ok := d.views.take(uint64(id)); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

func (d *Device) createView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if err := result(ret, "create image view"); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

// CreateFramebuffer binds a color view and, when the render pass has one,
// the depth attachment.
func (d *Device) CreateFramebuffer(view vkframe.ImageView, depth vkframe.Attachment, extent vkframe.Extent) (vkframe.Framebuffer, error) {
	color, ok := d.views.get(uint64(view))
	if !ok {
		return 0, pkgerrors.Errorf("create framebuffer: unknown view %d", view)
	}
	attachments := []vk.ImageView{color}
	switch {
	case d.opts.Depth && depth == 0:
		return 0, pkgerrors.New("create framebuffer: render pass needs a depth attachment")
	case !d.opts.Depth && depth != 0:
		return 0, pkgerrors.New("create framebuffer: render pass has no depth attachment")
	case depth != 0:
		att, ok := d.depths.get(uint64(depth))
		if !ok {
			return 0, pkgerrors.Errorf("create framebuffer: unknown depth attachment %d", depth)
		}
		attachments = append(attachments, att.view)
	}

	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}, nil, &fb)
	if err := result(ret, "create framebuffer"); err != nil {
		return 0, err
	}
	return vkframe.Framebuffer(d.framebuffers.put(fb)), nil
}

func (d *Device) DestroyFramebuffer(id vkframe.Framebuffer) {
	if fb, ok := d.framebuffers.take(uint64(id)); ok {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
}

func (d *Device) AcquireNextImage(id vkframe.SwapchainID, signal vkframe.Semaphore) (uint32, vkframe.PresentStatus, error) {
	sc, ok := d.swapchains.get(uint64(id))
	if !ok {
		return 0, vkframe.StatusOK, pkgerrors.Errorf("acquire: unknown swapchain %d", id)
	}
	sem, ok := d.semaphores.get(uint64(signal))
	if !ok {
		return 0, vkframe.StatusOK, pkgerrors.Errorf("acquire: unknown semaphore %d", signal)
	}
	var index uint32
	ret := vk.AcquireNextImage(d.device, sc.handle, vk.MaxUint64, sem, vk.NullFence, &index)
	status, err := presentResult(ret, "acquire next image")
	return index, status, err
}

func (d *Device) Present(q vkframe.Queue, id vkframe.SwapchainID, image uint32, wait vkframe.Semaphore) (vkframe.PresentStatus, error) {
	queue, ok := d.queue(q)
	if !ok {
		return vkframe.StatusOK, pkgerrors.Errorf("present: unknown queue %d", q)
	}
	sc, ok := d.swapchains.get(uint64(id))
	if !ok {
		return vkframe.StatusOK, pkgerrors.Errorf("present: unknown swapchain %d", id)
	}
	waits, err := d.semaphoreList(wait)
	if err != nil {
		return vkframe.StatusOK, pkgerrors.Wrap(err, "present wait")
	}
	ret := vk.QueuePresent(queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{image},
	})
	return presentResult(ret, "queue present")
}
