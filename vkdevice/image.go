package vkdevice

import (
	"github.com/andewx/vkframe"
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// depthAttachment is a device local depth image with its memory and view.
type depthAttachment struct {
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
}

var depthCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

// findDepthFormat returns the first candidate usable as an optimally tiled
// depth attachment.
func (d *Device) findDepthFormat() (vk.Format, error) {
	for _, format := range depthCandidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.gpu, format, &props)
		props.Deref()
		want := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
		if props.OptimalTilingFeatures&want == want {
			return format, nil
		}
	}
	return vk.FormatUndefined, pkgerrors.New("no supported depth format")
}

// findMemoryType picks a memory type allowed by typeBits that has all of
// the wanted property flags.
func (d *Device) findMemoryType(typeBits uint32, want vk.MemoryPropertyFlags) (uint32, bool) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		memType := d.memory.MemoryTypes[i]
		memType.Deref()
		if memType.PropertyFlags&want == want {
			return i, true
		}
	}
	return 0, false
}

func (d *Device) CreateDepthAttachment(extent vkframe.Extent) (id vkframe.Attachment, err error) {
	if d.depthFormat == vk.FormatUndefined {
		return 0, pkgerrors.New("create depth attachment: render pass has no depth")
	}
	att := &depthAttachment{}
	defer func() {
		if err != nil {
			d.destroyDepth(att)
		}
	}()

	ret := vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        d.depthFormat,
		Extent:        vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &att.image)
	if err := result(ret, "create depth image"); err != nil {
		return 0, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, att.image, &reqs)
	reqs.Deref()
	memType, ok := d.findMemoryType(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if !ok {
		return 0, pkgerrors.New("create depth attachment: no device local memory type")
	}
	ret = vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &att.memory)
	if err := result(ret, "allocate depth memory"); err != nil {
		return 0, err
	}
	if err := result(vk.BindImageMemory(d.device, att.image, att.memory, 0), "bind depth memory"); err != nil {
		return 0, err
	}

	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if hasStencil(d.depthFormat) {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if att.view, err = d.createView(att.image, d.depthFormat, aspect); err != nil {
		return 0, err
	}
	return vkframe.Attachment(d.depths.put(att)), nil
}

func (d *Device) DestroyDepthAttachment(id vkframe.Attachment) {
	if att, ok := d.depths.take(uint64(id)); ok {
		d.destroyDepth(att)
	}
}

func (d *Device) destroyDepth(att *depthAttachment) {
	if att.view != vk.NullImageView {
		vk.DestroyImageView(d.device, att.view, nil)
	}
	if att.image != vk.NullImage {
		vk.DestroyImage(d.device, att.image, nil)
	}
	if att.memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.device, att.memory, nil)
	}
}

func hasStencil(format vk.Format) bool {
	return format == vk.FormatD32SfloatS8Uint || format == vk.FormatD24UnormS8Uint
}
