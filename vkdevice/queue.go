package vkdevice

import (
	"github.com/andewx/vkframe"
	vk "github.com/vulkan-go/vulkan"
)

// Queue ids handed to the core. Present aliases graphics when one family
// does both.
const (
	graphicsQueueID vkframe.Queue = 1
	presentQueueID  vkframe.Queue = 2
)

// queueFamilies is the graphics and present family choice for one GPU.
type queueFamilies struct {
	graphics    uint32
	present     uint32
	hasGraphics bool
	hasPresent  bool
}

// findQueueFamilies prefers a single family that does both graphics and
// present and falls back to two separate ones.
func findQueueFamilies(gpu vk.PhysicalDevice, surface vk.Surface) queueFamilies {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, properties)

	var q queueFamilies
	for i := uint32(0); i < count; i++ {
		properties[i].Deref()
		graphics := properties[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0

		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, i, surface, &supported)
		present := supported.B()

		if graphics && present {
			return queueFamilies{graphics: i, present: i, hasGraphics: true, hasPresent: true}
		}
		if graphics && !q.hasGraphics {
			q.graphics, q.hasGraphics = i, true
		}
		if present && !q.hasPresent {
			q.present, q.hasPresent = i, true
		}
	}
	return q
}

func (q queueFamilies) complete() bool {
	return q.hasGraphics && q.hasPresent
}

func (q queueFamilies) separate() bool {
	return q.graphics != q.present
}

// createInfos asks for one queue from each distinct family.
func (q queueFamilies) createInfos() []vk.DeviceQueueCreateInfo {
	infos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: q.graphics,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	if q.separate() {
		infos = append(infos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: q.present,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	return infos
}

// indices is the sharing list for swapchain images when the families differ.
func (q queueFamilies) indices() []uint32 {
	if !q.separate() {
		return nil
	}
	return []uint32{q.graphics, q.present}
}

func (d *Device) GraphicsQueue() vkframe.Queue {
	return graphicsQueueID
}

func (d *Device) PresentQueue() vkframe.Queue {
	if d.families.separate() {
		return presentQueueID
	}
	return graphicsQueueID
}

func (d *Device) queue(id vkframe.Queue) (vk.Queue, bool) {
	switch id {
	case graphicsQueueID:
		return d.graphics, true
	case presentQueueID:
		return d.present, true
	}
	return nil, false
}
