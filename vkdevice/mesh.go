package vkdevice

import (
	"unsafe"

	"github.com/andewx/vkframe"
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// buffer is a host visible buffer with its backing memory.
type buffer struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
}

// createBuffer allocates a host visible, coherent buffer and copies data in.
func (d *Device) createBuffer(data []byte, usage vk.BufferUsageFlagBits) (_ *buffer, err error) {
	if len(data) == 0 {
		return nil, pkgerrors.New("create buffer: no data")
	}
	b := &buffer{}
	defer func() {
		if err != nil {
			b.destroy(d.device)
		}
	}()

	ret := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vk.BufferUsageFlags(usage),
		Size:        vk.DeviceSize(len(data)),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &b.buffer)
	if err := result(ret, "create buffer"); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, b.buffer, &reqs)
	reqs.Deref()
	memType, ok := d.findMemoryType(reqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if !ok {
		return nil, pkgerrors.New("create buffer: no host visible memory type")
	}
	ret = vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &b.memory)
	if err := result(ret, "allocate buffer memory"); err != nil {
		return nil, err
	}
	if err := result(vk.BindBufferMemory(d.device, b.buffer, b.memory, 0), "bind buffer memory"); err != nil {
		return nil, err
	}

	var mapped unsafe.Pointer
	if err := result(vk.MapMemory(d.device, b.memory, 0, vk.DeviceSize(len(data)), 0, &mapped), "map buffer memory"); err != nil {
		return nil, err
	}
	n := vk.Memcopy(mapped, data)
	vk.UnmapMemory(d.device, b.memory)
	if n != len(data) {
		return nil, pkgerrors.Errorf("create buffer: copied %d of %d bytes", n, len(data))
	}
	return b, nil
}

func (b *buffer) destroy(device vk.Device) {
	if b == nil {
		return
	}
	if b.buffer != vk.NullBuffer {
		vk.DestroyBuffer(device, b.buffer, nil)
		b.buffer = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.memory, nil)
		b.memory = vk.NullDeviceMemory
	}
}

// Mesh is a vertex buffer with an optional 16-bit index buffer.
type Mesh struct {
	device   vk.Device
	vertex   *buffer
	index    *buffer
	vertices uint32
	indices  uint32
}

var _ vkframe.Mesh = (*Mesh)(nil)

// NewMesh uploads count vertices of interleaved data and, when indices is
// not empty, an index buffer. The vertex layout is the pipeline's business.
func NewMesh(d *Device, vertices []byte, count uint32, indices []uint16) (*Mesh, error) {
	m := &Mesh{device: d.device, vertices: count}
	var err error
	if m.vertex, err = d.createBuffer(vertices, vk.BufferUsageVertexBufferBit); err != nil {
		return nil, pkgerrors.Wrap(err, "vertex buffer")
	}
	if len(indices) > 0 {
		if m.index, err = d.createBuffer(Uint16Bytes(indices), vk.BufferUsageIndexBufferBit); err != nil {
			m.Destroy()
			return nil, pkgerrors.Wrap(err, "index buffer")
		}
		m.indices = uint32(len(indices))
	}
	return m, nil
}

func (m *Mesh) Valid() bool {
	return m != nil && m.vertex != nil
}

func (m *Mesh) VertexCount() uint32 {
	return m.vertices
}

func (m *Mesh) IndexCount() uint32 {
	return m.indices
}

// Destroy frees both buffers. The device must be idle.
func (m *Mesh) Destroy() {
	if m == nil {
		return
	}
	m.vertex.destroy(m.device)
	m.index.destroy(m.device)
	m.vertex, m.index = nil, nil
}

// Float32Bytes views vertex data as bytes without copying.
func Float32Bytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

// Uint16Bytes views index data as bytes without copying.
func Uint16Bytes(v []uint16) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*2)
}
