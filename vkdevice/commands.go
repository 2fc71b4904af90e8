package vkdevice

import (
	"github.com/andewx/vkframe"
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// createCommandPool makes the graphics family pool. Buffers can be reset
// individually, which BeginCommandBuffer relies on.
func (d *Device) createCommandPool() error {
	ret := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.families.graphics,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &d.pool)
	return result(ret, "create command pool")
}

func (d *Device) AllocateCommandBuffers(count int) ([]vkframe.CommandBuffer, error) {
	if count <= 0 {
		return nil, nil
	}
	buffers := make([]vk.CommandBuffer, count)
	ret := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}, buffers)
	if err := result(ret, "allocate command buffers"); err != nil {
		return nil, err
	}
	ids := make([]vkframe.CommandBuffer, count)
	for i, cmd := range buffers {
		ids[i] = vkframe.CommandBuffer(d.commands.put(cmd))
	}
	return ids, nil
}

func (d *Device) FreeCommandBuffers(ids []vkframe.CommandBuffer) {
	buffers := make([]vk.CommandBuffer, 0, len(ids))
	for _, id := range ids {
		delete(d.broken, uint64(id))
		if cmd, ok := d.commands.take(uint64(id)); ok {
			buffers = append(buffers, cmd)
		}
	}
	if len(buffers) > 0 {
		vk.FreeCommandBuffers(d.device, d.pool, uint32(len(buffers)), buffers)
	}
}

func (d *Device) BeginCommandBuffer(id vkframe.CommandBuffer) error {
	cmd, ok := d.commands.get(uint64(id))
	if !ok {
		return pkgerrors.Errorf("begin: unknown command buffer %d", id)
	}
	delete(d.broken, uint64(id))
	if err := result(vk.ResetCommandBuffer(cmd, 0), "reset command buffer"); err != nil {
		return err
	}
	return result(vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}), "begin command buffer")
}

func (d *Device) BeginRenderPass(id vkframe.CommandBuffer, fb vkframe.Framebuffer, extent vkframe.Extent, clear vkframe.ClearValue) {
	cmd, ok := d.commands.get(uint64(id))
	if !ok {
		d.fail(id, pkgerrors.Errorf("begin render pass: unknown command buffer %d", id))
		return
	}
	framebuffer, ok := d.framebuffers.get(uint64(fb))
	if !ok {
		d.fail(id, pkgerrors.Errorf("begin render pass: unknown framebuffer %d", fb))
		return
	}
	clearValues := []vk.ClearValue{vk.NewClearValue(clear.Color[:])}
	if d.opts.Depth {
		clearValues = append(clearValues, vk.NewClearDepthStencil(clear.Depth, 0))
	}
	vk.CmdBeginRenderPass(cmd, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      d.renderPass,
		Framebuffer:     framebuffer,
		RenderArea:      vk.Rect2D{Extent: toExtent2D(extent)},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
}

// SetViewport covers the whole extent with both viewport and scissor.
// Pipelines declare them as dynamic state.
func (d *Device) SetViewport(id vkframe.CommandBuffer, extent vkframe.Extent) {
	cmd, ok := d.commands.get(uint64(id))
	if !ok {
		return
	}
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{Extent: toExtent2D(extent)}})
}

func (d *Device) BindPipeline(id vkframe.CommandBuffer, p vkframe.Pipeline) {
	cmd, ok := d.commands.get(uint64(id))
	pipeline, isVk := p.(*Pipeline)
	if !ok || !isVk || !pipeline.Valid() {
		return
	}
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, pipeline.pipeline)
}

func (d *Device) BindMesh(id vkframe.CommandBuffer, m vkframe.Mesh) {
	cmd, ok := d.commands.get(uint64(id))
	mesh, isVk := m.(*Mesh)
	if !ok || !isVk || !mesh.Valid() {
		return
	}
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{mesh.vertex.buffer}, []vk.DeviceSize{0})
	if mesh.index != nil {
		vk.CmdBindIndexBuffer(cmd, mesh.index.buffer, 0, vk.IndexTypeUint16)
	}
}

func (d *Device) Draw(id vkframe.CommandBuffer, vertexCount uint32) {
	if cmd, ok := d.commands.get(uint64(id)); ok {
		vk.CmdDraw(cmd, vertexCount, 1, 0, 0)
	}
}

func (d *Device) DrawIndexed(id vkframe.CommandBuffer, indexCount uint32) {
	if cmd, ok := d.commands.get(uint64(id)); ok {
		vk.CmdDrawIndexed(cmd, indexCount, 1, 0, 0, 0)
	}
}

// EndRenderPass is skipped when the matching begin failed.
func (d *Device) EndRenderPass(id vkframe.CommandBuffer) {
	if _, failed := d.broken[uint64(id)]; failed {
		return
	}
	if cmd, ok := d.commands.get(uint64(id)); ok {
		vk.CmdEndRenderPass(cmd)
	}
}

func (d *Device) EndCommandBuffer(id vkframe.CommandBuffer) error {
	if err, failed := d.broken[uint64(id)]; failed {
		delete(d.broken, uint64(id))
		return err
	}
	cmd, ok := d.commands.get(uint64(id))
	if !ok {
		return pkgerrors.Errorf("end: unknown command buffer %d", id)
	}
	return result(vk.EndCommandBuffer(cmd), "end command buffer")
}

// fail keeps the first recording error of a command buffer.
func (d *Device) fail(id vkframe.CommandBuffer, err error) {
	if d.broken == nil {
		d.broken = make(map[uint64]error)
	}
	if _, ok := d.broken[uint64(id)]; !ok {
		d.broken[uint64(id)] = err
	}
}
