package vkdevice

import (
	"time"

	"github.com/andewx/vkframe"
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

func (d *Device) CreateFence(signaled bool) (vkframe.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := result(vk.CreateFence(d.device, &info, nil, &fence), "create fence"); err != nil {
		return 0, err
	}
	return vkframe.Fence(d.fences.put(fence)), nil
}

func (d *Device) DestroyFence(f vkframe.Fence) {
	if fence, ok := d.fences.take(uint64(f)); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

// WaitFence waits without bound for a non-positive timeout. A timeout
// expiring reports vk.Timeout, which maps to ErrDeviceLost.
func (d *Device) WaitFence(f vkframe.Fence, timeout time.Duration) error {
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return pkgerrors.Errorf("wait fence: unknown fence %d", f)
	}
	var ns uint64 = vk.MaxUint64
	if timeout > 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	return result(vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, ns), "wait fence")
}

func (d *Device) ResetFence(f vkframe.Fence) error {
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return pkgerrors.Errorf("reset fence: unknown fence %d", f)
	}
	return result(vk.ResetFences(d.device, 1, []vk.Fence{fence}), "reset fence")
}

func (d *Device) CreateSemaphore() (vkframe.Semaphore, error) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if err := result(ret, "create semaphore"); err != nil {
		return 0, err
	}
	return vkframe.Semaphore(d.semaphores.put(sem)), nil
}

func (d *Device) DestroySemaphore(s vkframe.Semaphore) {
	if sem, ok := d.semaphores.take(uint64(s)); ok {
		vk.DestroySemaphore(d.device, sem, nil)
	}
}

// semaphoreList resolves s into a one-element list, or nil for the null
// handle.
func (d *Device) semaphoreList(s vkframe.Semaphore) ([]vk.Semaphore, error) {
	if s == 0 {
		return nil, nil
	}
	sem, ok := d.semaphores.get(uint64(s))
	if !ok {
		return nil, pkgerrors.Errorf("unknown semaphore %d", s)
	}
	return []vk.Semaphore{sem}, nil
}

// Submit queues one command buffer, or an empty batch when the buffer is
// null, waiting on info.Wait at color output and signaling info.Signal and
// info.Fence.
func (d *Device) Submit(q vkframe.Queue, info vkframe.SubmitInfo) error {
	queue, ok := d.queue(q)
	if !ok {
		return pkgerrors.Errorf("submit: unknown queue %d", q)
	}
	wait, err := d.semaphoreList(info.Wait)
	if err != nil {
		return pkgerrors.Wrap(err, "submit wait")
	}
	signal, err := d.semaphoreList(info.Signal)
	if err != nil {
		return pkgerrors.Wrap(err, "submit signal")
	}
	fence := vk.NullFence
	if info.Fence != 0 {
		if fence, ok = d.fences.get(uint64(info.Fence)); !ok {
			return pkgerrors.Errorf("submit: unknown fence %d", info.Fence)
		}
	}

	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	if len(wait) > 0 {
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
	}
	if info.CommandBuffer != 0 {
		cmd, ok := d.commands.get(uint64(info.CommandBuffer))
		if !ok {
			return pkgerrors.Errorf("submit: unknown command buffer %d", info.CommandBuffer)
		}
		submit.CommandBufferCount = 1
		submit.PCommandBuffers = []vk.CommandBuffer{cmd}
	}
	return result(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submit}, fence), "queue submit")
}
