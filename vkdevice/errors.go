package vkdevice

import (
	"github.com/andewx/vkframe"
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// result turns a failed vk.Result into an error carrying the operation name.
// Results the frame loop has to react to are tagged with the matching
// vkframe sentinel.
func result(ret vk.Result, op string) error {
	if ret == vk.Success {
		return nil
	}
	cause := vk.Error(ret)
	if cause == nil {
		cause = pkgerrors.Errorf("vulkan result %d", ret)
	}
	err := pkgerrors.Wrap(cause, op)
	switch ret {
	case vk.ErrorDeviceLost, vk.Timeout:
		return vkframe.Mark(err, vkframe.ErrDeviceLost)
	case vk.ErrorOutOfDate:
		return vkframe.Mark(err, vkframe.ErrOutOfDate)
	case vk.ErrorSurfaceLost:
		return vkframe.Mark(err, vkframe.ErrSurfaceIncompatible)
	}
	return err
}

// presentResult splits acquire and present results into the status the
// frame synchronizer acts on and a hard error.
func presentResult(ret vk.Result, op string) (vkframe.PresentStatus, error) {
	switch ret {
	case vk.Success:
		return vkframe.StatusOK, nil
	case vk.Suboptimal:
		return vkframe.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return vkframe.StatusOutOfDate, nil
	}
	return vkframe.StatusOK, result(ret, op)
}
