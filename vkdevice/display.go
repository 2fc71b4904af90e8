package vkdevice

import (
	"github.com/andewx/vkframe"
	"github.com/go-gl/glfw/v3.3/glfw"
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Display is a GLFW window acting as the presentation surface. It must be
// created and driven from the main OS thread.
type Display struct {
	window *glfw.Window
	resize func(width, height int)
}

var (
	_ vkframe.Surface     = (*Display)(nil)
	_ vkframe.EventPoller = (*Display)(nil)
)

// OpenDisplay initializes GLFW and the Vulkan loader and opens a resizable
// window without a client API.
func OpenDisplay(cfg vkframe.WindowConfig) (*Display, error) {
	if err := glfw.Init(); err != nil {
		return nil, pkgerrors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, pkgerrors.New("glfw: vulkan loader not found")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.True)

	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, pkgerrors.Wrap(err, "create window")
	}

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, pkgerrors.Wrap(err, "vulkan init")
	}

	d := &Display{window: window}
	window.SetFramebufferSizeCallback(d.onFramebufferSize)
	return d, nil
}

// OnResize registers fn to run on every framebuffer size change. Frame
// loops use it to request a swapchain rebuild.
func (d *Display) OnResize(fn func(width, height int)) {
	d.resize = fn
}

func (d *Display) onFramebufferSize(_ *glfw.Window, width, height int) {
	if d.resize != nil {
		d.resize(width, height)
	}
}

// CurrentExtent is the framebuffer size in pixels. It is zero while the
// window is minimized.
func (d *Display) CurrentExtent() vkframe.Extent {
	w, h := d.window.GetFramebufferSize()
	if w < 0 || h < 0 {
		return vkframe.Extent{}
	}
	return vkframe.Extent{Width: uint32(w), Height: uint32(h)}
}

func (d *Display) IsClosed() bool {
	return d.window.ShouldClose()
}

func (d *Display) PollEvents() {
	glfw.PollEvents()
}

// RequiredExtensions lists the instance extensions GLFW needs to create a
// surface for this window.
func (d *Display) RequiredExtensions() []string {
	return d.window.GetRequiredInstanceExtensions()
}

func (d *Display) createSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := d.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, pkgerrors.Wrap(err, "create window surface")
	}
	return vk.SurfaceFromPointer(ptr), nil
}

// Close destroys the window and terminates GLFW.
func (d *Display) Close() {
	if d.window != nil {
		d.window.Destroy()
		d.window = nil
	}
	glfw.Terminate()
}
