package vkdevice

import (
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

// Options select what Open asks of the platform.
type Options struct {
	AppName    string
	AppVersion vk.Version
	APIVersion vk.Version

	// Debug enables the validation layer and routes its reports to Logger.
	Debug bool
	// Depth adds a depth attachment to the render pass. It must agree with
	// the core's DepthAttachment setting.
	Depth bool

	InstanceExtensions []string
	DeviceExtensions   []string
	Layers             []string

	Logger *zap.Logger
}

var (
	DefaultAppVersion = vk.MakeVersion(1, 0, 0)
	DefaultAPIVersion = vk.MakeVersion(1, 0, 0)
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// DefaultOptions enables depth and the swapchain device extension.
func DefaultOptions() Options {
	return Options{
		AppName:          "vkframe",
		AppVersion:       DefaultAppVersion,
		APIVersion:       DefaultAPIVersion,
		Depth:            true,
		DeviceExtensions: []string{vk.KhrSwapchainExtensionName},
	}
}

func (o Options) layers() []string {
	layers := append([]string(nil), o.Layers...)
	if o.Debug {
		layers = append(layers, validationLayer)
	}
	return layers
}

func (o Options) instanceExtensions(window []string) []string {
	exts := append(append([]string(nil), window...), o.InstanceExtensions...)
	if o.Debug {
		exts = append(exts, vk.ExtDebugReportExtensionName)
	}
	return exts
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
