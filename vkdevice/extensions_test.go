package vkdevice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestCheckExisting(t *testing.T) {
	actual := []string{"VK_KHR_surface", "VK_KHR_xcb_surface\x00", "VK_EXT_debug_report"}

	existing, missing := checkExisting(actual, []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface", "VK_KHR_wayland_surface"})
	assert.Equal(t, []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface\x00"}, existing)
	assert.Equal(t, []string{"VK_KHR_wayland_surface"}, missing)

	existing, missing = checkExisting(actual, nil)
	assert.Empty(t, existing)
	assert.Empty(t, missing)
}

func TestRequireAll(t *testing.T) {
	got, err := requireAll([]string{"a", "b"}, []string{"b"}, "extensions")
	require.NoError(t, err)
	assert.Equal(t, []string{"b\x00"}, got)

	_, err = requireAll([]string{"a"}, []string{"a", "c"}, "extensions")
	assert.ErrorContains(t, err, "c")
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))

	in := []string{"a", "b\x00"}
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings(in))
	assert.Equal(t, "a", in[0], "input is not modified")
}

func TestOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.Depth)
	assert.Equal(t, []string{vk.KhrSwapchainExtensionName}, opts.DeviceExtensions)
	assert.Empty(t, opts.layers())
	assert.Equal(t, []string{"VK_KHR_surface"}, opts.instanceExtensions([]string{"VK_KHR_surface"}))
	assert.NotNil(t, opts.logger())

	opts.Debug = true
	opts.Layers = []string{"VK_LAYER_custom"}
	assert.Equal(t, []string{"VK_LAYER_custom", validationLayer}, opts.layers())
	assert.Contains(t, opts.instanceExtensions(nil), vk.ExtDebugReportExtensionName)
}
