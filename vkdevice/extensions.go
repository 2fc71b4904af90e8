package vkdevice

import (
	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// InstanceExtensions gets a list of instance extensions available on the platform.
func InstanceExtensions() ([]string, error) {
	var count uint32
	if err := result(vk.EnumerateInstanceExtensionProperties("", &count, nil), "count instance extensions"); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	if err := result(vk.EnumerateInstanceExtensionProperties("", &count, list), "list instance extensions"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// DeviceExtensions gets a list of extensions available on the provided physical device.
func DeviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if err := result(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil), "count device extensions"); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	if err := result(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list), "list device extensions"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// ValidationLayers gets a list of validation layers available on the platform.
func ValidationLayers() ([]string, error) {
	var count uint32
	if err := result(vk.EnumerateInstanceLayerProperties(&count, nil), "count layers"); err != nil {
		return nil, err
	}
	list := make([]vk.LayerProperties, count)
	if err := result(vk.EnumerateInstanceLayerProperties(&count, list), "list layers"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// checkExisting splits wanted into the names actual provides and the ones
// it is missing. Names may carry a trailing NUL.
func checkExisting(actual, wanted []string) (existing, missing []string) {
	have := make(map[string]struct{}, len(actual))
	for _, name := range actual {
		have[trimNul(name)] = struct{}{}
	}
	for _, name := range wanted {
		if _, ok := have[trimNul(name)]; ok {
			existing = append(existing, safeString(name))
		} else {
			missing = append(missing, trimNul(name))
		}
	}
	return existing, missing
}

// requireAll is checkExisting for names the device cannot work without.
func requireAll(actual, wanted []string, what string) ([]string, error) {
	existing, missing := checkExisting(actual, wanted)
	if len(missing) > 0 {
		return nil, pkgerrors.Errorf("missing %s: %v", what, missing)
	}
	return existing, nil
}

const nul = "\x00"

func trimNul(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s[:len(s)-1]
	}
	return s
}

func safeString(s string) string {
	return trimNul(s) + nul
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}
