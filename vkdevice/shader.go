package vkdevice

import (
	"os"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Shaders holds SPIR-V for the two graphics stages.
type Shaders struct {
	Vertex   []byte
	Fragment []byte
}

// LoadShaders reads compiled SPIR-V from disk.
func LoadShaders(vertexPath, fragmentPath string) (Shaders, error) {
	vert, err := os.ReadFile(vertexPath)
	if err != nil {
		return Shaders{}, pkgerrors.Wrap(err, "read vertex shader")
	}
	frag, err := os.ReadFile(fragmentPath)
	if err != nil {
		return Shaders{}, pkgerrors.Wrap(err, "read fragment shader")
	}
	return Shaders{Vertex: vert, Fragment: frag}, nil
}

func (d *Device) loadShaderModule(code []byte) (vk.ShaderModule, error) {
	words, err := sliceUint32(code)
	if err != nil {
		return vk.NullShaderModule, err
	}
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}, nil, &module)
	if err := result(ret, "create shader module"); err != nil {
		return vk.NullShaderModule, err
	}
	return module, nil
}

// sliceUint32 reinterprets SPIR-V bytes as the word slice Vulkan expects.
func sliceUint32(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, pkgerrors.Errorf("spir-v size %d is not a positive multiple of 4", len(data))
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4), nil
}
