package vkdevice

import (
	"github.com/andewx/vkframe"
	vk "github.com/vulkan-go/vulkan"
)

// VertexAttribute places one shader input inside a vertex.
type VertexAttribute struct {
	Location uint32
	Format   vk.Format
	Offset   uint32
}

// VertexLayout describes the single interleaved vertex binding.
// A zero Stride means the shaders take no vertex input.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// Pipeline is a graphics pipeline built against the device render pass.
// Viewport and scissor are dynamic so it survives swapchain rebuilds.
type Pipeline struct {
	device   vk.Device
	layout   vk.PipelineLayout
	pipeline vk.Pipeline
}

var _ vkframe.Pipeline = (*Pipeline)(nil)

// NewPipeline compiles a triangle list pipeline with no descriptor sets.
func NewPipeline(d *Device, shaders Shaders, input VertexLayout) (_ *Pipeline, err error) {
	p := &Pipeline{device: d.device}
	defer func() {
		if err != nil {
			p.Destroy()
		}
	}()

	vert, err := d.loadShaderModule(shaders.Vertex)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.device, vert, nil)
	frag, err := d.loadShaderModule(shaders.Fragment)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.device, frag, nil)

	ret := vk.CreatePipelineLayout(d.device, &vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}, nil, &p.layout)
	if err := result(ret, "create pipeline layout"); err != nil {
		return nil, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vert,
			PName:  safeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: frag,
			PName:  safeString("main"),
		},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if input.Stride > 0 {
		bindings := []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    input.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		attrs := make([]vk.VertexInputAttributeDescription, len(input.Attributes))
		for i, a := range input.Attributes {
			attrs[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   a.Format,
				Offset:   a.Offset,
			}
		}
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = bindings
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attrs))
		vertexInput.PVertexAttributeDescriptions = attrs
	}

	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	blend := []vk.PipelineColorBlendAttachmentState{{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}}

	info := vk.GraphicsPipelineCreateInfo{
		SType:             vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:        uint32(len(stages)),
		PStages:           stages,
		PVertexInputState: &vertexInput,
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1.0,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: uint32(len(blend)),
			PAttachments:    blend,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamic)),
			PDynamicStates:    dynamic,
		},
		Layout:            p.layout,
		RenderPass:        d.renderPass,
		Subpass:           0,
		BasePipelineIndex: -1,
	}
	if d.opts.Depth {
		info.PDepthStencilState = &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vk.True,
			DepthWriteEnable: vk.True,
			DepthCompareOp:   vk.CompareOpLess,
			MaxDepthBounds:   1.0,
		}
	}

	pipelines := make([]vk.Pipeline, 1)
	ret = vk.CreateGraphicsPipelines(d.device, nil, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := result(ret, "create graphics pipeline"); err != nil {
		return nil, err
	}
	p.pipeline = pipelines[0]
	return p, nil
}

func (p *Pipeline) Valid() bool {
	return p != nil && p.pipeline != vk.NullPipeline
}

// Destroy releases the pipeline and its layout. The device must be idle.
func (p *Pipeline) Destroy() {
	if p == nil {
		return
	}
	if p.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(p.device, p.pipeline, nil)
		p.pipeline = vk.NullPipeline
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device, p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
}
