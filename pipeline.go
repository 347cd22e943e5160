package wgpu2d

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Embedded WGSL shader sources for the two vertex kinds.

//go:embed shaders/colored.wgsl
var coloredShaderSource string

//go:embed shaders/textured.wgsl
var texturedShaderSource string

// coloredVertexStride is the byte stride per colored vertex:
// position (2 x float32) + color (4 x float32) = 24 bytes.
const coloredVertexStride = 24

// texturedVertexStride is the byte stride per textured vertex:
// position (2 x float32) + uv (2 x float32) + color (4 x float32) = 32 bytes.
const texturedVertexStride = 32

// vertexKind distinguishes the two vertex layouts. Each kind has its own
// shader, pipeline layout and accumulator buffer.
type vertexKind uint8

const (
	kindColored vertexKind = iota
	kindTextured
)

func (k vertexKind) String() string {
	if k == kindTextured {
		return "textured"
	}
	return "colored"
}

// pipelineSet holds every render pipeline the engine can select: one per
// (stencil op, blend mode) pair for each vertex kind. All pipelines are
// built eagerly at engine construction so that lookup never fails and a
// bad device configuration surfaces immediately.
type pipelineSet struct {
	device hal.Device

	coloredShader  hal.ShaderModule
	texturedShader hal.ShaderModule

	textureLayout      hal.BindGroupLayout
	coloredPipeLayout  hal.PipelineLayout
	texturedPipeLayout hal.PipelineLayout

	colored  [stencilOpCount][blendModeCount]hal.RenderPipeline
	textured [stencilOpCount][blendModeCount]hal.RenderPipeline
}

// get returns the pipeline for a vertex kind and draw state. Total over
// the key space; the stencil reference and scissor are pass settings and
// do not participate.
func (ps *pipelineSet) get(kind vertexKind, state DrawState) hal.RenderPipeline {
	if kind == kindTextured {
		return ps.textured[state.Stencil.Op][state.Blend]
	}
	return ps.colored[state.Stencil.Op][state.Blend]
}

// blendState returns the fixed blend configuration for a mode, or nil for
// BlendNone (source replaces destination). BlendInvert blends against the
// constant color, which the frame sets to white on every pass.
func blendState(mode BlendMode) *gputypes.BlendState {
	switch mode {
	case BlendAlpha:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	case BlendAdd:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	case BlendLighter:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorZero,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	case BlendMultiply:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorDst,
				DstFactor: gputypes.BlendFactorZero,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorDstAlpha,
				DstFactor: gputypes.BlendFactorZero,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	case BlendInvert:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorConstant,
				DstFactor: gputypes.BlendFactorSrc,
				Operation: gputypes.BlendOperationSubtract,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorZero,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	}
	return nil
}

// depthStencilState returns the depth/stencil configuration for a stencil
// op. The depth test is always disabled; only the stencil half of the
// Depth24PlusStencil8 attachment is used.
//
//   - StencilNone: test disabled, masks zero.
//   - StencilClip: comparison never passes, the fail op stamps the
//     reference value. Color output is still blended per the batch's
//     blend mode, matching the caller's draw state.
//   - StencilInside / StencilOutside: draw where the stencil equals /
//     differs from the reference.
//   - StencilIncrement: comparison never passes, the fail op raises the
//     stencil value with clamping.
func depthStencilState(op StencilOp) *hal.DepthStencilState {
	face := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	var readMask, writeMask uint32

	switch op {
	case StencilClip:
		face.Compare = gputypes.CompareFunctionNever
		face.FailOp = hal.StencilOperationReplace
		readMask, writeMask = 0xFF, 0xFF
	case StencilInside:
		face.Compare = gputypes.CompareFunctionEqual
		readMask, writeMask = 0xFF, 0xFF
	case StencilOutside:
		face.Compare = gputypes.CompareFunctionNotEqual
		readMask, writeMask = 0xFF, 0xFF
	case StencilIncrement:
		face.Compare = gputypes.CompareFunctionNever
		face.FailOp = hal.StencilOperationIncrementClamp
		readMask, writeMask = 0xFF, 0xFF
	}

	return &hal.DepthStencilState{
		Format:            gputypes.TextureFormatDepth24PlusStencil8,
		DepthWriteEnabled: false,
		DepthCompare:      gputypes.CompareFunctionAlways,
		StencilFront:      face,
		StencilBack:       face,
		StencilReadMask:   readMask,
		StencilWriteMask:  writeMask,
	}
}

// coloredVertexLayout describes the colored vertex buffer:
// position float32x2 at location(0), color float32x4 at location(1).
func coloredVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: coloredVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 8, ShaderLocation: 1},
			},
		},
	}
}

// texturedVertexLayout describes the textured vertex buffer:
// position float32x2 at location(0), uv float32x2 at location(1),
// color float32x4 at location(2).
func texturedVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: texturedVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2},
			},
		},
	}
}

// buildPipelines compiles the two shaders and creates every render
// pipeline for the given output color format. On any failure everything
// created so far is destroyed and the error is returned.
func buildPipelines(device hal.Device, format gputypes.TextureFormat) (*pipelineSet, error) {
	ps := &pipelineSet{device: device}

	coloredShader, err := createShaderModule(device, "wgpu2d_colored_shader", coloredShaderSource)
	if err != nil {
		return nil, fmt.Errorf("compile colored shader: %w", err)
	}
	ps.coloredShader = coloredShader

	texturedShader, err := createShaderModule(device, "wgpu2d_textured_shader", texturedShaderSource)
	if err != nil {
		ps.Destroy()
		return nil, fmt.Errorf("compile textured shader: %w", err)
	}
	ps.texturedShader = texturedShader

	// Texture bind group layout shared by every textured pipeline and by
	// every Texture created for this engine: texture_2d at binding(0),
	// sampler at binding(1), fragment stage only.
	textureLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "wgpu2d_texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		ps.Destroy()
		return nil, fmt.Errorf("create texture bind group layout: %w", err)
	}
	ps.textureLayout = textureLayout

	coloredPipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "wgpu2d_colored_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{},
	})
	if err != nil {
		ps.Destroy()
		return nil, fmt.Errorf("create colored pipeline layout: %w", err)
	}
	ps.coloredPipeLayout = coloredPipeLayout

	texturedPipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "wgpu2d_textured_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{ps.textureLayout},
	})
	if err != nil {
		ps.Destroy()
		return nil, fmt.Errorf("create textured pipeline layout: %w", err)
	}
	ps.texturedPipeLayout = texturedPipeLayout

	multisample := gputypes.MultisampleState{
		Count: 1,
		Mask:  0xFFFFFFFF,
	}
	primitive := gputypes.PrimitiveState{
		Topology: gputypes.PrimitiveTopologyTriangleList,
		CullMode: gputypes.CullModeNone,
	}

	for op := 0; op < stencilOpCount; op++ {
		for blend := 0; blend < blendModeCount; blend++ {
			depthStencil := depthStencilState(StencilOp(op))
			target := gputypes.ColorTargetState{
				Format:    format,
				Blend:     blendState(BlendMode(blend)),
				WriteMask: gputypes.ColorWriteMaskAll,
			}

			colored, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
				Label:  fmt.Sprintf("wgpu2d_colored_%s_%s", StencilOp(op), BlendMode(blend)),
				Layout: ps.coloredPipeLayout,
				Vertex: hal.VertexState{
					Module:     ps.coloredShader,
					EntryPoint: "vs_main",
					Buffers:    coloredVertexLayout(),
				},
				Fragment: &hal.FragmentState{
					Module:     ps.coloredShader,
					EntryPoint: "fs_main",
					Targets:    []gputypes.ColorTargetState{target},
				},
				DepthStencil: depthStencil,
				Multisample:  multisample,
				Primitive:    primitive,
			})
			if err != nil {
				ps.Destroy()
				return nil, fmt.Errorf("create colored pipeline (%s, %s): %w",
					StencilOp(op), BlendMode(blend), err)
			}
			ps.colored[op][blend] = colored

			textured, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
				Label:  fmt.Sprintf("wgpu2d_textured_%s_%s", StencilOp(op), BlendMode(blend)),
				Layout: ps.texturedPipeLayout,
				Vertex: hal.VertexState{
					Module:     ps.texturedShader,
					EntryPoint: "vs_main",
					Buffers:    texturedVertexLayout(),
				},
				Fragment: &hal.FragmentState{
					Module:     ps.texturedShader,
					EntryPoint: "fs_main",
					Targets:    []gputypes.ColorTargetState{target},
				},
				DepthStencil: depthStencil,
				Multisample:  multisample,
				Primitive:    primitive,
			})
			if err != nil {
				ps.Destroy()
				return nil, fmt.Errorf("create textured pipeline (%s, %s): %w",
					StencilOp(op), BlendMode(blend), err)
			}
			ps.textured[op][blend] = textured
		}
	}

	slogger().Info("pipeline cache built",
		"stencil_ops", stencilOpCount,
		"blend_modes", blendModeCount,
		"pipelines", stencilOpCount*blendModeCount*2)

	return ps, nil
}

// Destroy releases all pipelines and layouts in reverse creation order.
// Safe to call on a partially built set.
func (ps *pipelineSet) Destroy() {
	for op := stencilOpCount - 1; op >= 0; op-- {
		for blend := blendModeCount - 1; blend >= 0; blend-- {
			if ps.textured[op][blend] != nil {
				ps.device.DestroyRenderPipeline(ps.textured[op][blend])
				ps.textured[op][blend] = nil
			}
			if ps.colored[op][blend] != nil {
				ps.device.DestroyRenderPipeline(ps.colored[op][blend])
				ps.colored[op][blend] = nil
			}
		}
	}
	if ps.texturedPipeLayout != nil {
		ps.device.DestroyPipelineLayout(ps.texturedPipeLayout)
		ps.texturedPipeLayout = nil
	}
	if ps.coloredPipeLayout != nil {
		ps.device.DestroyPipelineLayout(ps.coloredPipeLayout)
		ps.coloredPipeLayout = nil
	}
	if ps.textureLayout != nil {
		ps.device.DestroyBindGroupLayout(ps.textureLayout)
		ps.textureLayout = nil
	}
	if ps.texturedShader != nil {
		ps.device.DestroyShaderModule(ps.texturedShader)
		ps.texturedShader = nil
	}
	if ps.coloredShader != nil {
		ps.device.DestroyShaderModule(ps.coloredShader)
		ps.coloredShader = nil
	}
}
