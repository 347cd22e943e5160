package wgpu2d

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// pipelineRecordingDevice wraps a hal.Device and records the label of
// every render pipeline it is asked to create. The noop backend's
// pipeline handles are indistinguishable zero-size values, so the build
// is observed through the descriptors instead.
type pipelineRecordingDevice struct {
	hal.Device
	labels []string
}

func (d *pipelineRecordingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.labels = append(d.labels, desc.Label)
	return d.Device.CreateRenderPipeline(desc)
}

func TestBuildPipelinesComplete(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()
	recorder := &pipelineRecordingDevice{Device: device}

	ps, err := buildPipelines(recorder, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("buildPipelines failed: %v", err)
	}
	defer ps.Destroy()

	want := stencilOpCount * blendModeCount * 2
	if len(recorder.labels) != want {
		t.Errorf("CreateRenderPipeline calls = %d, want %d", len(recorder.labels), want)
	}
	distinct := make(map[string]bool)
	for _, label := range recorder.labels {
		distinct[label] = true
	}
	if len(distinct) != want {
		t.Errorf("distinct pipeline labels = %d, want %d", len(distinct), want)
	}

	// Every array slot is populated, so lookup is total.
	for op := 0; op < stencilOpCount; op++ {
		for blend := 0; blend < blendModeCount; blend++ {
			if ps.colored[op][blend] == nil {
				t.Errorf("colored[%v][%v] = nil", StencilOp(op), BlendMode(blend))
			}
			if ps.textured[op][blend] == nil {
				t.Errorf("textured[%v][%v] = nil", StencilOp(op), BlendMode(blend))
			}
		}
	}
}

// stubPipeline is a distinguishable hal.RenderPipeline for selection
// tests; pointers to it have unique identity, unlike noop handles.
type stubPipeline struct{ id int }

func (*stubPipeline) Destroy() {}

func TestPipelineSelection(t *testing.T) {
	ps := &pipelineSet{}
	next := 0
	for op := 0; op < stencilOpCount; op++ {
		for blend := 0; blend < blendModeCount; blend++ {
			ps.colored[op][blend] = &stubPipeline{id: next}
			ps.textured[op][blend] = &stubPipeline{id: next + 1}
			next += 2
		}
	}

	state := DrawState{Blend: BlendInvert, Stencil: StencilMode{Op: StencilOutside, Ref: 5}}
	first := ps.get(kindTextured, state)
	if first != ps.textured[StencilOutside][BlendInvert] {
		t.Fatal("get selected the wrong slot")
	}
	for i := 0; i < 3; i++ {
		if got := ps.get(kindTextured, state); got != first {
			t.Fatal("repeated get returned a different pipeline")
		}
	}

	// The reference value is not part of the key.
	otherRef := DrawState{Blend: BlendInvert, Stencil: StencilMode{Op: StencilOutside, Ref: 200}}
	if got := ps.get(kindTextured, otherRef); got != first {
		t.Error("different stencil reference selected a different pipeline")
	}

	// The kind, blend mode and stencil op are.
	if got := ps.get(kindColored, state); got == first {
		t.Error("colored and textured kinds share a pipeline")
	}
	otherBlend := DrawState{Blend: BlendAdd, Stencil: state.Stencil}
	if got := ps.get(kindTextured, otherBlend); got == first {
		t.Error("different blend mode selected the same pipeline")
	}
	otherOp := DrawState{Blend: state.Blend, Stencil: StencilMode{Op: StencilInside, Ref: 5}}
	if got := ps.get(kindTextured, otherOp); got == first {
		t.Error("different stencil op selected the same pipeline")
	}
}

func TestBlendStateTable(t *testing.T) {
	if blendState(BlendNone) != nil {
		t.Error("blendState(BlendNone) != nil, want nil (replace destination)")
	}

	alpha := blendState(BlendAlpha)
	if alpha.Color.SrcFactor != gputypes.BlendFactorSrcAlpha ||
		alpha.Color.DstFactor != gputypes.BlendFactorOneMinusSrcAlpha ||
		alpha.Alpha.SrcFactor != gputypes.BlendFactorOne {
		t.Errorf("BlendAlpha = %+v, want standard alpha compositing", alpha)
	}

	add := blendState(BlendAdd)
	if add.Color.SrcFactor != gputypes.BlendFactorOne || add.Color.DstFactor != gputypes.BlendFactorOne ||
		add.Alpha.SrcFactor != gputypes.BlendFactorOne || add.Alpha.DstFactor != gputypes.BlendFactorOne {
		t.Errorf("BlendAdd = %+v, want one/one both components", add)
	}

	lighter := blendState(BlendLighter)
	if lighter.Color.SrcFactor != gputypes.BlendFactorSrcAlpha || lighter.Color.DstFactor != gputypes.BlendFactorOne ||
		lighter.Alpha.SrcFactor != gputypes.BlendFactorZero || lighter.Alpha.DstFactor != gputypes.BlendFactorOne {
		t.Errorf("BlendLighter = %+v", lighter)
	}

	multiply := blendState(BlendMultiply)
	if multiply.Color.SrcFactor != gputypes.BlendFactorDst || multiply.Color.DstFactor != gputypes.BlendFactorZero ||
		multiply.Alpha.SrcFactor != gputypes.BlendFactorDstAlpha {
		t.Errorf("BlendMultiply = %+v", multiply)
	}

	invert := blendState(BlendInvert)
	if invert.Color.SrcFactor != gputypes.BlendFactorConstant ||
		invert.Color.DstFactor != gputypes.BlendFactorSrc ||
		invert.Color.Operation != gputypes.BlendOperationSubtract {
		t.Errorf("BlendInvert color = %+v, want constant-src subtract", invert.Color)
	}
	if invert.Alpha.SrcFactor != gputypes.BlendFactorZero || invert.Alpha.DstFactor != gputypes.BlendFactorOne {
		t.Errorf("BlendInvert alpha = %+v, want destination alpha preserved", invert.Alpha)
	}
}

func TestDepthStencilStateTable(t *testing.T) {
	tests := []struct {
		op        StencilOp
		compare   gputypes.CompareFunction
		failOp    hal.StencilOperation
		writeMask uint32
	}{
		{StencilNone, gputypes.CompareFunctionAlways, hal.StencilOperationKeep, 0},
		{StencilClip, gputypes.CompareFunctionNever, hal.StencilOperationReplace, 0xFF},
		{StencilInside, gputypes.CompareFunctionEqual, hal.StencilOperationKeep, 0xFF},
		{StencilOutside, gputypes.CompareFunctionNotEqual, hal.StencilOperationKeep, 0xFF},
		{StencilIncrement, gputypes.CompareFunctionNever, hal.StencilOperationIncrementClamp, 0xFF},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			ds := depthStencilState(tt.op)
			if ds.Format != gputypes.TextureFormatDepth24PlusStencil8 {
				t.Errorf("Format = %v, want Depth24PlusStencil8", ds.Format)
			}
			if ds.DepthWriteEnabled || ds.DepthCompare != gputypes.CompareFunctionAlways {
				t.Error("depth test must be disabled")
			}
			if ds.StencilFront != ds.StencilBack {
				t.Error("front and back faces differ")
			}
			if ds.StencilFront.Compare != tt.compare {
				t.Errorf("Compare = %v, want %v", ds.StencilFront.Compare, tt.compare)
			}
			if ds.StencilFront.FailOp != tt.failOp {
				t.Errorf("FailOp = %v, want %v", ds.StencilFront.FailOp, tt.failOp)
			}
			if ds.StencilFront.PassOp != hal.StencilOperationKeep {
				t.Errorf("PassOp = %v, want Keep", ds.StencilFront.PassOp)
			}
			if ds.StencilWriteMask != tt.writeMask || ds.StencilReadMask != tt.writeMask {
				t.Errorf("masks = %#x/%#x, want %#x", ds.StencilReadMask, ds.StencilWriteMask, tt.writeMask)
			}
		})
	}
}

func TestVertexLayouts(t *testing.T) {
	colored := coloredVertexLayout()
	if len(colored) != 1 || colored[0].ArrayStride != coloredVertexStride {
		t.Fatalf("colored layout stride = %d, want %d", colored[0].ArrayStride, coloredVertexStride)
	}
	if len(colored[0].Attributes) != 2 {
		t.Errorf("colored attributes = %d, want 2", len(colored[0].Attributes))
	}

	textured := texturedVertexLayout()
	if len(textured) != 1 || textured[0].ArrayStride != texturedVertexStride {
		t.Fatalf("textured layout stride = %d, want %d", textured[0].ArrayStride, texturedVertexStride)
	}
	if len(textured[0].Attributes) != 3 {
		t.Errorf("textured attributes = %d, want 3", len(textured[0].Attributes))
	}
	if textured[0].Attributes[2].Offset != 16 {
		t.Errorf("textured color offset = %d, want 16", textured[0].Attributes[2].Offset)
	}
}
