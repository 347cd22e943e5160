package wgpu2d

// BlendMode selects how fragment output is combined with the color
// attachment. It is part of the pipeline key: triangles submitted with a
// different blend mode than the pending batch force a flush.
type BlendMode uint8

const (
	// BlendNone writes fragment output directly, replacing the destination.
	BlendNone BlendMode = iota
	// BlendAlpha is standard non-premultiplied alpha compositing.
	BlendAlpha
	// BlendAdd sums source and destination components.
	BlendAdd
	// BlendLighter adds alpha-scaled source color while preserving
	// destination alpha.
	BlendLighter
	// BlendMultiply multiplies source by destination.
	BlendMultiply
	// BlendInvert subtracts source-scaled destination from the blend
	// constant. Passes using it are encoded with a white blend constant.
	BlendInvert

	blendModeCount = int(BlendInvert) + 1
)

func (b BlendMode) String() string {
	switch b {
	case BlendNone:
		return "none"
	case BlendAlpha:
		return "alpha"
	case BlendAdd:
		return "add"
	case BlendLighter:
		return "lighter"
	case BlendMultiply:
		return "multiply"
	case BlendInvert:
		return "invert"
	}
	return "unknown"
}

// StencilOp selects how triangles interact with the frame's stencil
// attachment. The op alone determines pipeline selection; the reference
// value in StencilMode is a per-pass dynamic setting.
type StencilOp uint8

const (
	// StencilNone disables stencil testing and writing.
	StencilNone StencilOp = iota
	// StencilClip writes the reference value into the stencil buffer
	// without touching the color attachment. Used to mark clip regions.
	StencilClip
	// StencilInside draws only where the stencil buffer equals the
	// reference value.
	StencilInside
	// StencilOutside draws only where the stencil buffer differs from the
	// reference value.
	StencilOutside
	// StencilIncrement raises covered stencil values by one, clamping at
	// the maximum, without touching the color attachment. Combined with
	// StencilInside it implements nested clip regions.
	StencilIncrement

	stencilOpCount = int(StencilIncrement) + 1
)

func (s StencilOp) String() string {
	switch s {
	case StencilNone:
		return "none"
	case StencilClip:
		return "clip"
	case StencilInside:
		return "inside"
	case StencilOutside:
		return "outside"
	case StencilIncrement:
		return "increment"
	}
	return "unknown"
}

// StencilMode pairs a stencil operation with its reference value.
// Ref is meaningful for StencilClip, StencilInside and StencilOutside;
// StencilNone and StencilIncrement ignore it.
type StencilMode struct {
	Op  StencilOp
	Ref uint8
}

// hasReference reports whether the mode carries a reference value that
// must be set on the render pass.
func (s StencilMode) hasReference() bool {
	switch s.Op {
	case StencilClip, StencilInside, StencilOutside:
		return true
	}
	return false
}

// Rect is a pixel-space scissor rectangle.
type Rect struct {
	X, Y, W, H uint32
}

// DrawState is the full per-draw state for a triangle list. Blend and
// Stencil.Op select the pipeline; Scissor and Stencil.Ref are dynamic
// pass settings. A nil Scissor means the full output extent.
type DrawState struct {
	Blend   BlendMode
	Stencil StencilMode
	Scissor *Rect
}

// pipelineCompatible reports whether two states select the same render
// pipeline. Scissor and stencil reference changes do not force a new
// pipeline, so they keep batches together.
func pipelineCompatible(a, b DrawState) bool {
	return a.Blend == b.Blend && a.Stencil.Op == b.Stencil.Op
}

// sameDynamicState reports whether two states also agree on the dynamic
// pass settings. Batched vertices share one render pass, so the scissor
// and stencil reference must match exactly.
func sameDynamicState(a, b DrawState) bool {
	if !pipelineCompatible(a, b) {
		return false
	}
	if a.Stencil.Ref != b.Stencil.Ref {
		return false
	}
	if a.Scissor == nil || b.Scissor == nil {
		return a.Scissor == b.Scissor
	}
	return *a.Scissor == *b.Scissor
}
