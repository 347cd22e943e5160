package wgpu2d

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// submitTimeout bounds the completion wait in CommandPayload.Submit.
// Variable so tests can shorten it.
var submitTimeout = 5 * time.Second

// submitPollInterval is the sleep between completion polls.
const submitPollInterval = time.Millisecond

// blendConstantWhite is set on every draw pass. Only BlendInvert reads
// the blend constant; setting it unconditionally keeps pass encoding
// uniform across blend modes.
var blendConstantWhite = gputypes.Color{R: 1, G: 1, B: 1, A: 1}

// frameEvent records one emitted pass for inspection. Events are only
// collected when a hook is installed; production frames pay nothing.
type frameEvent struct {
	// op is "draw", "clear_color" or "clear_stencil".
	op      string
	kind    vertexKind
	reason  flushReason
	state   DrawState
	texture *Texture
	// vertexCount is the batch size for draw events.
	vertexCount int
	// scissor is the rectangle actually bound (defaulted to full extent
	// when the state carries none).
	scissor Rect
	// stencilRef is set for draw events whose stencil mode carries a
	// reference value.
	stencilRef    uint32
	hasStencilRef bool
	// clearColor / clearStencil hold the clear values for clear events.
	clearColor   [4]float32
	clearStencil uint8
}

// Frame records the draw commands of a single output frame. It borrows
// the engine's accumulators exclusively; only one Frame may exist per
// engine at a time. All methods must be called from one goroutine.
type Frame struct {
	engine *Engine

	width  uint32
	height uint32
	target hal.TextureView

	stencilTex  hal.Texture
	stencilView hal.TextureView
	encoder     hal.CommandEncoder

	// stencilReady flips after the first pass initializes the fresh
	// depth-stencil attachment; later passes load it.
	stencilReady bool

	// buffers are the transient vertex buffers created by flushes. They
	// stay alive until the payload is submitted or released.
	buffers []hal.Buffer

	finished bool
	emitErr  error

	// onEvent, when set, observes every emitted pass.
	onEvent func(frameEvent)
}

func newFrame(e *Engine, width, height uint32, target hal.TextureView) (*Frame, error) {
	if target == nil {
		return nil, fmt.Errorf("wgpu2d: nil output target")
	}

	stencilTex, err := e.device.CreateTexture(&hal.TextureDescriptor{
		Label: "wgpu2d_stencil",
		Size: hal.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("create stencil texture: %w", err)
	}

	stencilView, err := e.device.CreateTextureView(stencilTex, &hal.TextureViewDescriptor{
		Label:         "wgpu2d_stencil_view",
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		e.device.DestroyTexture(stencilTex)
		return nil, fmt.Errorf("create stencil view: %w", err)
	}

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "wgpu2d_frame",
	})
	if err != nil {
		e.device.DestroyTextureView(stencilView)
		e.device.DestroyTexture(stencilTex)
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("wgpu2d_frame"); err != nil {
		e.device.DestroyTextureView(stencilView)
		e.device.DestroyTexture(stencilTex)
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	e.colored.reset()
	e.textured.reset()

	return &Frame{
		engine:      e,
		width:       width,
		height:      height,
		target:      target,
		stencilTex:  stencilTex,
		stencilView: stencilView,
		encoder:     encoder,
	}, nil
}

// batchFor returns the engine-owned accumulator for a kind.
func (f *Frame) batchFor(kind vertexKind) *batch {
	if kind == kindTextured {
		return f.engine.textured
	}
	return f.engine.colored
}

// prepare drains whatever the accumulator protocol requires before
// vertices of the given kind and state can be appended, then binds the
// incoming state to the kind's batch.
func (f *Frame) prepare(kind vertexKind, state DrawState, tex *Texture) error {
	other := f.engine.textured
	if kind == kindTextured {
		other = f.engine.colored
	}
	if other.count > 0 {
		if err := f.flush(other, flushKindSwitch); err != nil {
			return err
		}
	}
	b := f.batchFor(kind)
	if r := b.reason(state, tex, 0, f.engine.config.SoftCapacity); r != flushNone {
		if err := f.flush(b, r); err != nil {
			return err
		}
	}
	b.bind(state, tex)
	return nil
}

// Triangles submits flat-colored triangles sharing one color. The
// callback receives an emit function and may call it any number of
// times with position lists; list lengths must be multiples of three.
// Positions are clip-space coordinates.
func (f *Frame) Triangles(state DrawState, color [4]float32, fn func(emit func(pos [][2]float32))) error {
	if f.finished {
		return ErrFrameFinished
	}
	if err := f.prepare(kindColored, state, nil); err != nil {
		return err
	}
	b := f.engine.colored
	capacity := f.engine.config.SoftCapacity
	fn(func(pos [][2]float32) {
		if f.emitErr != nil {
			return
		}
		for i := 0; i+verticesPerTriangle <= len(pos); i += verticesPerTriangle {
			if b.full(capacity) {
				if err := f.flush(b, flushCapacity); err != nil {
					f.emitErr = err
					return
				}
				b.bind(state, nil)
			}
			b.appendColored(pos[i], color)
			b.appendColored(pos[i+1], color)
			b.appendColored(pos[i+2], color)
		}
	})
	return f.takeEmitErr()
}

// TrianglesColored submits flat-colored triangles with per-vertex
// colors. Position and color lists must have equal lengths, multiples
// of three.
func (f *Frame) TrianglesColored(state DrawState, fn func(emit func(pos [][2]float32, cols [][4]float32))) error {
	if f.finished {
		return ErrFrameFinished
	}
	if err := f.prepare(kindColored, state, nil); err != nil {
		return err
	}
	b := f.engine.colored
	capacity := f.engine.config.SoftCapacity
	fn(func(pos [][2]float32, cols [][4]float32) {
		if f.emitErr != nil {
			return
		}
		n := min(len(pos), len(cols))
		for i := 0; i+verticesPerTriangle <= n; i += verticesPerTriangle {
			if b.full(capacity) {
				if err := f.flush(b, flushCapacity); err != nil {
					f.emitErr = err
					return
				}
				b.bind(state, nil)
			}
			b.appendColored(pos[i], cols[i])
			b.appendColored(pos[i+1], cols[i+1])
			b.appendColored(pos[i+2], cols[i+2])
		}
	})
	return f.takeEmitErr()
}

// TrianglesUV submits textured triangles sharing one color modulation.
// Position and UV lists must have equal lengths, multiples of three.
func (f *Frame) TrianglesUV(state DrawState, tex *Texture, color [4]float32, fn func(emit func(pos, uv [][2]float32))) error {
	if f.finished {
		return ErrFrameFinished
	}
	if tex == nil || tex.bindGroup == nil {
		return ErrNilTexture
	}
	if err := f.prepare(kindTextured, state, tex); err != nil {
		return err
	}
	b := f.engine.textured
	capacity := f.engine.config.SoftCapacity
	fn(func(pos, uv [][2]float32) {
		if f.emitErr != nil {
			return
		}
		n := min(len(pos), len(uv))
		for i := 0; i+verticesPerTriangle <= n; i += verticesPerTriangle {
			if b.full(capacity) {
				if err := f.flush(b, flushCapacity); err != nil {
					f.emitErr = err
					return
				}
				b.bind(state, tex)
			}
			b.appendTextured(pos[i], uv[i], color)
			b.appendTextured(pos[i+1], uv[i+1], color)
			b.appendTextured(pos[i+2], uv[i+2], color)
		}
	})
	return f.takeEmitErr()
}

// TrianglesUVColored submits textured triangles with per-vertex colors.
func (f *Frame) TrianglesUVColored(state DrawState, tex *Texture, fn func(emit func(pos, uv [][2]float32, cols [][4]float32))) error {
	if f.finished {
		return ErrFrameFinished
	}
	if tex == nil || tex.bindGroup == nil {
		return ErrNilTexture
	}
	if err := f.prepare(kindTextured, state, tex); err != nil {
		return err
	}
	b := f.engine.textured
	capacity := f.engine.config.SoftCapacity
	fn(func(pos, uv [][2]float32, cols [][4]float32) {
		if f.emitErr != nil {
			return
		}
		n := min(len(pos), min(len(uv), len(cols)))
		for i := 0; i+verticesPerTriangle <= n; i += verticesPerTriangle {
			if b.full(capacity) {
				if err := f.flush(b, flushCapacity); err != nil {
					f.emitErr = err
					return
				}
				b.bind(state, tex)
			}
			b.appendTextured(pos[i], uv[i], cols[i])
			b.appendTextured(pos[i+1], uv[i+1], cols[i+1])
			b.appendTextured(pos[i+2], uv[i+2], cols[i+2])
		}
	})
	return f.takeEmitErr()
}

func (f *Frame) takeEmitErr() error {
	err := f.emitErr
	f.emitErr = nil
	return err
}

// drain flushes both accumulators in submission order. The colored batch
// goes first only when it is the one holding pending vertices; at most
// one accumulator is non-empty at any time because prepare flushes the
// other kind before appending.
func (f *Frame) drain(reason flushReason) error {
	if f.engine.colored.count > 0 {
		if err := f.flush(f.engine.colored, reason); err != nil {
			return err
		}
	}
	if f.engine.textured.count > 0 {
		if err := f.flush(f.engine.textured, reason); err != nil {
			return err
		}
	}
	return nil
}

// ClearColor drains pending batches, then encodes a pass that clears the
// color target while preserving stencil contents. Geometry submitted
// before the clear is unaffected; geometry submitted after draws on the
// cleared background.
func (f *Frame) ClearColor(c [4]float32) error {
	if f.finished {
		return ErrFrameFinished
	}
	if err := f.drain(flushClear); err != nil {
		return err
	}

	rp := f.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "wgpu2d_clear_color",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       f.target,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])},
		}},
		DepthStencilAttachment: f.passDepthStencil(false, 0),
	})
	rp.End()

	if f.onEvent != nil {
		f.onEvent(frameEvent{op: "clear_color", reason: flushClear, clearColor: c})
	}
	return nil
}

// ClearStencil drains pending batches, then encodes a pass that clears
// the stencil attachment to the given value while preserving color.
func (f *Frame) ClearStencil(value uint8) error {
	if f.finished {
		return ErrFrameFinished
	}
	if err := f.drain(flushClear); err != nil {
		return err
	}

	rp := f.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "wgpu2d_clear_stencil",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    f.target,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
		DepthStencilAttachment: f.passDepthStencil(true, uint32(value)),
	})
	rp.End()

	if f.onEvent != nil {
		f.onEvent(frameEvent{op: "clear_stencil", reason: flushClear, clearStencil: value})
	}
	return nil
}

// passDepthStencil returns the depth-stencil attachment for the next
// pass. The first pass of a frame initializes the freshly allocated
// attachment with a clear; every later pass loads it. clearStencil
// overrides the stencil load for ClearStencil passes. Depth is unused
// but the attachment format carries it, so its ops mirror the stencil
// initialization.
func (f *Frame) passDepthStencil(clearStencil bool, stencilValue uint32) *hal.RenderPassDepthStencilAttachment {
	first := !f.stencilReady
	f.stencilReady = true

	depthLoad := gputypes.LoadOpLoad
	stencilLoad := gputypes.LoadOpLoad
	if first {
		depthLoad = gputypes.LoadOpClear
		stencilLoad = gputypes.LoadOpClear
	}
	if clearStencil {
		stencilLoad = gputypes.LoadOpClear
	}
	return &hal.RenderPassDepthStencilAttachment{
		View:              f.stencilView,
		DepthLoadOp:       depthLoad,
		DepthStoreOp:      gputypes.StoreOpStore,
		DepthClearValue:   1.0,
		StencilLoadOp:     stencilLoad,
		StencilStoreOp:    gputypes.StoreOpStore,
		StencilClearValue: stencilValue,
	}
}

// flush converts a batch into one render pass with one draw call:
// upload the packed vertices into a fresh device buffer, bind the
// pipeline selected by the batch's state, set the pass settings and
// draw. The batch is reset with its capacity retained.
func (f *Frame) flush(b *batch, reason flushReason) error {
	if b.count == 0 {
		return nil
	}

	buf, err := f.engine.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "wgpu2d_vertices",
		Size:  uint64(len(b.data)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create vertex buffer: %w", err)
	}
	if err := f.engine.queue.WriteBuffer(buf, 0, b.data); err != nil {
		f.engine.device.DestroyBuffer(buf)
		return fmt.Errorf("write vertex buffer: %w", err)
	}
	f.buffers = append(f.buffers, buf)

	scissor := Rect{X: 0, Y: 0, W: f.width, H: f.height}
	if b.state.Scissor != nil {
		scissor = *b.state.Scissor
	}

	rp := f.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "wgpu2d_draw",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    f.target,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
		DepthStencilAttachment: f.passDepthStencil(false, 0),
	})

	rp.SetPipeline(f.engine.pipelines.get(b.kind, b.state))
	rp.SetBlendConstant(&blendConstantWhite)
	rp.SetScissorRect(scissor.X, scissor.Y, scissor.W, scissor.H)

	var stencilRef uint32
	hasRef := b.state.Stencil.hasReference()
	if hasRef {
		stencilRef = uint32(b.state.Stencil.Ref)
		rp.SetStencilReference(stencilRef)
	}
	if b.kind == kindTextured {
		rp.SetBindGroup(0, b.texture.bindGroup, nil)
	}
	rp.SetVertexBuffer(0, buf, 0)
	rp.Draw(uint32(b.count), 1, 0, 0)
	rp.End()

	slogger().Debug("flush",
		"kind", b.kind,
		"reason", reason,
		"vertices", b.count,
		"blend", b.state.Blend,
		"stencil", b.state.Stencil.Op)

	if f.onEvent != nil {
		f.onEvent(frameEvent{
			op:            "draw",
			kind:          b.kind,
			reason:        reason,
			state:         b.state,
			texture:       b.texture,
			vertexCount:   b.count,
			scissor:       scissor,
			stencilRef:    stencilRef,
			hasStencilRef: hasRef,
		})
	}

	b.reset()
	return nil
}

// Finish drains both accumulators, finalizes the command encoder and
// consumes the frame. The returned payload must be submitted or
// released; the frame is unusable afterwards.
func (f *Frame) Finish() (*CommandPayload, error) {
	if f.finished {
		return nil, ErrFrameFinished
	}
	if err := f.drain(flushFinish); err != nil {
		f.Release()
		return nil, err
	}

	cmd, err := f.encoder.EndEncoding()
	if err != nil {
		f.Release()
		return nil, fmt.Errorf("end encoding: %w", err)
	}

	f.finished = true
	f.engine.frameOpen = false

	payload := &CommandPayload{
		device:      f.engine.device,
		cmd:         cmd,
		buffers:     f.buffers,
		stencilTex:  f.stencilTex,
		stencilView: f.stencilView,
	}
	f.buffers = nil
	f.stencilTex = nil
	f.stencilView = nil
	return payload, nil
}

// Release abandons the frame without producing a payload. Safe to call
// after a frame-fatal error or instead of Finish.
func (f *Frame) Release() {
	if f.finished {
		return
	}
	f.finished = true
	f.engine.frameOpen = false

	f.encoder.DiscardEncoding()
	for i := len(f.buffers) - 1; i >= 0; i-- {
		f.engine.device.DestroyBuffer(f.buffers[i])
	}
	f.buffers = nil
	if f.stencilView != nil {
		f.engine.device.DestroyTextureView(f.stencilView)
		f.stencilView = nil
	}
	if f.stencilTex != nil {
		f.engine.device.DestroyTexture(f.stencilTex)
		f.stencilTex = nil
	}
	f.engine.colored.reset()
	f.engine.textured.reset()
}

// CommandPayload is a finished frame's recorded commands together with
// the transient resources they reference. Submit hands it to a queue and
// releases everything; Release abandons it without submission.
type CommandPayload struct {
	device      hal.Device
	cmd         hal.CommandBuffer
	buffers     []hal.Buffer
	stencilTex  hal.Texture
	stencilView hal.TextureView
	done        bool
}

// Submit sends the recorded commands to the queue and blocks until the
// queue reports the submission complete, then releases the payload's
// resources. The queue tracks completion through submission indices;
// Submit polls PollCompleted until the returned index is reached.
func (p *CommandPayload) Submit(queue hal.Queue) error {
	if p.done {
		return ErrFrameFinished
	}
	defer p.release()

	index, err := queue.Submit([]hal.CommandBuffer{p.cmd})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	deadline := time.Now().Add(submitTimeout)
	for queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for GPU: submission %d not complete after %v", index, submitTimeout)
		}
		time.Sleep(submitPollInterval)
	}
	return nil
}

// Release frees the payload's resources without submitting.
func (p *CommandPayload) Release() {
	if p.done {
		return
	}
	p.release()
}

func (p *CommandPayload) release() {
	p.done = true
	p.device.FreeCommandBuffer(p.cmd)
	for i := len(p.buffers) - 1; i >= 0; i-- {
		p.device.DestroyBuffer(p.buffers[i])
	}
	p.buffers = nil
	if p.stencilView != nil {
		p.device.DestroyTextureView(p.stencilView)
		p.stencilView = nil
	}
	if p.stencilTex != nil {
		p.device.DestroyTexture(p.stencilTex)
		p.stencilTex = nil
	}
}
