package wgpu2d

import (
	"encoding/binary"
	"math"
)

// flushReason classifies why a pending batch must be drained. Every
// transition of the accumulator protocol goes through one of these;
// flushes are never performed for any other cause.
type flushReason uint8

const (
	flushNone flushReason = iota
	// flushKindSwitch drains the other kind's batch so that interleaved
	// colored and textured submissions keep their paint order.
	flushKindSwitch
	// flushStateChange drains a batch whose draw state differs from the
	// incoming one. A batch becomes a single draw call with a single set
	// of pass settings, so any state difference splits it.
	flushStateChange
	// flushTextureChange drains a textured batch bound to a different
	// texture than the incoming submission.
	flushTextureChange
	// flushCapacity drains a batch that would exceed the soft vertex
	// capacity if the incoming vertices were appended.
	flushCapacity
	// flushClear drains both batches ahead of a clear pass so the clear
	// cannot erase geometry submitted before it.
	flushClear
	// flushFinish drains residual batches when the frame ends.
	flushFinish
)

func (r flushReason) String() string {
	switch r {
	case flushNone:
		return "none"
	case flushKindSwitch:
		return "kind_switch"
	case flushStateChange:
		return "state_change"
	case flushTextureChange:
		return "texture_change"
	case flushCapacity:
		return "capacity"
	case flushClear:
		return "clear"
	case flushFinish:
		return "finish"
	}
	return "unknown"
}

// batch accumulates packed vertex bytes for one kind. The byte buffer is
// written in the vertex layout the kind's pipeline expects, so a flush
// uploads it to a device buffer without further conversion. Capacity is
// retained across resets for reuse within and across frames.
type batch struct {
	kind    vertexKind
	stride  int
	data    []byte
	count   int
	state   DrawState
	texture *Texture
}

func newBatch(kind vertexKind) *batch {
	stride := coloredVertexStride
	if kind == kindTextured {
		stride = texturedVertexStride
	}
	return &batch{kind: kind, stride: stride}
}

// reason is the flush decision for appending vertices to this batch.
// It is shared by both kinds; the caller drains the batch whenever the
// result is not flushNone, then appends. An empty batch accepts any
// incoming state.
func (b *batch) reason(state DrawState, tex *Texture, incoming, capacity int) flushReason {
	if b.count == 0 {
		return flushNone
	}
	if !sameDynamicState(b.state, state) {
		return flushStateChange
	}
	if b.kind == kindTextured && b.texture != tex {
		return flushTextureChange
	}
	if b.count+incoming > capacity {
		return flushCapacity
	}
	return flushNone
}

// full reports whether another triangle would push the batch past the
// soft capacity. Checked at triangle granularity during emission so a
// single large submission still respects the capacity bound.
func (b *batch) full(capacity int) bool {
	return b.count+verticesPerTriangle > capacity
}

const verticesPerTriangle = 3

// grow extends the byte buffer by n vertices and returns the slice to
// write them into.
func (b *batch) grow(n int) []byte {
	off := len(b.data)
	need := off + n*b.stride
	if cap(b.data) < need {
		next := make([]byte, len(b.data), need)
		copy(next, b.data)
		b.data = next
	}
	b.data = b.data[:need]
	b.count += n
	return b.data[off:]
}

// appendColored packs one position+color vertex.
func (b *batch) appendColored(pos [2]float32, col [4]float32) {
	buf := b.grow(1)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(pos[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(pos[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(col[0]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(col[1]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(col[2]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(col[3]))
}

// appendTextured packs one position+uv+color vertex.
func (b *batch) appendTextured(pos, uv [2]float32, col [4]float32) {
	buf := b.grow(1)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(pos[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(pos[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(uv[0]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(uv[1]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(col[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(col[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(col[2]))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(col[3]))
}

// bind records the state and texture the pending vertices draw with.
func (b *batch) bind(state DrawState, tex *Texture) {
	b.state = state
	b.texture = tex
}

// reset clears the batch, keeping the byte buffer capacity.
func (b *batch) reset() {
	b.data = b.data[:0]
	b.count = 0
	b.texture = nil
}
