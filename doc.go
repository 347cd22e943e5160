// Package wgpu2d batches immediate-mode 2D triangle drawing into
// retained-mode GPU command submission.
//
// # Overview
//
// Callers submit triangle lists one drawing operation at a time, each
// tagged with a draw state (blend mode, stencil mode, scissor) and a
// vertex kind (flat-colored or textured). The engine accumulates
// vertices into per-kind batches, flushes them into render passes when
// ordering or capacity requires it, and hands back one command payload
// per frame for queue submission.
//
// Every reachable (stencil op, blend mode, vertex kind) pipeline is
// precompiled at engine construction, so pipeline selection during a
// frame is a table lookup that cannot fail.
//
// # Quick Start
//
//	engine, err := wgpu2d.New(device, queue, wgpu2d.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer engine.Destroy()
//
//	frame, err := engine.BeginFrame(width, height, targetView)
//	if err != nil {
//		return err
//	}
//	frame.ClearColor([4]float32{0, 0, 0, 1})
//	frame.Triangles(wgpu2d.DrawState{Blend: wgpu2d.BlendAlpha}, red,
//		func(emit func(pos [][2]float32)) {
//			emit(triangles)
//		})
//	payload, err := frame.Finish()
//	if err != nil {
//		return err
//	}
//	if err := payload.Submit(engine.Queue()); err != nil {
//		return err
//	}
//
// Positions are clip-space coordinates; tessellation and coordinate
// transformation are the caller's responsibility.
//
// # Concurrency
//
// Frame construction is single-threaded: one frame at a time, all frame
// methods from one goroutine. The engine's pipeline table is immutable
// after construction.
package wgpu2d
