package wgpu2d

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// createTestEngine builds an engine on a noop device with the given
// soft capacity.
func createTestEngine(t *testing.T, capacity int) (*Engine, func()) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	engine, err := New(device, queue, Config{SoftCapacity: capacity})
	if err != nil {
		cleanup()
		t.Fatalf("New failed: %v", err)
	}
	return engine, func() {
		engine.Destroy()
		cleanup()
	}
}

// createTestTarget creates a render-attachment texture view sized w x h.
func createTestTarget(t *testing.T, device hal.Device, w, h uint32) (hal.TextureView, func()) {
	t.Helper()
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "test_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "test_target_view",
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		t.Fatalf("CreateTextureView failed: %v", err)
	}
	return view, func() {
		device.DestroyTextureView(view)
		device.DestroyTexture(tex)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, DefaultConfig()); err == nil {
		t.Error("New(nil, nil) succeeded, want error")
	}
}

func TestNewDefaultsConfig(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	engine, err := New(device, queue, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer engine.Destroy()

	if engine.config.Format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Format = %v, want BGRA8Unorm", engine.config.Format)
	}
	if engine.config.SoftCapacity != defaultSoftCapacity {
		t.Errorf("SoftCapacity = %d, want %d", engine.config.SoftCapacity, defaultSoftCapacity)
	}
}

func TestEngineAccessors(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	engine, err := New(device, queue, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer engine.Destroy()

	if engine.Device() != device {
		t.Error("Device() does not return the construction device")
	}
	if engine.Queue() != queue {
		t.Error("Queue() does not return the construction queue")
	}
	if engine.TextureLayout() == nil {
		t.Error("TextureLayout() = nil")
	}
}

func TestSingleFrameInFlight(t *testing.T) {
	engine, cleanup := createTestEngine(t, 0)
	defer cleanup()
	target, targetCleanup := createTestTarget(t, engine.Device(), 64, 64)
	defer targetCleanup()

	frame, err := engine.BeginFrame(64, 64, target)
	if err != nil {
		t.Fatalf("BeginFrame failed: %v", err)
	}

	if _, err := engine.BeginFrame(64, 64, target); !errors.Is(err, ErrFrameInFlight) {
		t.Errorf("second BeginFrame error = %v, want ErrFrameInFlight", err)
	}

	payload, err := frame.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	payload.Release()

	// A finished frame frees the slot.
	frame2, err := engine.BeginFrame(64, 64, target)
	if err != nil {
		t.Fatalf("BeginFrame after Finish failed: %v", err)
	}
	frame2.Release()
}

func TestBeginFrameNilTarget(t *testing.T) {
	engine, cleanup := createTestEngine(t, 0)
	defer cleanup()

	if _, err := engine.BeginFrame(64, 64, nil); err == nil {
		t.Error("BeginFrame(nil target) succeeded, want error")
	}
}

func TestReleaseFreesFrameSlot(t *testing.T) {
	engine, cleanup := createTestEngine(t, 0)
	defer cleanup()
	target, targetCleanup := createTestTarget(t, engine.Device(), 32, 32)
	defer targetCleanup()

	frame, err := engine.BeginFrame(32, 32, target)
	if err != nil {
		t.Fatalf("BeginFrame failed: %v", err)
	}
	frame.Release()

	frame2, err := engine.BeginFrame(32, 32, target)
	if err != nil {
		t.Fatalf("BeginFrame after Release failed: %v", err)
	}
	frame2.Release()
}
