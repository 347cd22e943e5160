package wgpu2d

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrNilTexture is returned when a textured submission names a nil or
	// destroyed texture. Detected at submit time so batch ordering is not
	// corrupted by a deferred failure.
	ErrNilTexture = errors.New("wgpu2d: nil or destroyed texture")

	// ErrFrameFinished is returned by frame operations after Finish.
	ErrFrameFinished = errors.New("wgpu2d: frame already finished")

	// ErrFrameInFlight is returned by BeginFrame while a previous frame
	// has not been finished or released.
	ErrFrameInFlight = errors.New("wgpu2d: previous frame still in flight")

	// ErrNoHALDevice is returned by NewFromProvider when the provider does
	// not expose hal device and queue handles.
	ErrNoHALDevice = errors.New("wgpu2d: provider does not expose HAL device")
)

// defaultSoftCapacity is the default per-batch vertex limit: 100 chunks
// of 1024 vertices. A flushed batch never carries more vertices than
// this, bounding the size of any single vertex buffer upload.
const defaultSoftCapacity = 100 * 1024

// Config controls engine construction.
type Config struct {
	// Format is the color format of every output target the engine will
	// draw into. All pipelines are built against it.
	Format gputypes.TextureFormat

	// SoftCapacity is the maximum vertex count per flushed batch. Larger
	// values mean fewer, bigger draw calls. Values below one triangle are
	// replaced by the default.
	SoftCapacity int
}

// DefaultConfig returns the configuration used when fields are left zero:
// BGRA8 output and the default soft capacity.
func DefaultConfig() Config {
	return Config{
		Format:       gputypes.TextureFormatBGRA8Unorm,
		SoftCapacity: defaultSoftCapacity,
	}
}

// Engine owns the pipeline cache and the two vertex accumulators. It is
// long-lived: create one per device+format pair and reuse it for every
// frame. Frame construction is single-threaded; only one frame may be in
// flight at a time.
type Engine struct {
	device hal.Device
	queue  hal.Queue
	config Config

	pipelines *pipelineSet

	// Accumulators are owned here so their byte buffers survive across
	// frames; each Frame borrows them exclusively.
	colored  *batch
	textured *batch

	frameOpen bool
}

// New builds an Engine for the given device and output color format,
// eagerly creating every render pipeline. Construction failure means the
// device rejected a pipeline description; it is not retried.
func New(device hal.Device, queue hal.Queue, config Config) (*Engine, error) {
	if device == nil || queue == nil {
		return nil, errors.New("wgpu2d: nil device or queue")
	}
	if config.Format == gputypes.TextureFormatUndefined {
		config.Format = gputypes.TextureFormatBGRA8Unorm
	}
	if config.SoftCapacity < verticesPerTriangle {
		config.SoftCapacity = defaultSoftCapacity
	}

	pipelines, err := buildPipelines(device, config.Format)
	if err != nil {
		return nil, fmt.Errorf("build pipelines: %w", err)
	}

	return &Engine{
		device:    device,
		queue:     queue,
		config:    config,
		pipelines: pipelines,
		colored:   newBatch(kindColored),
		textured:  newBatch(kindTextured),
	}, nil
}

// NewFromProvider builds an Engine from a shared GPU context provider
// such as gogpu's. The provider's concrete type must expose
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, config Config) (*Engine, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALDevice
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALDevice)
	}
	return New(device, queue, config)
}

// Device returns the hal device the engine was built on.
func (e *Engine) Device() hal.Device { return e.device }

// Queue returns the hal queue the engine submits to.
func (e *Engine) Queue() hal.Queue { return e.queue }

// TextureLayout returns the bind group layout textures must be created
// against to be usable with this engine's textured pipelines.
func (e *Engine) TextureLayout() hal.BindGroupLayout { return e.pipelines.textureLayout }

// BeginFrame starts recording a frame against the given output color
// target. A fresh stencil attachment sized width x height is allocated;
// the target's texture must use the engine's configured format. The
// returned frame must be consumed by Finish or abandoned by Release
// before the next BeginFrame.
func (e *Engine) BeginFrame(width, height uint32, target hal.TextureView) (*Frame, error) {
	if e.frameOpen {
		return nil, ErrFrameInFlight
	}
	f, err := newFrame(e, width, height, target)
	if err != nil {
		return nil, err
	}
	e.frameOpen = true
	return f, nil
}

// Destroy releases the pipeline cache. In-flight frames and textures
// created for this engine must be released first.
func (e *Engine) Destroy() {
	if e.pipelines != nil {
		e.pipelines.Destroy()
		e.pipelines = nil
	}
}
