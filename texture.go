package wgpu2d

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// TextureOptions selects sampler behavior for a texture.
type TextureOptions struct {
	WrapU     gputypes.AddressMode
	WrapV     gputypes.AddressMode
	MagFilter gputypes.FilterMode
	MinFilter gputypes.FilterMode
}

// DefaultTextureOptions returns clamp-to-edge wrapping with linear
// filtering.
func DefaultTextureOptions() TextureOptions {
	return TextureOptions{
		WrapU:     gputypes.AddressModeClampToEdge,
		WrapV:     gputypes.AddressModeClampToEdge,
		MagFilter: gputypes.FilterModeLinear,
		MinFilter: gputypes.FilterModeLinear,
	}
}

// Texture is an RGBA8 texture with its sampler and bind group, ready to
// be referenced by textured submissions. Textures belong to the engine
// that created them; batches compare them by pointer identity.
type Texture struct {
	device hal.Device
	queue  hal.Queue

	tex       hal.Texture
	view      hal.TextureView
	sampler   hal.Sampler
	bindGroup hal.BindGroup

	width  uint32
	height uint32
}

// NewTexture creates a width x height RGBA8 texture and uploads the
// given pixel data (4 bytes per pixel, tightly packed rows). The bind
// group is created against the engine's texture layout, so the texture
// works with every textured pipeline of this engine.
func (e *Engine) NewTexture(width, height uint32, rgba []byte, opts TextureOptions) (*Texture, error) {
	if want := int(width) * int(height) * 4; len(rgba) != want {
		return nil, fmt.Errorf("wgpu2d: texture data is %d bytes, want %d", len(rgba), want)
	}

	tex, err := e.device.CreateTexture(&hal.TextureDescriptor{
		Label: "wgpu2d_texture",
		Size: hal.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}

	if err := e.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		rgba,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  width * 4,
			RowsPerImage: height,
		},
		&hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	); err != nil {
		e.device.DestroyTexture(tex)
		return nil, fmt.Errorf("upload texture: %w", err)
	}

	view, err := e.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "wgpu2d_texture_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		e.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture view: %w", err)
	}

	sampler, err := e.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "wgpu2d_sampler",
		AddressModeU: opts.WrapU,
		AddressModeV: opts.WrapV,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    opts.MagFilter,
		MinFilter:    opts.MinFilter,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		e.device.DestroyTextureView(view)
		e.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create sampler: %w", err)
	}

	bindGroup, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "wgpu2d_texture_bind_group",
		Layout: e.pipelines.textureLayout,
		Entries: []gputypes.BindGroupEntry{
			{
				Binding:  0,
				Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
			},
			{
				Binding:  1,
				Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()},
			},
		},
	})
	if err != nil {
		e.device.DestroySampler(sampler)
		e.device.DestroyTextureView(view)
		e.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture bind group: %w", err)
	}

	return &Texture{
		device:    e.device,
		queue:     e.queue,
		tex:       tex,
		view:      view,
		sampler:   sampler,
		bindGroup: bindGroup,
		width:     width,
		height:    height,
	}, nil
}

// NewTextureFromImage converts any image to RGBA8 and creates a texture
// from it.
func (e *Engine) NewTextureFromImage(img image.Image, opts TextureOptions) (*Texture, error) {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		converted := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		xdraw.Copy(converted, image.Point{}, img, b, xdraw.Src, nil)
		rgba = converted
	}
	return e.NewTexture(uint32(b.Dx()), uint32(b.Dy()), rgba.Pix, opts)
}

// Size returns the texture dimensions in pixels.
func (t *Texture) Size() (width, height uint32) {
	return t.width, t.height
}

// Update re-uploads a sub-rectangle of the texture. The data must be
// width x height RGBA8 pixels with tightly packed rows.
func (t *Texture) Update(x, y, width, height uint32, rgba []byte) error {
	if t.bindGroup == nil {
		return ErrNilTexture
	}
	if want := int(width) * int(height) * 4; len(rgba) != want {
		return fmt.Errorf("wgpu2d: texture data is %d bytes, want %d", len(rgba), want)
	}
	// 64-bit sums so adversarial origins cannot wrap past the bounds.
	if uint64(x)+uint64(width) > uint64(t.width) || uint64(y)+uint64(height) > uint64(t.height) {
		return fmt.Errorf("wgpu2d: update region (%d,%d %dx%d) exceeds texture %dx%d",
			x, y, width, height, t.width, t.height)
	}

	if err := t.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: x, Y: y, Z: 0},
		},
		rgba,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  width * 4,
			RowsPerImage: height,
		},
		&hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	); err != nil {
		return fmt.Errorf("upload texture region: %w", err)
	}
	return nil
}

// Destroy releases the texture's resources. The texture must not be
// referenced by an unfinished frame.
func (t *Texture) Destroy() {
	if t.bindGroup != nil {
		t.device.DestroyBindGroup(t.bindGroup)
		t.bindGroup = nil
	}
	if t.sampler != nil {
		t.device.DestroySampler(t.sampler)
		t.sampler = nil
	}
	if t.view != nil {
		t.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		t.device.DestroyTexture(t.tex)
		t.tex = nil
	}
}
