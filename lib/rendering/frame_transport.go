package rendering

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/fosdem/yuvstream/lib/metrics"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
)

const (
	DefaultStagingDepth = 2
	MaxStagingDepth     = 3

	DefaultFenceTimeout = 100 * time.Millisecond
)

type UploaderOptions struct {
	// Depth is the number of staging buffers per texture, 1 to 3.
	Depth        int
	FenceTimeout time.Duration
	Convention   encdec.Convention
	// NoFences is set when the context has no sync objects.
	NoFences bool
}

// FrameUploader moves raw frames through a ring of staging buffers into the
// textures of one shader variant.
type FrameUploader struct {
	gl       glapi.GL
	input    encdec.PixelLayout
	width    int
	height   int
	variant  shaders.Variant
	textures []*StreamingTexture
	opts     UploaderOptions

	// ring[slot][texture]
	ring [][]*StagingBuffer
	slot int

	log *slog.Logger
}

func NewFrameUploader(
	gl glapi.GL,
	input encdec.PixelLayout,
	width, height int,
	variant shaders.Variant,
	textures []*StreamingTexture,
	opts UploaderOptions,
) (*FrameUploader, error) {
	if opts.Depth == 0 {
		opts.Depth = DefaultStagingDepth
	}
	if opts.Depth < 1 || opts.Depth > MaxStagingDepth {
		return nil, fmt.Errorf("staging depth must be between 1 and %d, got %d", MaxStagingDepth, opts.Depth)
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = DefaultFenceTimeout
	}
	if input.Order != encdec.Planar || input.NumPlanes() != 3 {
		return nil, fmt.Errorf("cannot upload frames of layout %s", input)
	}
	if opts.Convention == (encdec.Convention{}) {
		opts.Convention = encdec.DefaultConvention
	}
	if variant == shaders.PackedBlock {
		err := opts.Convention.Validate()
		if err != nil {
			return nil, fmt.Errorf("invalid texel convention: %w", err)
		}
	}

	want, err := variant.Spec().Layout.Planes(width, height)
	if err != nil {
		return nil, err
	}
	if len(textures) != len(want) {
		return nil, fmt.Errorf("%s needs %d textures, got %d", variant, len(want), len(textures))
	}
	for i, t := range textures {
		if t.Width != want[i].Width || t.Height != want[i].Height || t.Plane.BytesPerPixel != want[i].BytesPerPixel {
			return nil, fmt.Errorf("texture %d is %dx%d, need %dx%d", i, t.Width, t.Height, want[i].Width, want[i].Height)
		}
	}

	u := &FrameUploader{
		gl:       gl,
		input:    input,
		width:    width,
		height:   height,
		variant:  variant,
		textures: textures,
		opts:     opts,
		log:      slog.With("module", "uploader"),
	}

	u.ring = make([][]*StagingBuffer, opts.Depth)
	for slot := range u.ring {
		u.ring[slot] = make([]*StagingBuffer, len(textures))
		for i, t := range textures {
			b := NewStagingBuffer(gl, t.Plane.Size)
			if opts.NoFences {
				b.DisableFences()
			}
			u.ring[slot][i] = b
		}
	}

	u.log.Debug(fmt.Sprintf("allocated %d staging slots for %s %dx%d", opts.Depth, variant, width, height))
	return u, nil
}

// Slot is the ring slot the next frame will be written to.
func (u *FrameUploader) Slot() int {
	return u.slot
}

func (u *FrameUploader) Depth() int {
	return len(u.ring)
}

// Buffers returns every staging buffer, slot by slot.
func (u *FrameUploader) Buffers() []*StagingBuffer {
	var out []*StagingBuffer
	for _, slot := range u.ring {
		out = append(out, slot...)
	}
	return out
}

// UploadFrame writes raw into the current ring slot and starts the copy into
// the textures. The textures keep their previous contents on error.
func (u *FrameUploader) UploadFrame(raw []byte) error {
	err := u.input.Check(u.width, u.height, raw)
	if err != nil {
		return err
	}

	buffers := u.ring[u.slot]

	start := time.Now()
	for _, b := range buffers {
		err = b.Await(u.opts.FenceTimeout)
		if err != nil {
			return fmt.Errorf("staging slot %d: %w", u.slot, err)
		}
	}
	metrics.StagingWait.Observe(time.Since(start).Seconds())

	planes, err := encdec.SplitPlanar(raw, u.input, u.width, u.height)
	if err != nil {
		return err
	}

	switch u.variant {
	case shaders.MultiPlane:
		for i, b := range buffers {
			err = b.Write(func(dst []byte) error {
				copy(dst, planes[i])
				return nil
			})
			if err != nil {
				return err
			}
		}
	case shaders.PackedBlock:
		err = buffers[0].Write(func(dst []byte) error {
			encdec.RepackBlock(dst, planes, u.input, u.width, u.height, u.opts.Convention)
			return nil
		})
		if err != nil {
			return err
		}
	default:
		panic("unknown shader variant")
	}

	var written int
	for i, b := range buffers {
		t := u.textures[i]
		b.BindAsCopySource()
		t.UpdateFromBuffer(b, 0, 0, t.Width, t.Height)
		b.Unbind()
		b.MarkInFlight()
		written += b.Capacity()
	}
	metrics.UploadBytes.Add(float64(written))

	u.slot = (u.slot + 1) % len(u.ring)
	return nil
}

// WaitIdle blocks until every staging buffer has left the GPU.
func (u *FrameUploader) WaitIdle(timeout time.Duration) error {
	for _, b := range u.Buffers() {
		err := b.Await(timeout)
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *FrameUploader) Delete() {
	for _, b := range u.Buffers() {
		b.Delete()
	}
	u.ring = nil
}
