// Package pipeline streams raw I420 frames into GPU textures and presents
// them on a surface.
//
// All methods must be called from the thread that owns the GL context.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/fosdem/yuvstream/lib/metrics"
	"github.com/fosdem/yuvstream/lib/rendering"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoFrame is returned by PresentFrame before the first successful upload.
var ErrNoFrame = errors.New("no frame uploaded yet")

var ErrStartupTimeout = errors.New("GPU did not signal a fence during startup")

const DefaultStartupTimeout = 2 * time.Second

type Options struct {
	Width  int
	Height int
	// Layout of the raw frames, I420 when unset
	Layout  encdec.PixelLayout
	Variant shaders.Variant
	// Policy of the textures, the variant's default when Name is empty
	Policy         rendering.FormatPolicy
	StagingBuffers int
	FenceTimeout   time.Duration
	StartupTimeout time.Duration
	// Convention of packed texels, encdec.DefaultConvention when unset
	Convention      encdec.Convention
	ClearColour     mgl32.Vec4
	ValidateShaders bool
	ShaderDumpDir   string
}

type Pipeline struct {
	gl      glapi.GL
	surface rendering.Surface
	opts    Options
	caps    rendering.Capabilities

	program   *shaders.ShaderProgram
	textures  []*rendering.StreamingTexture
	uploader  *rendering.FrameUploader
	quad      *rendering.RenderSurface
	presenter *rendering.FramePresenter

	metrics  metrics.PipelineMetrics
	log      *slog.Logger
	uploaded bool
}

// Initialize builds everything needed to stream frames of opts.Width x
// opts.Height onto surface. Every error it returns is fatal.
func Initialize(gl glapi.GL, surface rendering.Surface, caps rendering.CapabilityQuery, opts Options) (*Pipeline, error) {
	if opts.Layout.Name == "" {
		opts.Layout = encdec.I420
	}
	if opts.Convention == (encdec.Convention{}) {
		opts.Convention = encdec.DefaultConvention
	}
	if opts.Policy.Name == "" {
		opts.Policy = rendering.DefaultPolicy(opts.Variant)
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}

	p := &Pipeline{
		gl:      gl,
		surface: surface,
		opts:    opts,
		metrics: metrics.NewPipelineMetrics(opts.Variant.String()),
		log:     slog.With("module", "pipeline"),
	}
	ready := false
	defer func() {
		if !ready {
			p.Shutdown()
		}
	}()

	err := surface.MakeCurrent()
	if err != nil {
		return nil, fmt.Errorf("could not make surface current: %w", err)
	}

	p.caps, err = rendering.CheckCapabilities(gl, caps)
	if err != nil {
		return nil, err
	}

	_, err = opts.Layout.FrameSize(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}

	err = opts.Policy.Check(encdec.Plane{BytesPerPixel: opts.Variant.Spec().Layout.BytesPerPixel})
	if err != nil {
		return nil, err
	}

	p.program, err = shaders.New(gl, opts.Variant, shaders.Options{
		PixelFormat: opts.Policy.PixelFormat,
		Convention:  opts.Convention,
		DumpDir:     opts.ShaderDumpDir,
		Validate:    opts.ValidateShaders,
	})
	if err != nil {
		return nil, err
	}

	p.textures, err = rendering.NewTextures(gl, opts.Variant, opts.Width, opts.Height, opts.Policy)
	if err != nil {
		return nil, err
	}

	p.uploader, err = rendering.NewFrameUploader(gl, opts.Layout, opts.Width, opts.Height, opts.Variant, p.textures, rendering.UploaderOptions{
		Depth:        opts.StagingBuffers,
		FenceTimeout: opts.FenceTimeout,
		Convention:   opts.Convention,
		NoFences:     !p.caps.Sync,
	})
	if err != nil {
		return nil, err
	}

	p.quad = rendering.Reserve(gl,
		p.program.Location(shaders.PositionAttribute),
		p.program.Location(shaders.TexcoordAttribute),
	)
	p.presenter = rendering.NewFramePresenter(gl, p.quad, opts.Width, opts.Height, opts.ClearColour)

	if p.caps.Sync {
		err = p.awaitStartupFence()
		if err != nil {
			return nil, err
		}
	}

	p.log.Info(fmt.Sprintf("streaming %s %dx%d through %s textures (%s), %d staging buffers per plane",
		opts.Layout.Name, opts.Width, opts.Height, opts.Variant, opts.Policy.Name, p.uploader.Depth()))
	ready = true
	return p, nil
}

func (p *Pipeline) awaitStartupFence() error {
	fence := p.gl.FenceSync()
	defer p.gl.DeleteSync(fence)

	switch r := p.gl.ClientWaitSync(fence, p.opts.StartupTimeout); r {
	case glapi.ALREADY_SIGNALED, glapi.CONDITION_SATISFIED:
		return nil
	default:
		return fmt.Errorf("%w within %s (%s)", ErrStartupTimeout, p.opts.StartupTimeout, glapi.EnumName(r))
	}
}

// UploadFrame copies raw into the textures. On error the frame is dropped
// and the previous one stays on screen.
func (p *Pipeline) UploadFrame(raw []byte) error {
	err := p.uploader.UploadFrame(raw)
	if err != nil {
		p.drop(err)
		return err
	}
	p.uploaded = true
	p.metrics.FramesUploaded.Inc()
	return nil
}

// PresentFrame draws the last uploaded frame.
func (p *Pipeline) PresentFrame() error {
	if !p.uploaded {
		return ErrNoFrame
	}
	err := p.presenter.PresentFrame(p.surface, p.program, p.textures)
	if err != nil {
		p.drop(err)
		return err
	}
	p.metrics.FramesPresented.Inc()
	return nil
}

func (p *Pipeline) drop(err error) {
	var sizeErr *encdec.SizeMismatchError
	var mapErr *rendering.MapError

	reason := metrics.DropMapFailed
	switch {
	case errors.As(err, &sizeErr):
		reason = metrics.DropSizeMismatch
	case errors.As(err, &mapErr) && mapErr.Reason == rendering.InFlight:
		reason = metrics.DropInFlight
	case errors.Is(err, rendering.ErrSurfaceNotCurrent):
		reason = metrics.DropSurfaceNotCurrent
	}
	metrics.Dropped(reason)
	p.log.Warn(fmt.Sprintf("dropping frame: %s", err), "reason", reason)
}

func (p *Pipeline) Variant() shaders.Variant {
	return p.opts.Variant
}

func (p *Pipeline) Capabilities() rendering.Capabilities {
	return p.caps
}

func (p *Pipeline) Textures() []*rendering.StreamingTexture {
	return p.textures
}

func (p *Pipeline) Program() *shaders.ShaderProgram {
	return p.program
}

func (p *Pipeline) Uploader() *rendering.FrameUploader {
	return p.uploader
}

// FrameSize is the number of bytes UploadFrame expects.
func (p *Pipeline) FrameSize() int {
	n, _ := p.opts.Layout.FrameSize(p.opts.Width, p.opts.Height)
	return n
}

// Shutdown releases every GL object. It is safe to call more than once.
func (p *Pipeline) Shutdown() {
	if p.uploader != nil {
		p.uploader.Delete()
		p.uploader = nil
	}
	for _, t := range p.textures {
		t.Delete()
	}
	p.textures = nil
	if p.quad != nil {
		p.quad.Delete()
		p.quad = nil
	}
	if p.program != nil {
		p.program.Delete()
		p.program = nil
	}
	p.uploaded = false
}
