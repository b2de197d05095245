package rendering

import (
	"errors"
	"fmt"

	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrSurfaceNotCurrent = errors.New("surface could not be made current")

// Surface is the drawable the frame is presented on.
type Surface interface {
	MakeCurrent() error
	Size() (width, height int)
	SwapBuffers()
	DoubleBuffered() bool
}

// FramePresenter draws the textures of the last uploaded frame onto a
// surface.
type FramePresenter struct {
	gl      glapi.GL
	quad    *RenderSurface
	sourceW int
	sourceH int

	ClearColour mgl32.Vec4

	surfaceW  int
	surfaceH  int
	transform mgl32.Mat4
}

func NewFramePresenter(gl glapi.GL, quad *RenderSurface, sourceW, sourceH int, clearColour mgl32.Vec4) *FramePresenter {
	return &FramePresenter{
		gl:          gl,
		quad:        quad,
		sourceW:     sourceW,
		sourceH:     sourceH,
		ClearColour: clearColour,
		transform:   mgl32.Ident4(),
	}
}

// Transform is the matrix used by the last presented frame.
func (p *FramePresenter) Transform() mgl32.Mat4 {
	return p.transform
}

func (p *FramePresenter) PresentFrame(target Surface, program *shaders.ShaderProgram, textures []*StreamingTexture) error {
	err := target.MakeCurrent()
	if err != nil {
		if errors.Is(err, ErrSurfaceNotCurrent) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSurfaceNotCurrent, err)
	}

	width, height := target.Size()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: surface is %dx%d", ErrSurfaceNotCurrent, width, height)
	}

	units := program.SamplerUnits()
	if len(units) != len(textures) {
		panic(fmt.Sprintf("%s program samples %d textures, got %d", program.Variant, len(units), len(textures)))
	}

	if width != p.surfaceW || height != p.surfaceH {
		p.surfaceW, p.surfaceH = width, height
		p.transform = ComputeTransform(width, height, p.sourceW, p.sourceH)
	}

	p.gl.Viewport(0, 0, width, height)
	c := p.ClearColour
	p.gl.ClearColor(c.X(), c.Y(), c.Z(), c.W())
	p.gl.Clear(glapi.COLOR_BUFFER_BIT | glapi.DEPTH_BUFFER_BIT)

	program.Use()
	for i, t := range textures {
		t.Bind(units[i])
	}
	p.gl.UniformMatrix4fv(program.Location(shaders.TransformUniform), (*[16]float32)(&p.transform))

	p.quad.Draw()

	if target.DoubleBuffered() {
		target.SwapBuffers()
	} else {
		p.gl.Flush()
	}
	return nil
}
