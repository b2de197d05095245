package shaders

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/glapi"
)

// Variant selects how the YUV samples reach the fragment shader.
type Variant int

const (
	// MultiPlane samples one single-channel texture per plane.
	MultiPlane Variant = iota
	// PackedBlock samples one 4-channel texture holding Y, U and V per texel.
	PackedBlock
)

func (v Variant) String() string {
	switch v {
	case MultiPlane:
		return "multi_plane"
	case PackedBlock:
		return "packed_block"
	default:
		panic("unknown shader variant")
	}
}

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "multi_plane", "multiplane", "planes":
		return MultiPlane, nil
	case "packed_block", "block":
		return PackedBlock, nil
	default:
		return 0, fmt.Errorf("unknown shader variant: %s", s)
	}
}

// VariantSpec is everything that differs between the variants.
type VariantSpec struct {
	VertexTemplate   string
	FragmentTemplate string
	Samplers         []string
	// Layout of the textures the samplers read from
	Layout encdec.PixelLayout
}

var variantSpecs = map[Variant]VariantSpec{
	MultiPlane: {
		VertexTemplate:   "screen.vert",
		FragmentTemplate: "multiplane.frag",
		Samplers:         []string{"texy", "texu", "texv"},
		Layout:           encdec.I420,
	},
	PackedBlock: {
		VertexTemplate:   "screen.vert",
		FragmentTemplate: "block.frag",
		Samplers:         []string{"texBlock"},
		Layout:           encdec.BlockYUVA,
	},
}

func (v Variant) Spec() VariantSpec {
	spec, ok := variantSpecs[v]
	if !ok {
		panic(fmt.Sprintf("no spec for shader variant %d", v))
	}
	return spec
}

var (
	PositionAttribute = Symbol{Role: Attribute, Name: "position"}
	TexcoordAttribute = Symbol{Role: Attribute, Name: "texcoord"}
	TransformUniform  = Symbol{Role: Uniform, Name: "transform"}
)

type Options struct {
	// PixelFormat the packed block is uploaded with (glapi.BGRA or glapi.RGBA).
	PixelFormat uint32
	Convention  encdec.Convention
	// DumpDir receives the rendered sources when set.
	DumpDir  string
	Validate bool
}

// Swizzle returns the GLSL component selector that yields (Y, U, V) from a
// texel whose bytes follow c and were uploaded as pixelFormat.
func Swizzle(c encdec.Convention, pixelFormat uint32) (string, error) {
	var components string
	switch pixelFormat {
	case glapi.BGRA:
		components = "bgra"
	case glapi.RGBA:
		components = "rgba"
	default:
		return "", fmt.Errorf("cannot derive a swizzle for pixel format %s", glapi.EnumName(pixelFormat))
	}
	err := c.Validate()
	if err != nil {
		return "", err
	}
	return string([]byte{components[c.Y], components[c.U], components[c.V]}), nil
}

// ShaderProgram is a Program built for one Variant.
type ShaderProgram struct {
	*Program

	Variant Variant
	spec    VariantSpec
	opts    Options

	VertexSource   string
	FragmentSource string
}

// New renders, compiles and links the program for variant, resolves its
// symbols and assigns sampler units.
func New(gl glapi.GL, variant Variant, opts Options) (*ShaderProgram, error) {
	sp, err := newProgramShell(variant, opts)
	if err != nil {
		return nil, err
	}
	err = sp.finishInitialization(gl)
	if err != nil {
		return nil, fmt.Errorf("could not init %s shader: %w", variant, err)
	}
	return sp, nil
}

func newProgramShell(variant Variant, opts Options) (*ShaderProgram, error) {
	sp := &ShaderProgram{
		Variant: variant,
		spec:    variant.Spec(),
		opts:    opts,
	}

	data := &ShaderData{Samplers: sp.spec.Samplers}
	if variant == PackedBlock {
		swizzle, err := Swizzle(opts.Convention, opts.PixelFormat)
		if err != nil {
			return nil, err
		}
		data.Swizzle = swizzle
	}

	shaderer, err := NewShaderer()
	if err != nil {
		return nil, fmt.Errorf("could not get shaders: %w", err)
	}

	sp.VertexSource, err = shaderer.GetShaderSource(sp.spec.VertexTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("could not get vertex shader: %w", err)
	}

	sp.FragmentSource, err = shaderer.GetShaderSource(sp.spec.FragmentTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("could not get fragment shader: %w", err)
	}

	if opts.DumpDir != "" {
		writeFileDebug(opts.DumpDir, variant.String()+".vert", sp.VertexSource)
		writeFileDebug(opts.DumpDir, variant.String()+".frag", sp.FragmentSource)
	}

	return sp, nil
}

func (sp *ShaderProgram) finishInitialization(gl glapi.GL) error {
	var err error
	sp.Program, err = Compile(gl, sp.VertexSource, sp.FragmentSource)
	if err != nil {
		return err
	}

	sp.Use()

	err = sp.ResolveLocations(sp.Symbols())
	if err != nil {
		sp.Delete()
		return err
	}

	for unit, name := range sp.spec.Samplers {
		gl.Uniform1i(sp.Location(Symbol{Role: Uniform, Name: name}), int32(unit))
	}

	if sp.opts.Validate {
		err = sp.Validate()
		if err != nil {
			slog.Warn(err.Error(), "module", "shaders", "variant", sp.Variant)
		}
	}

	return nil
}

// Symbols lists every symbol the host sets on this program.
func (sp *ShaderProgram) Symbols() []Symbol {
	symbols := []Symbol{PositionAttribute, TexcoordAttribute, TransformUniform}
	for _, name := range sp.spec.Samplers {
		symbols = append(symbols, Symbol{Role: Uniform, Name: name})
	}
	return symbols
}

// SamplerUnits gives the texture unit of each sampler, in plane order.
func (sp *ShaderProgram) SamplerUnits() []uint32 {
	units := make([]uint32, len(sp.spec.Samplers))
	for i := range units {
		units[i] = uint32(i)
	}
	return units
}

func (sp *ShaderProgram) Spec() VariantSpec {
	return sp.spec
}
