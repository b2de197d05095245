package rendering

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
)

// FormatPolicy is the pixel format, internal format and pixel type used to
// create and fill a texture. Drivers take very different paths depending on
// the combination, so it is chosen by name and measured with the benchmark.
type FormatPolicy struct {
	Name           string
	PixelFormat    uint32
	InternalFormat int32
	PixelType      uint32
}

var FormatPolicies = map[string]FormatPolicy{
	"red_r8":           {"red_r8", glapi.RED, glapi.R8, glapi.UNSIGNED_BYTE},
	"red_red":          {"red_red", glapi.RED, glapi.RED, glapi.UNSIGNED_BYTE},
	"bgra_rgba8":       {"bgra_rgba8", glapi.BGRA, glapi.RGBA8, glapi.UNSIGNED_INT_8_8_8_8_REV},
	"bgra_rgba8_ubyte": {"bgra_rgba8_ubyte", glapi.BGRA, glapi.RGBA8, glapi.UNSIGNED_BYTE},
	"rgba_rgba8":       {"rgba_rgba8", glapi.RGBA, glapi.RGBA8, glapi.UNSIGNED_BYTE},
}

// internal formats each pixel format may be stored as
var allowedInternalFormats = map[uint32][]int32{
	glapi.RED:  {glapi.R8, glapi.RED},
	glapi.RGBA: {glapi.RGBA8, glapi.RGBA},
	glapi.BGRA: {glapi.RGBA8, glapi.RGBA},
}

func PolicyByName(name string) (FormatPolicy, error) {
	p, ok := FormatPolicies[strings.ToLower(name)]
	if !ok {
		return FormatPolicy{}, fmt.Errorf("unknown texture format policy: %s", name)
	}
	return p, nil
}

// PolicyNames returns the registered policy names, sorted.
func PolicyNames() []string {
	var names []string
	for n := range FormatPolicies {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func DefaultPolicy(variant shaders.Variant) FormatPolicy {
	switch variant {
	case shaders.MultiPlane:
		return FormatPolicies["red_r8"]
	case shaders.PackedBlock:
		return FormatPolicies["bgra_rgba8"]
	default:
		panic("unknown shader variant")
	}
}

// PoliciesFor lists the policies that can hold the planes of variant.
func PoliciesFor(variant shaders.Variant) []FormatPolicy {
	bpp := variant.Spec().Layout.BytesPerPixel
	var out []FormatPolicy
	for _, name := range PolicyNames() {
		p := FormatPolicies[name]
		if p.bytesPerPixel() == bpp {
			out = append(out, p)
		}
	}
	return out
}

func (p FormatPolicy) bytesPerPixel() int {
	return glapi.BytesPerPixel(p.PixelFormat, p.PixelType)
}

func (p FormatPolicy) String() string {
	return fmt.Sprintf("%s (%s/%s/%s)", p.Name,
		glapi.EnumName(p.PixelFormat), glapi.EnumName(uint32(p.InternalFormat)), glapi.EnumName(p.PixelType))
}

type UnsupportedFormatError struct {
	Format         uint32
	InternalFormat int32
	Reason         string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported texture format %s with internal format %s: %s",
		glapi.EnumName(e.Format), glapi.EnumName(uint32(e.InternalFormat)), e.Reason)
}

// Check verifies the policy can hold texels of the given size.
func (p FormatPolicy) Check(plane encdec.Plane) error {
	allowed, ok := allowedInternalFormats[p.PixelFormat]
	if !ok {
		return &UnsupportedFormatError{Format: p.PixelFormat, InternalFormat: p.InternalFormat, Reason: "unknown pixel format"}
	}
	if !slices.Contains(allowed, p.InternalFormat) {
		return &UnsupportedFormatError{Format: p.PixelFormat, InternalFormat: p.InternalFormat, Reason: "internal format not allowed for pixel format"}
	}
	bpp := p.bytesPerPixel()
	if bpp == 0 {
		return &UnsupportedFormatError{Format: p.PixelFormat, InternalFormat: p.InternalFormat, Reason: "pixel type " + glapi.EnumName(p.PixelType) + " not allowed for pixel format"}
	}
	if bpp != plane.BytesPerPixel {
		return &UnsupportedFormatError{
			Format: p.PixelFormat, InternalFormat: p.InternalFormat,
			Reason: fmt.Sprintf("texel is %d bytes but the plane has %d", bpp, plane.BytesPerPixel),
		}
	}
	return nil
}

// TextureUploadCounter counts bytes copied from staging buffers into textures.
var TextureUploadCounter atomic.Uint64

// StreamingTexture is a texture whose contents are replaced every frame from
// a staging buffer. Its size and format never change.
type StreamingTexture struct {
	gl glapi.GL
	id uint32

	Width  int
	Height int
	Plane  encdec.Plane
	Policy FormatPolicy

	populated bool
}

func NewStreamingTexture(gl glapi.GL, plane encdec.Plane, policy FormatPolicy) (*StreamingTexture, error) {
	err := policy.Check(plane)
	if err != nil {
		return nil, err
	}

	t := &StreamingTexture{
		gl:     gl,
		Width:  plane.Width,
		Height: plane.Height,
		Plane:  plane,
		Policy: policy,
	}

	t.id = gl.GenTexture()
	gl.ActiveTexture(glapi.TEXTURE0)
	gl.BindTexture(glapi.TEXTURE_2D, t.id)
	gl.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MIN_FILTER, glapi.LINEAR)
	gl.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MAG_FILTER, glapi.LINEAR)

	// this is to compensate for floating-point errors on x==0/y==0
	gl.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
	gl.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)

	gl.TexImage2D(glapi.TEXTURE_2D, policy.InternalFormat, t.Width, t.Height, policy.PixelFormat, policy.PixelType)
	gl.BindTexture(glapi.TEXTURE_2D, 0)

	return t, nil
}

// NewTextures creates the textures a variant samples from for frames of
// width x height.
func NewTextures(gl glapi.GL, variant shaders.Variant, width, height int, policy FormatPolicy) ([]*StreamingTexture, error) {
	planes, err := variant.Spec().Layout.Planes(width, height)
	if err != nil {
		return nil, err
	}
	var textures []*StreamingTexture
	for _, plane := range planes {
		t, err := NewStreamingTexture(gl, plane, policy)
		if err != nil {
			for _, t := range textures {
				t.Delete()
			}
			return nil, err
		}
		textures = append(textures, t)
	}
	return textures, nil
}

func (t *StreamingTexture) ID() uint32 {
	return t.id
}

// UpdateFromBuffer copies a region from the start of buf, which must be
// bound as copy source.
func (t *StreamingTexture) UpdateFromBuffer(buf *StagingBuffer, x, y, width, height int) {
	if x < 0 || y < 0 || width < 1 || height < 1 || x+width > t.Width || y+height > t.Height {
		panic(fmt.Sprintf("region %dx%d+%d+%d outside of %dx%d texture", width, height, x, y, t.Width, t.Height))
	}
	if !buf.Bound() {
		panic(fmt.Sprintf("staging buffer %d is not bound as copy source", buf.ID()))
	}
	size := width * height * t.Plane.BytesPerPixel
	if size > buf.Capacity() {
		panic(fmt.Sprintf("region needs %d bytes but staging buffer holds %d", size, buf.Capacity()))
	}

	t.gl.ActiveTexture(glapi.TEXTURE0)
	t.gl.BindTexture(glapi.TEXTURE_2D, t.id)
	t.gl.PixelStorei(glapi.UNPACK_ALIGNMENT, 1)
	t.gl.TexSubImage2DFromBuffer(glapi.TEXTURE_2D, x, y, width, height, t.Policy.PixelFormat, t.Policy.PixelType, 0)
	t.populated = true
	TextureUploadCounter.Add(uint64(size))
}

// Bind attaches the texture to a texture unit for sampling.
func (t *StreamingTexture) Bind(unit uint32) {
	if !t.populated {
		panic(fmt.Sprintf("texture %d sampled before anything was copied into it", t.id))
	}
	t.gl.ActiveTexture(glapi.TEXTURE0 + unit)
	t.gl.BindTexture(glapi.TEXTURE_2D, t.id)
}

func (t *StreamingTexture) Populated() bool {
	return t.populated
}

func (t *StreamingTexture) Delete() {
	if t.id == 0 {
		return
	}
	t.gl.DeleteTexture(t.id)
	t.id = 0
	t.populated = false
}
