package rendering

import (
	"testing"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/fosdem/yuvstream/lib/glapi/glfake"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lumaPlane  = encdec.Plane{Width: 8, Height: 4, BytesPerPixel: 1, Size: 32}
	blockPlane = encdec.Plane{Width: 8, Height: 4, BytesPerPixel: 4, Size: 128}
)

func TestPolicyCheck(t *testing.T) {
	cases := []struct {
		policy FormatPolicy
		plane  encdec.Plane
		ok     bool
	}{
		{FormatPolicies["red_r8"], lumaPlane, true},
		{FormatPolicies["red_red"], lumaPlane, true},
		{FormatPolicies["bgra_rgba8"], blockPlane, true},
		{FormatPolicies["bgra_rgba8_ubyte"], blockPlane, true},
		{FormatPolicies["rgba_rgba8"], blockPlane, true},
		{FormatPolicies["red_r8"], blockPlane, false},
		{FormatPolicies["bgra_rgba8"], lumaPlane, false},
		{FormatPolicy{"bgra_bgra", glapi.BGRA, glapi.BGRA, glapi.UNSIGNED_BYTE}, blockPlane, false},
		{FormatPolicy{"red_rgba8", glapi.RED, glapi.RGBA8, glapi.UNSIGNED_BYTE}, lumaPlane, false},
		{FormatPolicy{"red_rev", glapi.RED, glapi.R8, glapi.UNSIGNED_INT_8_8_8_8_REV}, lumaPlane, false},
	}
	for _, tc := range cases {
		t.Run(tc.policy.Name, func(t *testing.T) {
			err := tc.policy.Check(tc.plane)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var unsupported *UnsupportedFormatError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, tc.policy.PixelFormat, unsupported.Format)
			assert.Equal(t, tc.policy.InternalFormat, unsupported.InternalFormat)
		})
	}
}

func TestPolicyLookup(t *testing.T) {
	p, err := PolicyByName("BGRA_RGBA8")
	require.NoError(t, err)
	assert.Equal(t, uint32(glapi.UNSIGNED_INT_8_8_8_8_REV), p.PixelType)

	_, err = PolicyByName("yuyv")
	assert.Error(t, err)

	assert.Equal(t, "red_r8", DefaultPolicy(shaders.MultiPlane).Name)
	assert.Equal(t, "bgra_rgba8", DefaultPolicy(shaders.PackedBlock).Name)

	var names []string
	for _, p := range PoliciesFor(shaders.PackedBlock) {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"bgra_rgba8", "bgra_rgba8_ubyte", "rgba_rgba8"}, names)
}

func TestNewStreamingTexture(t *testing.T) {
	gl := glfake.New()
	tex, err := NewStreamingTexture(gl, blockPlane, FormatPolicies["bgra_rgba8"])
	require.NoError(t, err)

	ft := gl.Textures[tex.ID()]
	require.NotNil(t, ft)
	assert.Equal(t, 8, ft.Width)
	assert.Equal(t, 4, ft.Height)
	assert.Equal(t, int32(glapi.RGBA8), ft.InternalFormat)
	assert.Equal(t, uint32(glapi.BGRA), ft.Format)
	assert.False(t, tex.Populated())

	_, err = NewStreamingTexture(gl, lumaPlane, FormatPolicies["bgra_rgba8"])
	var unsupported *UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)
}

func TestUpdateFromBuffer(t *testing.T) {
	gl := glfake.New()
	tex, err := NewStreamingTexture(gl, lumaPlane, FormatPolicies["red_r8"])
	require.NoError(t, err)
	buf := NewStagingBuffer(gl, lumaPlane.Size)

	want := make([]byte, lumaPlane.Size)
	for i := range want {
		want[i] = byte(i * 3)
	}
	require.NoError(t, buf.Write(func(dst []byte) error {
		copy(dst, want)
		return nil
	}))

	assert.Panics(t, func() { tex.UpdateFromBuffer(buf, 0, 0, 8, 4) }, "buffer not bound")

	buf.BindAsCopySource()
	assert.Panics(t, func() { tex.UpdateFromBuffer(buf, 1, 0, 8, 4) })
	assert.Panics(t, func() { tex.UpdateFromBuffer(buf, 0, 0, 8, 5) })
	assert.Panics(t, func() { tex.UpdateFromBuffer(buf, -1, 0, 2, 2) })

	tex.UpdateFromBuffer(buf, 0, 0, 8, 4)
	buf.Unbind()

	assert.True(t, tex.Populated())
	assert.Equal(t, want, gl.Textures[tex.ID()].Data)
	assert.Equal(t, glapi.NO_ERROR, int(gl.GetError()))
}

func TestBindBeforeUploadPanics(t *testing.T) {
	gl := glfake.New()
	tex, err := NewStreamingTexture(gl, lumaPlane, FormatPolicies["red_r8"])
	require.NoError(t, err)
	assert.Panics(t, func() { tex.Bind(0) })

	tex.Delete()
	tex.Delete()
	assert.Empty(t, gl.Textures)
}

func TestNewTextures(t *testing.T) {
	gl := glfake.New()
	textures, err := NewTextures(gl, shaders.MultiPlane, 16, 8, FormatPolicies["red_r8"])
	require.NoError(t, err)
	require.Len(t, textures, 3)
	assert.Equal(t, 16, textures[0].Width)
	assert.Equal(t, 8, textures[1].Width)
	assert.Equal(t, 4, textures[2].Height)

	_, err = NewTextures(gl, shaders.MultiPlane, 16, 8, FormatPolicies["rgba_rgba8"])
	assert.Error(t, err)
	assert.Len(t, gl.Textures, 3)
}
