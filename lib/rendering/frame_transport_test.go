package rendering

import (
	"slices"
	"testing"
	"time"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/fosdem/yuvstream/lib/glapi/glfake"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(width, height int, seed byte) []byte {
	n, err := encdec.I420.FrameSize(width, height)
	if err != nil {
		panic(err)
	}
	frame := make([]byte, n)
	for i := range frame {
		frame[i] = byte(i*7) + seed
	}
	return frame
}

func newUploader(t *testing.T, gl *glfake.GL, variant shaders.Variant, width, height int, opts UploaderOptions) (*FrameUploader, []*StreamingTexture) {
	t.Helper()
	textures, err := NewTextures(gl, variant, width, height, DefaultPolicy(variant))
	require.NoError(t, err)
	u, err := NewFrameUploader(gl, encdec.I420, width, height, variant, textures, opts)
	require.NoError(t, err)
	return u, textures
}

func TestUploadMultiPlane(t *testing.T) {
	gl := glfake.New()
	u, textures := newUploader(t, gl, shaders.MultiPlane, 16, 8, UploaderOptions{})
	assert.Equal(t, DefaultStagingDepth, u.Depth())
	assert.Len(t, u.Buffers(), 6)

	frame := testFrame(16, 8, 0)
	require.NoError(t, u.UploadFrame(frame))

	planes, err := encdec.SplitPlanar(frame, encdec.I420, 16, 8)
	require.NoError(t, err)
	for i, tex := range textures {
		assert.Equal(t, planes[i], gl.Textures[tex.ID()].Data, "plane %d", i)
		assert.True(t, tex.Populated())
	}
	assert.Equal(t, 1, u.Slot())
	assert.Zero(t, gl.Bound(glapi.PIXEL_UNPACK_BUFFER))
	assert.Equal(t, 3, gl.PendingFences())
	assert.Equal(t, glapi.NO_ERROR, int(gl.GetError()))
}

func TestUploadPackedBlock(t *testing.T) {
	gl := glfake.New()
	u, textures := newUploader(t, gl, shaders.PackedBlock, 16, 8, UploaderOptions{Convention: encdec.DefaultConvention})
	require.Len(t, textures, 1)

	frame := testFrame(16, 8, 3)
	require.NoError(t, u.UploadFrame(frame))

	planes, err := encdec.SplitPlanar(frame, encdec.I420, 16, 8)
	require.NoError(t, err)
	want := make([]byte, 16*8*4)
	encdec.RepackBlock(want, planes, encdec.I420, 16, 8, encdec.DefaultConvention)
	got := gl.Textures[textures[0].ID()].Data
	assert.Equal(t, want, got)

	back, err := encdec.UnpackBlock(got, encdec.I420, 16, 8, encdec.DefaultConvention)
	require.NoError(t, err)
	assert.Equal(t, frame, back)
}

func TestUploadSizeMismatchKeepsTextures(t *testing.T) {
	gl := glfake.New()
	u, textures := newUploader(t, gl, shaders.MultiPlane, 16, 8, UploaderOptions{})

	frame := testFrame(16, 8, 1)
	require.NoError(t, u.UploadFrame(frame))
	before := slices.Clone(gl.Textures[textures[0].ID()].Data)

	err := u.UploadFrame(make([]byte, 100))
	var sizeErr *encdec.SizeMismatchError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 100, sizeErr.Got)
	assert.Equal(t, before, gl.Textures[textures[0].ID()].Data)
	assert.Equal(t, 1, u.Slot())
}

func TestRingRotation(t *testing.T) {
	gl := glfake.New()
	gl.HoldFences = true
	u, textures := newUploader(t, gl, shaders.MultiPlane, 16, 8, UploaderOptions{Depth: 2, FenceTimeout: time.Millisecond})

	first := u.ring[0][0].ID()
	second := u.ring[1][0].ID()
	assert.NotEqual(t, first, second)

	require.NoError(t, u.UploadFrame(testFrame(16, 8, 1)))
	require.NoError(t, u.UploadFrame(testFrame(16, 8, 2)))
	assert.Equal(t, 0, u.Slot())
	latest := slices.Clone(gl.Textures[textures[0].ID()].Data)

	// both slots are still owned by the GPU
	err := u.UploadFrame(testFrame(16, 8, 3))
	var mapErr *MapError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, InFlight, mapErr.Reason)
	assert.Equal(t, 0, u.Slot())
	assert.Equal(t, latest, gl.Textures[textures[0].ID()].Data)

	gl.HoldFences = false
	require.NoError(t, u.UploadFrame(testFrame(16, 8, 3)))
	assert.Equal(t, 1, u.Slot())
	assert.NoError(t, u.WaitIdle(time.Millisecond))
}

func TestSingleBufferedRing(t *testing.T) {
	gl := glfake.New()
	u, _ := newUploader(t, gl, shaders.MultiPlane, 16, 8, UploaderOptions{Depth: 1})
	for i := range 3 {
		require.NoError(t, u.UploadFrame(testFrame(16, 8, byte(i))))
		assert.Equal(t, 0, u.Slot())
	}
}

func TestUploaderWithoutFences(t *testing.T) {
	gl := glfake.New()
	gl.HoldFences = true
	u, _ := newUploader(t, gl, shaders.MultiPlane, 16, 8, UploaderOptions{Depth: 1, NoFences: true})
	for i := range 3 {
		require.NoError(t, u.UploadFrame(testFrame(16, 8, byte(i))))
	}
	assert.Zero(t, gl.PendingFences())
}

func TestUploaderOptionsValidation(t *testing.T) {
	gl := glfake.New()
	textures, err := NewTextures(gl, shaders.MultiPlane, 16, 8, DefaultPolicy(shaders.MultiPlane))
	require.NoError(t, err)

	_, err = NewFrameUploader(gl, encdec.I420, 16, 8, shaders.MultiPlane, textures, UploaderOptions{Depth: 4})
	assert.Error(t, err)
	_, err = NewFrameUploader(gl, encdec.I420, 16, 8, shaders.MultiPlane, textures[:2], UploaderOptions{})
	assert.Error(t, err)
	_, err = NewFrameUploader(gl, encdec.I420, 32, 8, shaders.MultiPlane, textures, UploaderOptions{})
	assert.Error(t, err)
	_, err = NewFrameUploader(gl, encdec.BlockYUVA, 16, 8, shaders.MultiPlane, textures, UploaderOptions{})
	assert.Error(t, err)
}

func TestUploaderDelete(t *testing.T) {
	gl := glfake.New()
	u, textures := newUploader(t, gl, shaders.MultiPlane, 16, 8, UploaderOptions{})
	require.NoError(t, u.UploadFrame(testFrame(16, 8, 0)))
	u.Delete()
	for _, tex := range textures {
		tex.Delete()
	}
	assert.Zero(t, gl.LiveObjects())
	assert.Zero(t, gl.PendingFences())
}

func TestBenchmarkPolicy(t *testing.T) {
	gl := glfake.New()
	for _, p := range PoliciesFor(shaders.PackedBlock) {
		r, err := BenchmarkPolicy(gl, shaders.PackedBlock, p, 16, 8,
			UploaderOptions{Convention: encdec.DefaultConvention}, testFrame(16, 8, 0), 5)
		require.NoError(t, err, p.Name)
		assert.Equal(t, 5, r.Frames)
		assert.Equal(t, p.Name, r.Policy)
		assert.Equal(t, "packed_block", r.Variant)
	}
	assert.Equal(t, len(PoliciesFor(shaders.PackedBlock)), gl.Finishes)
	assert.Zero(t, gl.LiveObjects())
}

func TestBenchmarkPolicyDefaultConvention(t *testing.T) {
	gl := glfake.New()
	for _, p := range PoliciesFor(shaders.PackedBlock) {
		_, err := BenchmarkPolicy(gl, shaders.PackedBlock, p, 16, 8,
			UploaderOptions{Depth: 2, FenceTimeout: time.Second}, testFrame(16, 8, 0), 3)
		require.NoError(t, err, p.Name)
	}
	assert.Zero(t, gl.LiveObjects())
}
