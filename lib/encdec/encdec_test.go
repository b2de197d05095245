package encdec

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomFrame(t *testing.T, width, height int) []byte {
	t.Helper()
	n, err := I420.FrameSize(width, height)
	require.NoError(t, err)
	r := rand.New(rand.NewPCG(uint64(width), uint64(height)))
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(r.UintN(256))
	}
	return buf
}

func TestI420FrameSize(t *testing.T) {
	for _, dims := range [][2]int{{2, 2}, {4, 2}, {640, 480}, {1280, 720}, {1920, 1080}, {3840, 2160}, {322, 18}} {
		w, h := dims[0], dims[1]
		n, err := I420.FrameSize(w, h)
		require.NoError(t, err)
		assert.Equal(t, w*h+2*(w/2)*(h/2), n)
		assert.Equal(t, w*h*3/2, n)
	}
}

func TestI420RejectsOddDimensions(t *testing.T) {
	for _, dims := range [][2]int{{1281, 720}, {1280, 719}, {3, 3}, {0, 2}} {
		_, err := I420.FrameSize(dims[0], dims[1])
		var sizeErr *SizeMismatchError
		require.ErrorAs(t, err, &sizeErr, "%dx%d", dims[0], dims[1])
		assert.NotEmpty(t, sizeErr.Reason)
	}
}

func TestPlaneGeometry(t *testing.T) {
	planes, err := I420.Planes(1280, 720)
	require.NoError(t, err)
	require.Len(t, planes, 3)

	assert.Equal(t, Plane{Width: 1280, Height: 720, BytesPerPixel: 1, Offset: 0, Size: 921600}, planes[0])
	assert.Equal(t, Plane{Width: 640, Height: 360, BytesPerPixel: 1, Offset: 921600, Size: 230400}, planes[1])
	assert.Equal(t, Plane{Width: 640, Height: 360, BytesPerPixel: 1, Offset: 1152000, Size: 230400}, planes[2])

	block, err := BlockYUVA.Planes(1280, 720)
	require.NoError(t, err)
	require.Len(t, block, 1)
	assert.Equal(t, 1280*720*4, block[0].Size)
}

func TestCheck(t *testing.T) {
	assert.NoError(t, I420.Check(1280, 720, make([]byte, 1382400)))

	err := I420.Check(1280, 720, make([]byte, 100))
	var sizeErr *SizeMismatchError
	require.True(t, errors.As(err, &sizeErr))
	assert.Equal(t, 1382400, sizeErr.Expected)
	assert.Equal(t, 100, sizeErr.Got)
	assert.Contains(t, err.Error(), "1382400")
}

func TestSplitPlanarDoesNotCopy(t *testing.T) {
	frame := randomFrame(t, 16, 8)
	planes, err := SplitPlanar(frame, I420, 16, 8)
	require.NoError(t, err)
	require.Len(t, planes, 3)
	assert.Len(t, planes[0], 128)
	assert.Len(t, planes[1], 32)
	assert.Len(t, planes[2], 32)

	planes[1][0] = ^planes[1][0]
	assert.Equal(t, planes[1][0], frame[128])
}

func TestRepackRoundTrip(t *testing.T) {
	conventions := map[string]Convention{
		"default":  DefaultConvention,
		"reversed": {Y: 2, U: 1, V: 0, A: 3, Alpha: 0xff},
		"alpha0":   {Y: 1, U: 2, V: 3, A: 0, Alpha: 0},
	}
	for name, c := range conventions {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Validate())
			for _, dims := range [][2]int{{2, 2}, {16, 8}, {1280, 720}, {322, 18}} {
				w, h := dims[0], dims[1]
				frame := randomFrame(t, w, h)
				planes, err := SplitPlanar(frame, I420, w, h)
				require.NoError(t, err)

				block := make([]byte, w*h*4)
				RepackBlock(block, planes, I420, w, h, c)

				back, err := UnpackBlock(block, I420, w, h, c)
				require.NoError(t, err)
				require.Equal(t, frame, back, "%dx%d", w, h)
			}
		})
	}
}

func TestRepackTexelContents(t *testing.T) {
	// 4x2 frame: Y = 0..7, U = {100, 101}, V = {200, 201}
	frame := []byte{
		0, 1, 2, 3,
		4, 5, 6, 7,
		100, 101,
		200, 201,
	}
	planes, err := SplitPlanar(frame, I420, 4, 2)
	require.NoError(t, err)
	block := make([]byte, 4*2*4)
	RepackBlock(block, planes, I420, 4, 2, DefaultConvention)

	assert.Equal(t, []byte{0, 100, 200, 255}, block[0:4])
	assert.Equal(t, []byte{1, 100, 200, 255}, block[4:8])
	assert.Equal(t, []byte{2, 101, 201, 255}, block[8:12])
	assert.Equal(t, []byte{7, 101, 201, 255}, block[28:32])
}

func TestConventionValidate(t *testing.T) {
	assert.Error(t, Convention{Y: 0, U: 0, V: 1, A: 2}.Validate())
	assert.Error(t, Convention{Y: 0, U: 1, V: 2, A: 4}.Validate())
}

func TestLayoutByName(t *testing.T) {
	l, err := LayoutByName("I420")
	require.NoError(t, err)
	assert.Equal(t, I420.Name, l.Name)

	_, err = LayoutByName("nv12")
	assert.Error(t, err)
}

func BenchmarkRepackBlock720p(b *testing.B) {
	w, h := 1280, 720
	frame := make([]byte, w*h*3/2)
	planes, _ := SplitPlanar(frame, I420, w, h)
	block := make([]byte, w*h*4)
	b.SetBytes(int64(len(block)))
	for b.Loop() {
		RepackBlock(block, planes, I420, w, h, DefaultConvention)
	}
}

func TestFrameCfgValidate(t *testing.T) {
	cfg := FrameCfg{Width: 1280, Height: 720}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1382400, cfg.FrameSize())

	for name, bad := range map[string]FrameCfg{
		"odd width":    {Width: 1279, Height: 720},
		"no height":    {Width: 1280},
		"packed input": {Width: 16, Height: 16, Layout: "yuva_block"},
		"unknown":      {Width: 16, Height: 16, Layout: "nv12"},
		"negative":     {Width: 16, Height: 16, NumAllocatedFrames: -1},
	} {
		assert.Error(t, bad.Validate(), name)
	}
}
