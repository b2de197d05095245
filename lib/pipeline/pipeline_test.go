package pipeline

import (
	"errors"
	"slices"
	"testing"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/fosdem/yuvstream/lib/glapi/glfake"
	"github.com/fosdem/yuvstream/lib/metrics"
	"github.com/fosdem/yuvstream/lib/rendering"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	width, height int
	double        bool
	current       error
	swaps         int
}

func (w *window) MakeCurrent() error   { return w.current }
func (w *window) Size() (int, int)     { return w.width, w.height }
func (w *window) SwapBuffers()         { w.swaps++ }
func (w *window) DoubleBuffered() bool { return w.double }

func frame(width, height int, seed byte) []byte {
	buf := make([]byte, width*height*3/2)
	for i := range buf {
		buf[i] = byte(i>>3) ^ seed
	}
	return buf
}

func dropped(reason string) float64 {
	return testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(reason))
}

func TestEndToEndMultiPlane(t *testing.T) {
	gl := glfake.New()
	win := &window{width: 1280, height: 720, double: true}

	p, err := Initialize(gl, win, rendering.AllCapabilities(), Options{
		Width:   1280,
		Height:  720,
		Variant: shaders.MultiPlane,
	})
	require.NoError(t, err)
	defer p.Shutdown()
	assert.Equal(t, 1382400, p.FrameSize())

	assert.ErrorIs(t, p.PresentFrame(), ErrNoFrame)

	raw := frame(1280, 720, 0x5a)
	require.NoError(t, p.UploadFrame(raw))
	require.NoError(t, p.PresentFrame())
	assert.Equal(t, 1, win.swaps)
	require.Len(t, gl.Draws, 1)

	planes, err := encdec.SplitPlanar(raw, encdec.I420, 1280, 720)
	require.NoError(t, err)
	for unit, plane := range planes {
		assert.True(t, slices.Equal(plane, gl.Draws[0].Units[int32(unit)]), "unit %d", unit)
	}

	before := dropped(metrics.DropSizeMismatch)
	err = p.UploadFrame(make([]byte, 100))
	var sizeErr *encdec.SizeMismatchError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 1382400, sizeErr.Expected)
	assert.Equal(t, before+1, dropped(metrics.DropSizeMismatch))

	require.NoError(t, p.PresentFrame())
	assert.Equal(t, 2, win.swaps)
	require.Len(t, gl.Draws, 2)
	assert.Equal(t, gl.Draws[0].Units, gl.Draws[1].Units)
}

func TestEndToEndPackedBlock(t *testing.T) {
	gl := glfake.New()
	win := &window{width: 640, height: 480, double: true}

	p, err := Initialize(gl, win, rendering.AllCapabilities(), Options{
		Width:          64,
		Height:         32,
		Variant:        shaders.PackedBlock,
		StagingBuffers: 3,
	})
	require.NoError(t, err)
	defer p.Shutdown()
	assert.Equal(t, "bgra_rgba8", p.Textures()[0].Policy.Name)
	assert.Contains(t, p.Program().FragmentSource, "texel.bgr")
	assert.Equal(t, 3, p.Uploader().Depth())

	raw := frame(64, 32, 1)
	require.NoError(t, p.UploadFrame(raw))
	require.NoError(t, p.PresentFrame())

	block := gl.Draws[0].Units[0]
	back, err := encdec.UnpackBlock(block, encdec.I420, 64, 32, encdec.DefaultConvention)
	require.NoError(t, err)
	assert.Equal(t, raw, back)

	// 640x480 is 4:3, the frame 2:1
	assert.InDelta(t, 0.6666667, gl.Draws[0].Transform[5], 1e-6)
}

func TestPolicyOverride(t *testing.T) {
	gl := glfake.New()
	p, err := Initialize(gl, &window{width: 16, height: 8, double: true}, rendering.AllCapabilities(), Options{
		Width:   16,
		Height:  8,
		Variant: shaders.PackedBlock,
		Policy:  rendering.FormatPolicies["rgba_rgba8"],
	})
	require.NoError(t, err)
	defer p.Shutdown()
	assert.Contains(t, p.Program().FragmentSource, "texel.rgb")
	assert.Equal(t, uint32(glapi.RGBA), gl.Textures[p.Textures()[0].ID()].Format)
}

func TestSurfaceNotCurrentIsRecoverable(t *testing.T) {
	gl := glfake.New()
	win := &window{width: 16, height: 8, double: true}
	p, err := Initialize(gl, win, rendering.AllCapabilities(), Options{Width: 16, Height: 8})
	require.NoError(t, err)
	defer p.Shutdown()
	require.NoError(t, p.UploadFrame(frame(16, 8, 0)))

	before := dropped(metrics.DropSurfaceNotCurrent)
	win.current = rendering.ErrSurfaceNotCurrent
	assert.ErrorIs(t, p.PresentFrame(), rendering.ErrSurfaceNotCurrent)
	assert.Equal(t, before+1, dropped(metrics.DropSurfaceNotCurrent))

	win.current = nil
	assert.NoError(t, p.PresentFrame())
	assert.Equal(t, 1, win.swaps)
}

func TestInFlightDropsFrame(t *testing.T) {
	gl := glfake.New()
	p, err := Initialize(gl, &window{width: 16, height: 8, double: true}, rendering.AllCapabilities(), Options{
		Width:          16,
		Height:         8,
		StagingBuffers: 1,
	})
	require.NoError(t, err)
	defer p.Shutdown()

	require.NoError(t, p.UploadFrame(frame(16, 8, 0)))
	gl.HoldFences = true

	before := dropped(metrics.DropInFlight)
	err = p.UploadFrame(frame(16, 8, 1))
	var mapErr *rendering.MapError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, before+1, dropped(metrics.DropInFlight))
	assert.NoError(t, p.PresentFrame())
}

func TestInitializeFailures(t *testing.T) {
	noPBO := rendering.AllCapabilities()
	delete(noPBO, rendering.CapPixelBufferObject)

	cases := []struct {
		name  string
		setup func(gl *glfake.GL, win *window) rendering.CapabilityQuery
		opts  Options
		check func(t *testing.T, err error)
	}{
		{
			name: "missing pixel buffers",
			setup: func(*glfake.GL, *window) rendering.CapabilityQuery {
				return noPBO
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, rendering.ErrCapabilityMissing)
			},
		},
		{
			name: "context failure",
			setup: func(_ *glfake.GL, win *window) rendering.CapabilityQuery {
				win.current = errors.New("no display")
				return rendering.AllCapabilities()
			},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "no display")
			},
		},
		{
			name: "fragment compile failure",
			setup: func(gl *glfake.GL, _ *window) rendering.CapabilityQuery {
				gl.FailCompile[glapi.FRAGMENT_SHADER] = "FragColor"
				return rendering.AllCapabilities()
			},
			check: func(t *testing.T, err error) {
				var compileErr *shaders.CompileError
				require.ErrorAs(t, err, &compileErr)
				assert.Equal(t, "fragment", compileErr.Stage)
			},
		},
		{
			name: "link failure",
			setup: func(gl *glfake.GL, _ *window) rendering.CapabilityQuery {
				gl.FailLink = true
				return rendering.AllCapabilities()
			},
			check: func(t *testing.T, err error) {
				var compileErr *shaders.CompileError
				require.ErrorAs(t, err, &compileErr)
				assert.Equal(t, "link", compileErr.Stage)
			},
		},
		{
			name: "driver never signals",
			setup: func(gl *glfake.GL, _ *window) rendering.CapabilityQuery {
				gl.HoldFences = true
				return rendering.AllCapabilities()
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrStartupTimeout)
			},
		},
		{
			name: "odd frame size",
			setup: func(*glfake.GL, *window) rendering.CapabilityQuery {
				return rendering.AllCapabilities()
			},
			opts: Options{Width: 15, Height: 8},
			check: func(t *testing.T, err error) {
				var sizeErr *encdec.SizeMismatchError
				assert.ErrorAs(t, err, &sizeErr)
			},
		},
		{
			name: "policy does not fit variant",
			setup: func(*glfake.GL, *window) rendering.CapabilityQuery {
				return rendering.AllCapabilities()
			},
			opts: Options{Width: 16, Height: 8, Variant: shaders.MultiPlane, Policy: rendering.FormatPolicies["bgra_rgba8"]},
			check: func(t *testing.T, err error) {
				var unsupported *rendering.UnsupportedFormatError
				assert.ErrorAs(t, err, &unsupported)
			},
		},
		{
			name: "single channel policy for packed blocks",
			setup: func(*glfake.GL, *window) rendering.CapabilityQuery {
				return rendering.AllCapabilities()
			},
			opts: Options{Width: 16, Height: 8, Variant: shaders.PackedBlock, Policy: rendering.FormatPolicies["red_r8"]},
			check: func(t *testing.T, err error) {
				var unsupported *rendering.UnsupportedFormatError
				require.ErrorAs(t, err, &unsupported)
				assert.Equal(t, uint32(glapi.RED), unsupported.Format)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gl := glfake.New()
			win := &window{width: 16, height: 8, double: true}
			caps := tc.setup(gl, win)
			opts := tc.opts
			if opts.Width == 0 {
				opts = Options{Width: 16, Height: 8}
			}

			p, err := Initialize(gl, win, caps, opts)
			require.Error(t, err)
			assert.Nil(t, p)
			tc.check(t, err)
			assert.Zero(t, gl.LiveObjects())
			assert.Zero(t, gl.PendingFences())
		})
	}
}

func TestWithoutSyncObjects(t *testing.T) {
	gl := glfake.New()
	gl.HoldFences = true
	caps := rendering.AllCapabilities()
	delete(caps, rendering.CapSync)

	p, err := Initialize(gl, &window{width: 16, height: 8, double: true}, caps, Options{Width: 16, Height: 8})
	require.NoError(t, err)
	defer p.Shutdown()
	assert.False(t, p.Capabilities().Sync)

	for i := range 4 {
		require.NoError(t, p.UploadFrame(frame(16, 8, byte(i))))
	}
	assert.Zero(t, gl.PendingFences())
}

func TestShutdownReleasesEverything(t *testing.T) {
	gl := glfake.New()
	p, err := Initialize(gl, &window{width: 16, height: 8, double: true}, rendering.AllCapabilities(), Options{Width: 16, Height: 8})
	require.NoError(t, err)
	require.NoError(t, p.UploadFrame(frame(16, 8, 0)))

	p.Shutdown()
	p.Shutdown()
	assert.Zero(t, gl.LiveObjects())
	assert.Zero(t, gl.PendingFences())
}
