package rendering

import (
	"fmt"
	"time"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
)

type BenchmarkResult struct {
	Variant string        `json:"variant"`
	Policy  string        `json:"policy"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Depth   int           `json:"depth"`
	Frames  int           `json:"frames"`
	Elapsed time.Duration `json:"elapsed_ns"`
	// FPS and MBps include the final Finish, so they are what the GPU
	// actually sustained.
	FPS  float64 `json:"fps"`
	MBps float64 `json:"mbps"`
}

func (r BenchmarkResult) String() string {
	return fmt.Sprintf("%-13s %-17s %dx%d depth %d: %d frames in %s, %.1f fps, %.1f MB/s",
		r.Variant, r.Policy, r.Width, r.Height, r.Depth, r.Frames, r.Elapsed.Round(time.Millisecond), r.FPS, r.MBps)
}

// Benchmark uploads frame the given number of times and waits for the GPU
// to finish.
func Benchmark(gl glapi.GL, uploader *FrameUploader, frame []byte, frames int) (BenchmarkResult, error) {
	start := time.Now()
	for i := range frames {
		err := uploader.UploadFrame(frame)
		if err != nil {
			return BenchmarkResult{}, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	gl.Finish()
	elapsed := time.Since(start)

	r := BenchmarkResult{
		Variant: uploader.variant.String(),
		Policy:  uploader.textures[0].Policy.Name,
		Width:   uploader.width,
		Height:  uploader.height,
		Depth:   uploader.Depth(),
		Frames:  frames,
		Elapsed: elapsed,
	}
	if s := elapsed.Seconds(); s > 0 {
		r.FPS = float64(frames) / s
		r.MBps = float64(frames*len(frame)) / s / (1024 * 1024)
	}
	return r, nil
}

// BenchmarkPolicy sets up textures with policy, measures it and releases
// everything again.
func BenchmarkPolicy(
	gl glapi.GL,
	variant shaders.Variant,
	policy FormatPolicy,
	width, height int,
	opts UploaderOptions,
	frame []byte,
	frames int,
) (BenchmarkResult, error) {
	textures, err := NewTextures(gl, variant, width, height, policy)
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer func() {
		for _, t := range textures {
			t.Delete()
		}
	}()

	uploader, err := NewFrameUploader(gl, encdec.I420, width, height, variant, textures, opts)
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer uploader.Delete()

	return Benchmark(gl, uploader, frame, frames)
}
