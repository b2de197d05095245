package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/fosdem/yuvstream/lib/config"
	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/framesource"
	"github.com/fosdem/yuvstream/lib/glapi/glnative"
	ylog "github.com/fosdem/yuvstream/lib/log"
	"github.com/fosdem/yuvstream/lib/rendering"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
	"github.com/fosdem/yuvstream/lib/windowsink"
)

func init() {
	// The OpenGL stuff must be in one thread
	runtime.LockOSThread()
}

func main() {
	widthPtr := flag.Uint("width", 1920, "Width of the benchmark frames")
	heightPtr := flag.Uint("height", 1080, "Height of the benchmark frames")
	framesPtr := flag.Uint("frames", 300, "Number of frames to upload per run")
	depthPtr := flag.Uint("depth", rendering.DefaultStagingDepth, "Staging buffers per plane")
	variantPtr := flag.String("variant", "", "Only measure this shader variant")
	formatPtr := flag.String("format", "", "Only measure this texture format policy")
	framePtr := flag.String("frame", "", "Raw I420 frame to upload instead of a test pattern")
	jsonPtr := flag.Bool("json", false, "Print results as JSON")
	flag.Parse()

	ylog.Install(slog.LevelWarn)

	width := int(*widthPtr)
	height := int(*heightPtr)

	frame, err := loadFrame(*framePtr, width, height)
	if err != nil {
		log.Fatalf("could not load frame: %s", err)
	}

	win := windowsink.New(&config.WindowCfg{Title: "yuvstream-bench", Width: 64, Height: 64})
	win.Hidden = true
	err = win.Start()
	if err != nil {
		log.Fatalf("could not create GL context: %s", err)
	}
	defer win.Stop()

	gl, err := glnative.New()
	if err != nil {
		log.Fatalf("%s", err)
	}
	caps, err := rendering.CheckCapabilities(gl, win)
	if err != nil {
		log.Fatalf("%s", err)
	}

	opts := rendering.UploaderOptions{
		Depth:        int(*depthPtr),
		FenceTimeout: time.Second,
		Convention:   encdec.DefaultConvention,
		NoFences:     !caps.Sync,
	}

	var results []rendering.BenchmarkResult
	for _, variant := range []shaders.Variant{shaders.MultiPlane, shaders.PackedBlock} {
		if *variantPtr != "" && *variantPtr != variant.String() {
			continue
		}
		for _, policy := range rendering.PoliciesFor(variant) {
			if *formatPtr != "" && *formatPtr != policy.Name {
				continue
			}
			r, err := rendering.BenchmarkPolicy(gl, variant, policy, width, height, opts, frame, int(*framesPtr))
			if err != nil {
				log.Fatalf("%s/%s: %s", variant, policy.Name, err)
			}
			results = append(results, r)
			if !*jsonPtr {
				fmt.Println(r)
			}
		}
	}

	if *jsonPtr {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(results)
		if err != nil {
			log.Fatalf("could not encode results: %s", err)
		}
	}
}

func loadFrame(path string, width, height int) ([]byte, error) {
	if path != "" {
		return framesource.ReadFrame(path)
	}
	size, err := encdec.I420.FrameSize(width, height)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, size)
	for i := range frame {
		frame[i] = byte(i*7 + i>>11)
	}
	return frame, nil
}
