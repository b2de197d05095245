// Package framesource reads raw frames on their own goroutines and hands
// the latest one to the GL thread.
package framesource

import (
	"fmt"
	"os"

	"github.com/fosdem/yuvstream/lib/config"
	"github.com/fosdem/yuvstream/lib/encdec"
)

type Source interface {
	Start() error
	Frames() *FrameForwarder
	Stop()
}

func New(cfg *config.SourceCfg, frames encdec.FrameCfg) (Source, error) {
	layout, err := frames.PixelLayout()
	if err != nil {
		return nil, err
	}
	frameSize, err := layout.FrameSize(frames.Width, frames.Height)
	if err != nil {
		return nil, err
	}
	numFrames := frames.NumAllocatedFrames
	if numFrames < 2 {
		numFrames = 2
	}

	switch cfg.Type {
	case "file":
		return NewFileSource(string(cfg.Path), frameSize, numFrames, FileOptions{
			Rate:    cfg.Rate,
			Inotify: cfg.Inotify,
			Loop:    cfg.Loop,
		}), nil
	case "stdin":
		return NewStdinSource(os.Stdin, frameSize, numFrames, cfg.Rate), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}

// ReadFrame reads a whole raw frame file into memory.
func ReadFrame(path string) ([]byte, error) {
	m, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	defer m.unmap()
	return append([]byte(nil), m.data...), nil
}
