package encdec

import (
	"fmt"
)

// FrameCfg describes the raw frames a source produces.
type FrameCfg struct {
	Width              int
	Height             int
	Layout             string
	NumAllocatedFrames int `yaml:"num_allocated_frames"`
}

func (f *FrameCfg) PixelLayout() (PixelLayout, error) {
	if f.Layout == "" {
		return I420, nil
	}
	return LayoutByName(f.Layout)
}

func (f *FrameCfg) Validate() error {
	if f.NumAllocatedFrames < 0 {
		return fmt.Errorf("number of allocated frames must not be negative")
	}
	if f.Width < 1 {
		return fmt.Errorf("width must be at least 1")
	}
	if f.Height < 1 {
		return fmt.Errorf("height must be at least 1")
	}
	layout, err := f.PixelLayout()
	if err != nil {
		return err
	}
	if layout.Order != Planar {
		return fmt.Errorf("source frames must be planar, %s is %s", layout.Name, layout.Order)
	}
	_, err = layout.FrameSize(f.Width, f.Height)
	return err
}

// FrameSize is the size of one frame in bytes. Validate first.
func (f *FrameCfg) FrameSize() int {
	layout, err := f.PixelLayout()
	if err != nil {
		panic(err)
	}
	n, err := layout.FrameSize(f.Width, f.Height)
	if err != nil {
		panic(err)
	}
	return n
}
