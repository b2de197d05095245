package encdec

import (
	"fmt"
	"strings"
)

type Order int

const (
	Planar Order = iota
	Packed
)

func (o Order) String() string {
	switch o {
	case Planar:
		return "planar"
	case Packed:
		return "packed"
	default:
		panic("unknown byte order")
	}
}

// Subsampling is the reduction factor of one plane relative to luma.
type Subsampling struct {
	Horizontal int
	Vertical   int
}

// PixelLayout describes how one frame is laid out in memory.
// For planar layouts every plane holds one channel of BytesPerPixel bytes;
// packed layouts have a single plane of Channels interleaved samples.
type PixelLayout struct {
	Name          string
	Order         Order
	Channels      int
	BytesPerPixel int
	Subsampling   []Subsampling
}

// I420 is the raw frame format read from files: Y, then U, then V, chroma
// at half width and half height.
var I420 = PixelLayout{
	Name:          "i420",
	Order:         Planar,
	Channels:      3,
	BytesPerPixel: 1,
	Subsampling:   []Subsampling{{1, 1}, {2, 2}, {2, 2}},
}

// BlockYUVA is I420 repacked into one 4-byte texel per luma sample.
var BlockYUVA = PixelLayout{
	Name:          "yuva_block",
	Order:         Packed,
	Channels:      4,
	BytesPerPixel: 4,
	Subsampling:   []Subsampling{{1, 1}},
}

func LayoutByName(name string) (PixelLayout, error) {
	switch strings.ToLower(name) {
	case I420.Name, "yuv420p":
		return I420, nil
	case BlockYUVA.Name:
		return BlockYUVA, nil
	default:
		return PixelLayout{}, fmt.Errorf("unknown pixel layout: %s", name)
	}
}

// Plane is the geometry of one plane inside a frame buffer.
type Plane struct {
	Width  int
	Height int
	// BytesPerPixel of a single texel of this plane
	BytesPerPixel int
	Offset        int
	Size          int
}

func (l PixelLayout) NumPlanes() int {
	return len(l.Subsampling)
}

// Planes computes where each plane lives in a frame of the given size.
func (l PixelLayout) Planes(width, height int) ([]Plane, error) {
	if width < 1 || height < 1 {
		return nil, &SizeMismatchError{
			Layout: l.Name, Width: width, Height: height,
			Reason: "frame dimensions must be positive",
		}
	}

	planes := make([]Plane, len(l.Subsampling))
	offset := 0
	for i, s := range l.Subsampling {
		if width%s.Horizontal != 0 || height%s.Vertical != 0 {
			return nil, &SizeMismatchError{
				Layout: l.Name, Width: width, Height: height,
				Reason: fmt.Sprintf("dimensions not divisible by plane %d subsampling %dx%d", i, s.Horizontal, s.Vertical),
			}
		}
		p := Plane{
			Width:         width / s.Horizontal,
			Height:        height / s.Vertical,
			BytesPerPixel: l.BytesPerPixel,
			Offset:        offset,
		}
		p.Size = p.Width * p.Height * p.BytesPerPixel
		offset += p.Size
		planes[i] = p
	}
	return planes, nil
}

// FrameSize is the total byte count of one frame.
func (l PixelLayout) FrameSize(width, height int) (int, error) {
	planes, err := l.Planes(width, height)
	if err != nil {
		return 0, err
	}
	last := planes[len(planes)-1]
	return last.Offset + last.Size, nil
}

// Check verifies that buf holds exactly one frame.
func (l PixelLayout) Check(width, height int, buf []byte) error {
	n, err := l.FrameSize(width, height)
	if err != nil {
		return err
	}
	if len(buf) != n {
		return &SizeMismatchError{
			Layout: l.Name, Width: width, Height: height,
			Expected: n, Got: len(buf),
		}
	}
	return nil
}

func (l PixelLayout) String() string {
	return fmt.Sprintf("%s (%s, %d channels)", l.Name, l.Order, l.Channels)
}

type SizeMismatchError struct {
	Layout   string
	Width    int
	Height   int
	Expected int
	Got      int
	Reason   string
}

func (e *SizeMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s frame of %dx%d: %s", e.Layout, e.Width, e.Height, e.Reason)
	}
	return fmt.Sprintf("expected %s frame of %dx%d to be %d bytes but got %d", e.Layout, e.Width, e.Height, e.Expected, e.Got)
}
