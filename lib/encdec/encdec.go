package encdec

import (
	"fmt"
)

// Convention is the byte index of each component inside one packed texel.
// The shader's channel extraction is derived from it, so host packing and
// GPU unpacking always agree.
type Convention struct {
	Y     int
	U     int
	V     int
	A     int
	Alpha byte
}

// DefaultConvention puts Y, U, V, A in bytes 0..3. Uploaded as BGRA this
// lands Y in blue, U in green and V in red.
var DefaultConvention = Convention{Y: 0, U: 1, V: 2, A: 3, Alpha: 0xff}

func (c Convention) Validate() error {
	seen := [4]bool{}
	for _, idx := range []int{c.Y, c.U, c.V, c.A} {
		if idx < 0 || idx > 3 {
			return fmt.Errorf("texel byte index %d out of range", idx)
		}
		if seen[idx] {
			return fmt.Errorf("texel byte index %d used twice", idx)
		}
		seen[idx] = true
	}
	return nil
}

// SplitPlanar slices a planar frame into its planes without copying.
func SplitPlanar(buf []byte, layout PixelLayout, width, height int) ([][]byte, error) {
	if layout.Order != Planar {
		panic("SplitPlanar called with a packed layout")
	}
	err := layout.Check(width, height, buf)
	if err != nil {
		return nil, err
	}
	planes, _ := layout.Planes(width, height)
	out := make([][]byte, len(planes))
	for i, p := range planes {
		out[i] = buf[p.Offset : p.Offset+p.Size : p.Offset+p.Size]
	}
	return out, nil
}

// RepackBlock interleaves a three-plane frame into dst, one texel per luma
// sample. Chroma samples are repeated over their subsampling block, never
// interpolated.
func RepackBlock(dst []byte, planes [][]byte, layout PixelLayout, width, height int, c Convention) {
	if len(planes) != 3 || len(layout.Subsampling) != 3 {
		panic("RepackBlock needs exactly three planes")
	}
	if len(dst) != width*height*4 {
		panic(fmt.Sprintf("block buffer is %d bytes, need %d", len(dst), width*height*4))
	}

	Y, U, V := planes[0], planes[1], planes[2]
	us := layout.Subsampling[1]
	vs := layout.Subsampling[2]
	uw := width / us.Horizontal
	vw := width / vs.Horizontal
	stride := width * 4

	for row := range height {
		yRow := Y[row*width : (row+1)*width]
		uRow := U[(row/us.Vertical)*uw : (row/us.Vertical+1)*uw]
		vRow := V[(row/vs.Vertical)*vw : (row/vs.Vertical+1)*vw]
		out := dst[row*stride : (row+1)*stride]
		for col := range width {
			j := col * 4
			out[j+c.Y] = yRow[col]
			out[j+c.U] = uRow[col/us.Horizontal]
			out[j+c.V] = vRow[col/vs.Horizontal]
			out[j+c.A] = c.Alpha
		}
	}
}

// UnpackBlock is the inverse of RepackBlock. Chroma is taken from the
// top-left texel of every subsampling block.
func UnpackBlock(src []byte, layout PixelLayout, width, height int, c Convention) ([]byte, error) {
	if len(src) != width*height*4 {
		return nil, &SizeMismatchError{
			Layout: BlockYUVA.Name, Width: width, Height: height,
			Expected: width * height * 4, Got: len(src),
		}
	}
	n, err := layout.FrameSize(width, height)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, n)
	planes, _ := layout.Planes(width, height)
	Y := frame[planes[0].Offset : planes[0].Offset+planes[0].Size]
	U := frame[planes[1].Offset : planes[1].Offset+planes[1].Size]
	V := frame[planes[2].Offset : planes[2].Offset+planes[2].Size]
	us := layout.Subsampling[1]
	vs := layout.Subsampling[2]

	for row := range height {
		for col := range width {
			texel := src[(row*width+col)*4:]
			Y[row*width+col] = texel[c.Y]
			if row%us.Vertical == 0 && col%us.Horizontal == 0 {
				U[(row/us.Vertical)*planes[1].Width+col/us.Horizontal] = texel[c.U]
			}
			if row%vs.Vertical == 0 && col%vs.Horizontal == 0 {
				V[(row/vs.Vertical)*planes[2].Width+col/vs.Horizontal] = texel[c.V]
			}
		}
	}
	return frame, nil
}
