package rendering

import (
	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/go-gl/mathgl/mgl32"
)

const f32 = 4

const floatsPerVertex = 5

// x, y, z, u, v; v is flipped when the vertex data is built
var quadCorners = [4][floatsPerVertex]float32{
	{1, 1, 0, 1, 1},
	{1, -1, 0, 1, 0},
	{-1, -1, 0, 0, 0},
	{-1, 1, 0, 0, 1},
}

var quadIndices = []uint32{
	0, 1, 3,
	1, 2, 3,
}

// QuadVertices is the interleaved vertex data of the fullscreen quad. Frame
// rows are uploaded top first, so texture v runs downwards.
func QuadVertices() []float32 {
	out := make([]float32, 0, len(quadCorners)*floatsPerVertex)
	for _, c := range quadCorners {
		out = append(out, c[0], c[1], c[2], c[3], 1-c[4])
	}
	return out
}

// RenderSurface is the quad the frame is drawn onto.
type RenderSurface struct {
	gl glapi.GL

	VAO uint32
	VBO uint32
	EBO uint32
}

// Reserve uploads the quad and wires it to the given attribute locations.
func Reserve(gl glapi.GL, position, texcoord int32) *RenderSurface {
	s := &RenderSurface{gl: gl}

	s.VAO = gl.GenVertexArray()
	gl.BindVertexArray(s.VAO)

	s.VBO = gl.GenBuffer()
	gl.BindBuffer(glapi.ARRAY_BUFFER, s.VBO)
	gl.BufferDataFloat32(glapi.ARRAY_BUFFER, QuadVertices(), glapi.STATIC_DRAW)

	s.EBO = gl.GenBuffer()
	gl.BindBuffer(glapi.ELEMENT_ARRAY_BUFFER, s.EBO)
	gl.BufferDataUint32(glapi.ELEMENT_ARRAY_BUFFER, quadIndices, glapi.STATIC_DRAW)

	stride := int32(floatsPerVertex * f32)

	gl.EnableVertexAttribArray(uint32(position))
	gl.VertexAttribPointer(uint32(position), 3, glapi.FLOAT, stride, 0)

	gl.EnableVertexAttribArray(uint32(texcoord))
	gl.VertexAttribPointer(uint32(texcoord), 2, glapi.FLOAT, stride, 3*f32)

	gl.BindVertexArray(0)
	gl.BindBuffer(glapi.ARRAY_BUFFER, 0)

	return s
}

// ComputeTransform scales the quad so a sourceW x sourceH frame keeps its
// aspect ratio on a surfaceW x surfaceH surface.
func ComputeTransform(surfaceW, surfaceH, sourceW, sourceH int) mgl32.Mat4 {
	// compare surfaceH*sourceW against surfaceW*sourceH so equal ratios
	// are detected exactly
	a := int64(surfaceH) * int64(sourceW)
	b := int64(surfaceW) * int64(sourceH)
	switch {
	case a == 0 || b == 0 || a == b:
		return mgl32.Ident4()
	case a < b:
		return mgl32.Scale3D(float32(a)/float32(b), 1, 1)
	default:
		return mgl32.Scale3D(1, float32(b)/float32(a), 1)
	}
}

func (s *RenderSurface) Draw() {
	s.gl.BindVertexArray(s.VAO)
	s.gl.DrawElements(glapi.TRIANGLES, int32(len(quadIndices)), glapi.UNSIGNED_INT, 0)
	s.gl.BindVertexArray(0)
}

func (s *RenderSurface) Delete() {
	if s.VAO == 0 {
		return
	}
	s.gl.DeleteVertexArray(s.VAO)
	s.gl.DeleteBuffer(s.VBO)
	s.gl.DeleteBuffer(s.EBO)
	s.VAO, s.VBO, s.EBO = 0, 0, 0
}
