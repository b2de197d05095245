// Package glapi is the subset of OpenGL the streaming pipeline talks to.
//
// The rendering packages never call go-gl directly; they go through GL so the
// whole upload/present sequence can be driven by glfake in tests. Enum values
// are the ones from the GL headers.
package glapi

import (
	"fmt"
	"time"
)

const (
	NO_ERROR = 0
	FALSE    = 0
	TRUE     = 1

	ARRAY_BUFFER         = 0x8892
	ELEMENT_ARRAY_BUFFER = 0x8893
	PIXEL_PACK_BUFFER    = 0x88EB
	PIXEL_UNPACK_BUFFER  = 0x88EC

	STREAM_DRAW = 0x88E0
	STREAM_READ = 0x88E1
	STATIC_DRAW = 0x88E4

	MAP_WRITE_BIT             = 0x0002
	MAP_INVALIDATE_BUFFER_BIT = 0x0008

	TEXTURE_2D         = 0x0DE1
	TEXTURE0           = 0x84C0
	TEXTURE_MAG_FILTER = 0x2800
	TEXTURE_MIN_FILTER = 0x2801
	TEXTURE_WRAP_S     = 0x2802
	TEXTURE_WRAP_T     = 0x2803
	NEAREST            = 0x2600
	LINEAR             = 0x2601
	CLAMP_TO_EDGE      = 0x812F
	UNPACK_ALIGNMENT   = 0x0CF5

	RED   = 0x1903
	RGB   = 0x1907
	RGBA  = 0x1908
	BGRA  = 0x80E1
	R8    = 0x8229
	RGBA8 = 0x8058

	UNSIGNED_BYTE            = 0x1401
	UNSIGNED_INT             = 0x1405
	FLOAT                    = 0x1406
	UNSIGNED_INT_8_8_8_8_REV = 0x8367

	FRAGMENT_SHADER = 0x8B30
	VERTEX_SHADER   = 0x8B31
	COMPILE_STATUS  = 0x8B81
	LINK_STATUS     = 0x8B82
	VALIDATE_STATUS = 0x8B83
	INFO_LOG_LENGTH = 0x8B84

	DEPTH_BUFFER_BIT = 0x00000100
	COLOR_BUFFER_BIT = 0x00004000
	TRIANGLES        = 0x0004

	SYNC_GPU_COMMANDS_COMPLETE = 0x9117
	SYNC_FLUSH_COMMANDS_BIT    = 0x00000001
	ALREADY_SIGNALED           = 0x911A
	TIMEOUT_EXPIRED            = 0x911B
	CONDITION_SATISFIED        = 0x911C
	WAIT_FAILED                = 0x911D

	VENDOR   = 0x1F00
	RENDERER = 0x1F01
	VERSION  = 0x1F02
)

// Sync is an opaque fence handle. Zero means "no fence".
type Sync uintptr

// GL is implemented by glnative (a real context) and glfake (tests).
// All methods must be called from the thread that owns the context.
type GL interface {
	GetError() uint32
	GetString(name uint32) string
	Finish()
	Flush()

	GenBuffer() uint32
	DeleteBuffer(id uint32)
	BindBuffer(target, id uint32)
	// BufferData with a nil data slice only reserves size bytes.
	BufferData(target uint32, size int, data []byte, usage uint32)
	// MapBufferRange returns nil if the driver refused the mapping.
	MapBufferRange(target uint32, offset, length int, access uint32) []byte
	UnmapBuffer(target uint32) bool

	FenceSync() Sync
	ClientWaitSync(sync Sync, timeout time.Duration) uint32
	DeleteSync(sync Sync)

	GenTexture() uint32
	DeleteTexture(id uint32)
	ActiveTexture(unit uint32)
	BindTexture(target, id uint32)
	TexParameteri(target, pname uint32, param int32)
	PixelStorei(pname uint32, param int32)
	// TexImage2D reserves storage without uploading anything.
	TexImage2D(target uint32, internalFormat int32, width, height int, format, xtype uint32)
	// TexSubImage2DFromBuffer copies from the bound PIXEL_UNPACK_BUFFER,
	// starting at byte offset.
	TexSubImage2DFromBuffer(target uint32, x, y, width, height int, format, xtype uint32, offset int)

	CreateShader(stage uint32) uint32
	ShaderSource(shader uint32, source string)
	CompileShader(shader uint32)
	GetShaderiv(shader, pname uint32) int32
	GetShaderInfoLog(shader uint32) string
	DeleteShader(shader uint32)

	CreateProgram() uint32
	AttachShader(program, shader uint32)
	LinkProgram(program uint32)
	ValidateProgram(program uint32)
	GetProgramiv(program, pname uint32) int32
	GetProgramInfoLog(program uint32) string
	UseProgram(program uint32)
	DeleteProgram(program uint32)
	GetAttribLocation(program uint32, name string) int32
	GetUniformLocation(program uint32, name string) int32
	Uniform1i(location, v int32)
	UniformMatrix4fv(location int32, m *[16]float32)

	GenVertexArray() uint32
	DeleteVertexArray(id uint32)
	BindVertexArray(id uint32)
	EnableVertexAttribArray(index uint32)
	VertexAttribPointer(index uint32, size int32, xtype uint32, stride int32, offset int)
	BufferDataFloat32(target uint32, data []float32, usage uint32)
	BufferDataUint32(target uint32, data []uint32, usage uint32)

	Viewport(x, y, width, height int)
	ClearColor(r, g, b, a float32)
	Clear(mask uint32)
	DrawElements(mode uint32, count int32, xtype uint32, offset int)
}

// BytesPerPixel is the size of one client-side pixel for a format/type
// pair, or 0 if the pair is not one the pipeline knows.
func BytesPerPixel(format, xtype uint32) int {
	switch xtype {
	case UNSIGNED_INT_8_8_8_8_REV:
		if format == RGBA || format == BGRA {
			return 4
		}
	case UNSIGNED_BYTE:
		switch format {
		case RED:
			return 1
		case RGB:
			return 3
		case RGBA, BGRA:
			return 4
		}
	}
	return 0
}

// EnumName is used for diagnostics.
func EnumName(e uint32) string {
	switch e {
	case RED:
		return "GL_RED"
	case RGB:
		return "GL_RGB"
	case RGBA:
		return "GL_RGBA"
	case BGRA:
		return "GL_BGRA"
	case R8:
		return "GL_R8"
	case RGBA8:
		return "GL_RGBA8"
	case UNSIGNED_BYTE:
		return "GL_UNSIGNED_BYTE"
	case UNSIGNED_INT_8_8_8_8_REV:
		return "GL_UNSIGNED_INT_8_8_8_8_REV"
	default:
		return fmt.Sprintf("0x%04X", e)
	}
}
