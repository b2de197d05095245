// Package glnative implements glapi.GL on top of go-gl.
package glnative

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unsafe"

	"github.com/fosdem/yuvstream/lib/glapi"
	"github.com/go-gl/gl/v4.1-core/gl"
)

type Native struct{}

var _ glapi.GL = (*Native)(nil)

// New loads the GL function pointers for the current context.
func New() (*Native, error) {
	err := gl.Init()
	if err != nil {
		return nil, fmt.Errorf("could not initialise OpenGL context: %w", err)
	}

	n := &Native{}
	slog.Info(fmt.Sprintf("OpenGL version '%s'", n.GetString(glapi.VERSION)), "module", "gl")
	return n, nil
}

func (*Native) GetError() uint32 { return gl.GetError() }

func (*Native) GetString(name uint32) string {
	s := gl.GetString(name)
	if s == nil {
		return ""
	}
	return gl.GoStr(s)
}

func (*Native) Finish() { gl.Finish() }
func (*Native) Flush()  { gl.Flush() }

func (*Native) GenBuffer() uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	return id
}

func (*Native) DeleteBuffer(id uint32) { gl.DeleteBuffers(1, &id) }

func (*Native) BindBuffer(target, id uint32) { gl.BindBuffer(target, id) }

func (*Native) BufferData(target uint32, size int, data []byte, usage uint32) {
	if data == nil {
		gl.BufferData(target, size, nil, usage)
		return
	}
	gl.BufferData(target, size, gl.Ptr(data), usage)
}

func (*Native) BufferDataFloat32(target uint32, data []float32, usage uint32) {
	gl.BufferData(target, len(data)*4, gl.Ptr(data), usage)
}

func (*Native) BufferDataUint32(target uint32, data []uint32, usage uint32) {
	gl.BufferData(target, len(data)*4, gl.Ptr(data), usage)
}

func (*Native) MapBufferRange(target uint32, offset, length int, access uint32) []byte {
	ptr := gl.MapBufferRange(target, offset, length, access)
	if ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), length)
}

func (*Native) UnmapBuffer(target uint32) bool { return gl.UnmapBuffer(target) }

func (*Native) FenceSync() glapi.Sync {
	return glapi.Sync(gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0))
}

func (*Native) ClientWaitSync(sync glapi.Sync, timeout time.Duration) uint32 {
	if timeout < 0 {
		timeout = 0
	}
	return gl.ClientWaitSync(uintptr(sync), gl.SYNC_FLUSH_COMMANDS_BIT, uint64(timeout.Nanoseconds()))
}

func (*Native) DeleteSync(sync glapi.Sync) { gl.DeleteSync(uintptr(sync)) }

func (*Native) GenTexture() uint32 {
	var id uint32
	gl.GenTextures(1, &id)
	return id
}

func (*Native) DeleteTexture(id uint32)       { gl.DeleteTextures(1, &id) }
func (*Native) ActiveTexture(unit uint32)     { gl.ActiveTexture(unit) }
func (*Native) BindTexture(target, id uint32) { gl.BindTexture(target, id) }

func (*Native) TexParameteri(target, pname uint32, param int32) {
	gl.TexParameteri(target, pname, param)
}

func (*Native) PixelStorei(pname uint32, param int32) { gl.PixelStorei(pname, param) }

func (*Native) TexImage2D(target uint32, internalFormat int32, width, height int, format, xtype uint32) {
	gl.TexImage2D(target, 0, internalFormat, int32(width), int32(height), 0, format, xtype, nil)
}

func (*Native) TexSubImage2DFromBuffer(target uint32, x, y, width, height int, format, xtype uint32, offset int) {
	gl.TexSubImage2D(
		target, 0,
		int32(x), int32(y),
		int32(width), int32(height),
		format, xtype,
		gl.PtrOffset(offset),
	)
}

func (*Native) CreateShader(stage uint32) uint32 { return gl.CreateShader(stage) }

func (*Native) ShaderSource(shader uint32, source string) {
	csources, free := gl.Strs(source)
	size := int32(len(source))
	gl.ShaderSource(shader, 1, csources, &size)
	free()
}

func (*Native) CompileShader(shader uint32) { gl.CompileShader(shader) }

func (*Native) GetShaderiv(shader, pname uint32) int32 {
	var v int32
	gl.GetShaderiv(shader, pname, &v)
	return v
}

func (n *Native) GetShaderInfoLog(shader uint32) string {
	logLength := n.GetShaderiv(shader, gl.INFO_LOG_LENGTH)
	if logLength <= 0 {
		return ""
	}
	clog := strings.Repeat("\x00", int(logLength+1))
	gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(clog))
	return strings.TrimRight(clog, "\x00")
}

func (*Native) DeleteShader(shader uint32)          { gl.DeleteShader(shader) }
func (*Native) CreateProgram() uint32               { return gl.CreateProgram() }
func (*Native) AttachShader(program, shader uint32) { gl.AttachShader(program, shader) }
func (*Native) LinkProgram(program uint32)          { gl.LinkProgram(program) }
func (*Native) ValidateProgram(program uint32)      { gl.ValidateProgram(program) }

func (*Native) GetProgramiv(program, pname uint32) int32 {
	var v int32
	gl.GetProgramiv(program, pname, &v)
	return v
}

func (n *Native) GetProgramInfoLog(program uint32) string {
	logLength := n.GetProgramiv(program, gl.INFO_LOG_LENGTH)
	if logLength <= 0 {
		return ""
	}
	logmsg := strings.Repeat("\x00", int(logLength+1))
	gl.GetProgramInfoLog(program, logLength, nil, gl.Str(logmsg))
	return strings.TrimRight(logmsg, "\x00")
}

func (*Native) UseProgram(program uint32)    { gl.UseProgram(program) }
func (*Native) DeleteProgram(program uint32) { gl.DeleteProgram(program) }

func (*Native) GetAttribLocation(program uint32, name string) int32 {
	return gl.GetAttribLocation(program, gl.Str(name+"\x00"))
}

func (*Native) GetUniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (*Native) Uniform1i(location, v int32) { gl.Uniform1i(location, v) }

func (*Native) UniformMatrix4fv(location int32, m *[16]float32) {
	gl.UniformMatrix4fv(location, 1, false, &m[0])
}

func (*Native) GenVertexArray() uint32 {
	var id uint32
	gl.GenVertexArrays(1, &id)
	return id
}

func (*Native) DeleteVertexArray(id uint32)          { gl.DeleteVertexArrays(1, &id) }
func (*Native) BindVertexArray(id uint32)            { gl.BindVertexArray(id) }
func (*Native) EnableVertexAttribArray(index uint32) { gl.EnableVertexAttribArray(index) }

func (*Native) VertexAttribPointer(index uint32, size int32, xtype uint32, stride int32, offset int) {
	gl.VertexAttribPointerWithOffset(index, size, xtype, false, stride, uintptr(offset))
}

func (*Native) Viewport(x, y, width, height int) {
	gl.Viewport(int32(x), int32(y), int32(width), int32(height))
}

func (*Native) ClearColor(r, g, b, a float32) { gl.ClearColor(r, g, b, a) }
func (*Native) Clear(mask uint32)             { gl.Clear(mask) }

func (*Native) DrawElements(mode uint32, count int32, xtype uint32, offset int) {
	gl.DrawElements(mode, count, xtype, gl.PtrOffset(offset))
}
