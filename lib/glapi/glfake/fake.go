// Package glfake is an in-memory glapi.GL.
//
// It keeps enough state to check the pipeline's calling sequence: buffer
// contents and map state, texture storage filled from bound unpack buffers,
// fences, shader symbol tables parsed from the GLSL source, and a record of
// every draw call together with the texture contents it sampled.
package glfake

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fosdem/yuvstream/lib/glapi"
)

const (
	INVALID_ENUM      = 0x0500
	INVALID_VALUE     = 0x0501
	INVALID_OPERATION = 0x0502
)

type Buffer struct {
	Data   []byte
	Usage  uint32
	Mapped bool
	// Floats and Uints keep typed vertex/index data for inspection.
	Floats []float32
	Uints  []uint32
}

type Texture struct {
	Width          int
	Height         int
	InternalFormat int32
	Format         uint32
	Type           uint32
	BytesPerPixel  int
	Data           []byte
	Uploads        int
}

type shader struct {
	stage    uint32
	source   string
	compiled bool
	log      string
}

type program struct {
	shaders   []uint32
	linked    bool
	validated bool
	log       string
	attribs   map[string]int32
	uniforms  map[string]int32
	ints      map[int32]int32
	matrices  map[int32][16]float32
}

// Draw is one recorded DrawElements call.
type Draw struct {
	Program   uint32
	VAO       uint32
	Count     int32
	Viewport  [4]int
	Transform [16]float32
	// Samplers maps sampler uniform names to the unit they were set to.
	Samplers map[string]int32
	// Units holds a copy of the texture bound to each unit used by a sampler.
	Units map[int32][]byte
}

type GL struct {
	// FailCompile makes compilation of a stage fail when its source
	// contains the given text.
	FailCompile map[uint32]string
	FailLink    bool
	// HoldFences keeps every fence unsignaled.
	HoldFences bool
	RefuseMap  bool
	Strings    map[uint32]string

	Buffers  map[uint32]*Buffer
	Textures map[uint32]*Texture
	Draws    []Draw
	Calls    []string
	Clears   int
	Flushes  int
	Finishes int

	nextID     uint32
	errors     []uint32
	bound      map[uint32]uint32
	activeUnit uint32
	units      map[uint32]uint32
	alignment  int32
	shaders    map[uint32]*shader
	programs   map[uint32]*program
	current    uint32
	vaos       map[uint32]bool
	vao        uint32
	fences     map[glapi.Sync]bool
	viewport   [4]int
	clearColor [4]float32
}

var _ glapi.GL = (*GL)(nil)

func New() *GL {
	return &GL{
		FailCompile: map[uint32]string{},
		Strings: map[uint32]string{
			glapi.VENDOR:   "fake",
			glapi.RENDERER: "glfake",
			glapi.VERSION:  "4.1 glfake",
		},
		Buffers:   map[uint32]*Buffer{},
		Textures:  map[uint32]*Texture{},
		bound:     map[uint32]uint32{},
		units:     map[uint32]uint32{},
		alignment: 4,
		shaders:   map[uint32]*shader{},
		programs:  map[uint32]*program{},
		vaos:      map[uint32]bool{},
		fences:    map[glapi.Sync]bool{},
	}
}

func (g *GL) id() uint32 {
	g.nextID++
	return g.nextID
}

func (g *GL) fail(code uint32) {
	g.errors = append(g.errors, code)
}

func (g *GL) call(name string) {
	g.Calls = append(g.Calls, name)
}

// Bound returns the buffer bound to target.
func (g *GL) Bound(target uint32) uint32 {
	return g.bound[target]
}

// PendingFences is the number of fences not yet deleted.
func (g *GL) PendingFences() int {
	return len(g.fences)
}

// LiveObjects counts buffers, textures, programs and vertex arrays that
// have not been deleted.
func (g *GL) LiveObjects() int {
	return len(g.Buffers) + len(g.Textures) + len(g.programs) + len(g.vaos)
}

// CurrentProgram is the program last passed to UseProgram.
func (g *GL) CurrentProgram() uint32 {
	return g.current
}

// UniformInt is the last value set with Uniform1i on program.
func (g *GL) UniformInt(prog uint32, name string) (int32, bool) {
	p := g.programs[prog]
	if p == nil {
		return 0, false
	}
	loc, ok := p.uniforms[name]
	if !ok {
		return 0, false
	}
	v, ok := p.ints[loc]
	return v, ok
}

func (g *GL) GetError() uint32 {
	if len(g.errors) == 0 {
		return glapi.NO_ERROR
	}
	e := g.errors[0]
	g.errors = g.errors[1:]
	return e
}

func (g *GL) GetString(name uint32) string { return g.Strings[name] }
func (g *GL) Finish()                      { g.Finishes++; g.call("Finish") }
func (g *GL) Flush()                       { g.Flushes++; g.call("Flush") }

func (g *GL) GenBuffer() uint32 {
	id := g.id()
	g.Buffers[id] = &Buffer{}
	return id
}

func (g *GL) DeleteBuffer(id uint32) {
	delete(g.Buffers, id)
	for t, b := range g.bound {
		if b == id {
			delete(g.bound, t)
		}
	}
}

func (g *GL) BindBuffer(target, id uint32) {
	g.call(fmt.Sprintf("BindBuffer(0x%X,%d)", target, id))
	if id != 0 && g.Buffers[id] == nil {
		g.fail(INVALID_VALUE)
		return
	}
	g.bound[target] = id
}

func (g *GL) boundBuffer(target uint32) *Buffer {
	return g.Buffers[g.bound[target]]
}

func (g *GL) BufferData(target uint32, size int, data []byte, usage uint32) {
	b := g.boundBuffer(target)
	if b == nil || b.Mapped {
		g.fail(INVALID_OPERATION)
		return
	}
	b.Data = make([]byte, size)
	copy(b.Data, data)
	b.Usage = usage
}

func (g *GL) BufferDataFloat32(target uint32, data []float32, usage uint32) {
	g.BufferData(target, len(data)*4, nil, usage)
	if b := g.boundBuffer(target); b != nil {
		b.Floats = slices.Clone(data)
	}
}

func (g *GL) BufferDataUint32(target uint32, data []uint32, usage uint32) {
	g.BufferData(target, len(data)*4, nil, usage)
	if b := g.boundBuffer(target); b != nil {
		b.Uints = slices.Clone(data)
	}
}

func (g *GL) MapBufferRange(target uint32, offset, length int, access uint32) []byte {
	g.call("MapBufferRange")
	b := g.boundBuffer(target)
	if b == nil || b.Mapped || offset < 0 || offset+length > len(b.Data) {
		g.fail(INVALID_OPERATION)
		return nil
	}
	if g.RefuseMap {
		return nil
	}
	if access&glapi.MAP_INVALIDATE_BUFFER_BIT != 0 {
		clear(b.Data)
	}
	b.Mapped = true
	return b.Data[offset : offset+length : offset+length]
}

func (g *GL) UnmapBuffer(target uint32) bool {
	g.call("UnmapBuffer")
	b := g.boundBuffer(target)
	if b == nil || !b.Mapped {
		g.fail(INVALID_OPERATION)
		return false
	}
	b.Mapped = false
	return true
}

func (g *GL) FenceSync() glapi.Sync {
	s := glapi.Sync(g.id())
	g.fences[s] = true
	return s
}

func (g *GL) ClientWaitSync(sync glapi.Sync, timeout time.Duration) uint32 {
	if !g.fences[sync] {
		g.fail(INVALID_VALUE)
		return glapi.WAIT_FAILED
	}
	if g.HoldFences {
		return glapi.TIMEOUT_EXPIRED
	}
	return glapi.ALREADY_SIGNALED
}

func (g *GL) DeleteSync(sync glapi.Sync) {
	delete(g.fences, sync)
}

func (g *GL) GenTexture() uint32 {
	id := g.id()
	g.Textures[id] = &Texture{}
	return id
}

func (g *GL) DeleteTexture(id uint32) {
	delete(g.Textures, id)
	for u, t := range g.units {
		if t == id {
			delete(g.units, u)
		}
	}
}

func (g *GL) ActiveTexture(unit uint32) {
	if unit < glapi.TEXTURE0 {
		g.fail(INVALID_ENUM)
		return
	}
	g.activeUnit = unit - glapi.TEXTURE0
}

func (g *GL) BindTexture(target, id uint32) {
	if id != 0 && g.Textures[id] == nil {
		g.fail(INVALID_VALUE)
		return
	}
	g.units[g.activeUnit] = id
}

func (g *GL) boundTexture() *Texture {
	return g.Textures[g.units[g.activeUnit]]
}

func (g *GL) TexParameteri(target, pname uint32, param int32) {
	if g.boundTexture() == nil {
		g.fail(INVALID_OPERATION)
	}
}

func (g *GL) PixelStorei(pname uint32, param int32) {
	if pname == glapi.UNPACK_ALIGNMENT {
		g.alignment = param
	}
}

func (g *GL) TexImage2D(target uint32, internalFormat int32, width, height int, format, xtype uint32) {
	t := g.boundTexture()
	bpp := glapi.BytesPerPixel(format, xtype)
	if t == nil || bpp == 0 {
		g.fail(INVALID_OPERATION)
		return
	}
	t.Width = width
	t.Height = height
	t.InternalFormat = internalFormat
	t.Format = format
	t.Type = xtype
	t.BytesPerPixel = bpp
	t.Data = make([]byte, width*height*bpp)
}

func (g *GL) TexSubImage2DFromBuffer(target uint32, x, y, width, height int, format, xtype uint32, offset int) {
	g.call("TexSubImage2D")
	t := g.boundTexture()
	src := g.boundBuffer(glapi.PIXEL_UNPACK_BUFFER)
	if t == nil || src == nil || src.Mapped {
		g.fail(INVALID_OPERATION)
		return
	}
	bpp := glapi.BytesPerPixel(format, xtype)
	if bpp != t.BytesPerPixel || x < 0 || y < 0 || x+width > t.Width || y+height > t.Height {
		g.fail(INVALID_OPERATION)
		return
	}
	rowBytes := width * bpp
	stride := rowBytes
	if a := int(g.alignment); a > 1 && stride%a != 0 {
		stride += a - stride%a
	}
	if height > 0 && offset+stride*(height-1)+rowBytes > len(src.Data) {
		g.fail(INVALID_OPERATION)
		return
	}
	for row := 0; row < height; row++ {
		from := src.Data[offset+row*stride : offset+row*stride+rowBytes]
		at := ((y+row)*t.Width + x) * bpp
		copy(t.Data[at:at+rowBytes], from)
	}
	t.Uploads++
}

func (g *GL) CreateShader(stage uint32) uint32 {
	id := g.id()
	g.shaders[id] = &shader{stage: stage}
	return id
}

func (g *GL) ShaderSource(id uint32, source string) {
	if s := g.shaders[id]; s != nil {
		s.source = source
	}
}

func (g *GL) CompileShader(id uint32) {
	s := g.shaders[id]
	if s == nil {
		g.fail(INVALID_VALUE)
		return
	}
	if marker, ok := g.FailCompile[s.stage]; ok && strings.Contains(s.source, marker) {
		s.compiled = false
		s.log = fmt.Sprintf("0:1(1): error: syntax error near '%s'", marker)
		return
	}
	if !strings.HasPrefix(strings.TrimSpace(s.source), "#version") {
		s.compiled = false
		s.log = "0:1(1): error: missing #version directive"
		return
	}
	s.compiled = true
	s.log = ""
}

func (g *GL) GetShaderiv(id, pname uint32) int32 {
	s := g.shaders[id]
	if s == nil {
		g.fail(INVALID_VALUE)
		return 0
	}
	switch pname {
	case glapi.COMPILE_STATUS:
		if s.compiled {
			return glapi.TRUE
		}
		return glapi.FALSE
	case glapi.INFO_LOG_LENGTH:
		if s.log == "" {
			return 0
		}
		return int32(len(s.log) + 1)
	}
	g.fail(INVALID_ENUM)
	return 0
}

func (g *GL) GetShaderInfoLog(id uint32) string {
	if s := g.shaders[id]; s != nil {
		return s.log
	}
	return ""
}

func (g *GL) DeleteShader(id uint32) {
	delete(g.shaders, id)
}

func (g *GL) CreateProgram() uint32 {
	id := g.id()
	g.programs[id] = &program{
		attribs:  map[string]int32{},
		uniforms: map[string]int32{},
		ints:     map[int32]int32{},
		matrices: map[int32][16]float32{},
	}
	return id
}

func (g *GL) AttachShader(prog, id uint32) {
	p := g.programs[prog]
	if p == nil || g.shaders[id] == nil {
		g.fail(INVALID_VALUE)
		return
	}
	p.shaders = append(p.shaders, id)
}

var (
	uniformDecl = regexp.MustCompile(`(?m)^\s*uniform\s+\w+\s+(\w+)\s*;`)
	attribDecl  = regexp.MustCompile(`(?m)^\s*layout\s*\(\s*location\s*=\s*(\d+)\s*\)\s*in\s+\w+\s+(\w+)\s*;`)
)

func (g *GL) LinkProgram(prog uint32) {
	p := g.programs[prog]
	if p == nil {
		g.fail(INVALID_VALUE)
		return
	}
	p.linked = false
	stages := map[uint32]bool{}
	for _, id := range p.shaders {
		s := g.shaders[id]
		if s == nil || !s.compiled {
			p.log = "error: linking with uncompiled/unspecialized shader"
			return
		}
		stages[s.stage] = true
	}
	if !stages[glapi.VERTEX_SHADER] || !stages[glapi.FRAGMENT_SHADER] {
		p.log = "error: program lacks a vertex or fragment shader"
		return
	}
	if g.FailLink {
		p.log = "error: fragment shader input TexCoord has no matching output"
		return
	}

	var names []string
	for _, id := range p.shaders {
		s := g.shaders[id]
		for _, m := range uniformDecl.FindAllStringSubmatch(s.source, -1) {
			if !slices.Contains(names, m[1]) {
				names = append(names, m[1])
			}
		}
		if s.stage == glapi.VERTEX_SHADER {
			for _, m := range attribDecl.FindAllStringSubmatch(s.source, -1) {
				loc, _ := strconv.Atoi(m[1])
				p.attribs[m[2]] = int32(loc)
			}
		}
	}
	for i, name := range names {
		p.uniforms[name] = int32(i)
	}
	p.linked = true
	p.log = ""
}

func (g *GL) ValidateProgram(prog uint32) {
	if p := g.programs[prog]; p != nil {
		p.validated = p.linked
	}
}

func (g *GL) GetProgramiv(prog, pname uint32) int32 {
	p := g.programs[prog]
	if p == nil {
		g.fail(INVALID_VALUE)
		return 0
	}
	switch pname {
	case glapi.LINK_STATUS:
		if p.linked {
			return glapi.TRUE
		}
		return glapi.FALSE
	case glapi.VALIDATE_STATUS:
		if p.validated {
			return glapi.TRUE
		}
		return glapi.FALSE
	case glapi.INFO_LOG_LENGTH:
		if p.log == "" {
			return 0
		}
		return int32(len(p.log) + 1)
	}
	g.fail(INVALID_ENUM)
	return 0
}

func (g *GL) GetProgramInfoLog(prog uint32) string {
	if p := g.programs[prog]; p != nil {
		return p.log
	}
	return ""
}

func (g *GL) UseProgram(prog uint32) {
	if prog != 0 {
		p := g.programs[prog]
		if p == nil || !p.linked {
			g.fail(INVALID_OPERATION)
			return
		}
	}
	g.current = prog
}

func (g *GL) DeleteProgram(prog uint32) {
	delete(g.programs, prog)
	if g.current == prog {
		g.current = 0
	}
}

func (g *GL) GetAttribLocation(prog uint32, name string) int32 {
	p := g.programs[prog]
	if p == nil || !p.linked {
		g.fail(INVALID_OPERATION)
		return -1
	}
	if loc, ok := p.attribs[name]; ok {
		return loc
	}
	return -1
}

func (g *GL) GetUniformLocation(prog uint32, name string) int32 {
	p := g.programs[prog]
	if p == nil || !p.linked {
		g.fail(INVALID_OPERATION)
		return -1
	}
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	return -1
}

func (g *GL) currentProgram() *program {
	p := g.programs[g.current]
	if p == nil {
		g.fail(INVALID_OPERATION)
	}
	return p
}

func (g *GL) Uniform1i(location, v int32) {
	if p := g.currentProgram(); p != nil && location >= 0 {
		p.ints[location] = v
	}
}

func (g *GL) UniformMatrix4fv(location int32, m *[16]float32) {
	if p := g.currentProgram(); p != nil && location >= 0 {
		p.matrices[location] = *m
	}
}

func (g *GL) GenVertexArray() uint32 {
	id := g.id()
	g.vaos[id] = true
	return id
}

func (g *GL) DeleteVertexArray(id uint32) {
	delete(g.vaos, id)
	if g.vao == id {
		g.vao = 0
	}
}

func (g *GL) BindVertexArray(id uint32) {
	if id != 0 && !g.vaos[id] {
		g.fail(INVALID_OPERATION)
		return
	}
	g.vao = id
}

func (g *GL) EnableVertexAttribArray(index uint32) {
	if g.vao == 0 {
		g.fail(INVALID_OPERATION)
	}
}

func (g *GL) VertexAttribPointer(index uint32, size int32, xtype uint32, stride int32, offset int) {
	if g.vao == 0 || g.boundBuffer(glapi.ARRAY_BUFFER) == nil {
		g.fail(INVALID_OPERATION)
	}
}

func (g *GL) Viewport(x, y, width, height int) {
	g.viewport = [4]int{x, y, width, height}
}

func (g *GL) ClearColor(r, gr, b, a float32) {
	g.clearColor = [4]float32{r, gr, b, a}
}

func (g *GL) Clear(mask uint32) {
	g.Clears++
}

func (g *GL) DrawElements(mode uint32, count int32, xtype uint32, offset int) {
	g.call("DrawElements")
	p := g.currentProgram()
	if p == nil || g.vao == 0 {
		return
	}
	d := Draw{
		Program:  g.current,
		VAO:      g.vao,
		Count:    count,
		Viewport: g.viewport,
		Samplers: map[string]int32{},
		Units:    map[int32][]byte{},
	}
	if loc, ok := p.uniforms["transform"]; ok {
		d.Transform = p.matrices[loc]
	}
	for name, loc := range p.uniforms {
		unit, ok := p.ints[loc]
		if !ok {
			continue
		}
		d.Samplers[name] = unit
		if t := g.Textures[g.units[uint32(unit)]]; t != nil {
			d.Units[unit] = slices.Clone(t.Data)
		}
	}
	g.Draws = append(g.Draws, d)
}

// ClearColour is the colour last passed to ClearColor.
func (g *GL) ClearColour() [4]float32 {
	return g.clearColor
}
