package shaders

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fosdem/yuvstream/lib/glapi"
)

type CompileError struct {
	// Stage is "vertex", "fragment" or "link"
	Stage string
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to %s shader: %s", e.verb(), e.Log)
}

func (e *CompileError) verb() string {
	if e.Stage == "link" {
		return "link"
	}
	return "compile " + e.Stage
}

type Role int

const (
	Attribute Role = iota
	Uniform
)

func (r Role) String() string {
	switch r {
	case Attribute:
		return "attribute"
	case Uniform:
		return "uniform"
	default:
		panic("unknown symbol role")
	}
}

// Symbol is a named attribute or uniform the host needs a location for.
type Symbol struct {
	Role Role
	Name string
}

func (s Symbol) String() string {
	return s.Role.String() + " " + s.Name
}

type MissingSymbolError struct {
	Name string
}

func (e *MissingSymbolError) Error() string {
	return fmt.Sprintf("shader program has no active symbol %q", e.Name)
}

// Program is a linked GL program together with the locations resolved on it.
type Program struct {
	gl        glapi.GL
	id        uint32
	locations map[Symbol]int32
}

// Compile builds and links a program from GLSL sources. The info log of a
// failing stage is always returned in the CompileError.
func Compile(gl glapi.GL, vertexSource, fragmentSource string) (*Program, error) {
	vertexShader, err := compileShader(gl, vertexSource, glapi.VERTEX_SHADER)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(vertexShader)

	fragmentShader, err := compileShader(gl, fragmentSource, glapi.FRAGMENT_SHADER)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(fragmentShader)

	program := gl.CreateProgram()

	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.LinkProgram(program)

	if gl.GetProgramiv(program, glapi.LINK_STATUS) == glapi.FALSE {
		logmsg := gl.GetProgramInfoLog(program)
		gl.DeleteProgram(program)
		return nil, &CompileError{Stage: "link", Log: logmsg}
	}

	return &Program{
		gl:        gl,
		id:        program,
		locations: map[Symbol]int32{},
	}, nil
}

func compileShader(gl glapi.GL, source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	gl.ShaderSource(shader, source)
	gl.CompileShader(shader)

	if gl.GetShaderiv(shader, glapi.COMPILE_STATUS) == glapi.FALSE {
		clog := gl.GetShaderInfoLog(shader)
		gl.DeleteShader(shader)
		return 0, &CompileError{Stage: stageName(shaderType), Log: clog}
	}

	return shader, nil
}

func stageName(shaderType uint32) string {
	switch shaderType {
	case glapi.VERTEX_SHADER:
		return "vertex"
	case glapi.FRAGMENT_SHADER:
		return "fragment"
	default:
		return glapi.EnumName(shaderType)
	}
}

func (p *Program) ID() uint32 {
	return p.id
}

// ResolveLocations looks up every symbol on the linked program. The first
// symbol the linker did not keep fails the whole program.
func (p *Program) ResolveLocations(symbols []Symbol) error {
	for _, s := range symbols {
		var loc int32
		switch s.Role {
		case Attribute:
			loc = p.gl.GetAttribLocation(p.id, s.Name)
		case Uniform:
			loc = p.gl.GetUniformLocation(p.id, s.Name)
		}
		if loc < 0 {
			return &MissingSymbolError{Name: s.Name}
		}
		p.locations[s] = loc
	}
	return nil
}

// Location panics for a symbol that was never resolved.
func (p *Program) Location(s Symbol) int32 {
	loc, ok := p.locations[s]
	if !ok {
		panic(fmt.Sprintf("%s was not resolved on program %d", s, p.id))
	}
	return loc
}

// Validate runs glValidateProgram against the current GL state. Only useful
// as a development diagnostic.
func (p *Program) Validate() error {
	p.gl.ValidateProgram(p.id)
	if p.gl.GetProgramiv(p.id, glapi.VALIDATE_STATUS) == glapi.FALSE {
		return fmt.Errorf("program %d failed validation: %s", p.id, p.gl.GetProgramInfoLog(p.id))
	}
	return nil
}

func (p *Program) Use() {
	p.gl.UseProgram(p.id)
}

func (p *Program) Delete() {
	if p.id == 0 {
		return
	}
	p.gl.DeleteProgram(p.id)
	p.id = 0
}

func writeFileDebug(dir string, filename string, content string) {
	path := filepath.Join(dir, filename)
	err := os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		slog.Warn("could not write shader debug file", "module", "shaders", "path", path, "err", err)
	}
}
