package shaders

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed *.frag *.vert *.glsl
var templateDir embed.FS

type Shaderer struct {
	templates *template.Template
}

func NewShaderer() (*Shaderer, error) {
	s := &Shaderer{}

	var err error

	s.templates, err = template.ParseFS(templateDir, "*.frag", "*.vert", "*.glsl")

	return s, err
}

// ShaderData contains stuff that gets passed to the shader
type ShaderData struct {
	// Samplers in texture unit order
	Samplers []string
	// Swizzle picks Y, U and V out of a packed texel, e.g. "bgr"
	Swizzle string
}

func (s *Shaderer) GetShaderSource(name string, data *ShaderData) (string, error) {
	var b bytes.Buffer
	err := s.templates.ExecuteTemplate(&b, name, data)
	if err != nil {
		return "", fmt.Errorf("error while rendering template %s: %w", name, err)
	}

	return b.String(), nil
}

func (s *Shaderer) TemplateNames() []string {
	var names []string
	for _, t := range s.templates.Templates() {
		names = append(names, t.Name())
	}
	return names
}
