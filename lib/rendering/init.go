package rendering

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fosdem/yuvstream/lib/glapi"
)

const (
	CapPixelBufferObject = "GL_ARB_pixel_buffer_object"
	CapSync              = "GL_ARB_sync"
	CapMapBufferRange    = "GL_ARB_map_buffer_range"
	CapVertexArrayObject = "GL_ARB_vertex_array_object"
)

var ErrCapabilityMissing = errors.New("required OpenGL capability missing")

// CapabilityQuery reports whether the current context supports an extension,
// either as extension or through its core version.
type CapabilityQuery interface {
	QueryCapability(name string) bool
}

type Capabilities struct {
	PixelBuffers bool
	Sync         bool
}

var requiredCapabilities = []string{
	CapPixelBufferObject,
	CapMapBufferRange,
	CapVertexArrayObject,
}

// CheckCapabilities fails if the context cannot stream through pixel buffers.
// Sync objects are optional.
func CheckCapabilities(gl glapi.GL, q CapabilityQuery) (Capabilities, error) {
	slog.Info(fmt.Sprintf("OpenGL '%s' by '%s' on '%s'",
		gl.GetString(glapi.VERSION), gl.GetString(glapi.VENDOR), gl.GetString(glapi.RENDERER)),
		"module", "gl")

	for _, name := range requiredCapabilities {
		if !q.QueryCapability(name) {
			return Capabilities{}, fmt.Errorf("%w: %s", ErrCapabilityMissing, name)
		}
	}

	caps := Capabilities{PixelBuffers: true, Sync: q.QueryCapability(CapSync)}
	if !caps.Sync {
		slog.Warn(CapSync+" not supported, staging buffers will not be fenced", "module", "gl")
	}
	return caps, nil
}

// CapabilitySet is a fixed CapabilityQuery.
type CapabilitySet map[string]bool

func (s CapabilitySet) QueryCapability(name string) bool {
	return s[name]
}

// AllCapabilities reports everything the pipeline can use as supported.
func AllCapabilities() CapabilitySet {
	return CapabilitySet{
		CapPixelBufferObject: true,
		CapSync:              true,
		CapMapBufferRange:    true,
		CapVertexArrayObject: true,
	}
}
