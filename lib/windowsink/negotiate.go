package windowsink

import (
	"errors"
	"fmt"

	"github.com/fosdem/yuvstream/lib/config"
	"github.com/fosdem/yuvstream/lib/rendering"
)

// SurfaceCaps are the attributes a surface is requested with. A value is
// never changed after the surface exists.
type SurfaceCaps struct {
	DoubleBuffered bool
	Resizable      bool
	VSync          bool
	Hidden         bool
	ContextMajor   int
	ContextMinor   int
}

func (c SurfaceCaps) String() string {
	buffering := "single-buffered"
	if c.DoubleBuffered {
		buffering = "double-buffered"
	}
	return fmt.Sprintf("GL %d.%d core, %s", c.ContextMajor, c.ContextMinor, buffering)
}

// Candidates lists the surfaces to try for cfg, best first.
func Candidates(cfg *config.WindowCfg, hidden bool) []SurfaceCaps {
	base := SurfaceCaps{
		Resizable:    cfg.Resizable,
		VSync:        cfg.VSync,
		Hidden:       hidden,
		ContextMajor: 4,
		ContextMinor: 1,
	}
	single := base
	if cfg.SingleBuffered {
		return []SurfaceCaps{single}
	}
	double := base
	double.DoubleBuffered = true
	return []SurfaceCaps{double, single}
}

var ErrNoSurface = errors.New("no surface could be created")

// Negotiate tries every candidate in order and returns the first surface
// create manages to build, together with the attributes it was built with.
func Negotiate[T any](candidates []SurfaceCaps, create func(SurfaceCaps) (T, error)) (T, SurfaceCaps, error) {
	var zero T
	var errs []error
	for _, c := range candidates {
		s, err := create(c)
		if err == nil {
			return s, c, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", c, err))
	}
	return zero, SurfaceCaps{}, fmt.Errorf("%w: %w", ErrNoSurface, errors.Join(errs...))
}

// coreSince is the context version an extension was promoted to core in.
var coreSince = map[string][2]int{
	rendering.CapPixelBufferObject: {2, 1},
	rendering.CapMapBufferRange:    {3, 0},
	rendering.CapVertexArrayObject: {3, 0},
	rendering.CapSync:              {3, 2},
}

func inCore(name string, major, minor int) bool {
	v, ok := coreSince[name]
	if !ok {
		return false
	}
	return major > v[0] || (major == v[0] && minor >= v[1])
}
