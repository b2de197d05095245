// Package windowsink puts the picture in a GLFW window.
package windowsink

import (
	"fmt"
	"log/slog"

	"github.com/fosdem/yuvstream/lib/config"
	"github.com/fosdem/yuvstream/lib/rendering"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type WindowSink struct {
	Window *glfw.Window
	Caps   SurfaceCaps
	// Hidden creates an invisible window, for offscreen work
	Hidden bool

	cfg *config.WindowCfg
	log *slog.Logger
}

func New(cfg *config.WindowCfg) *WindowSink {
	return &WindowSink{
		cfg: cfg,
		log: slog.With("module", "window"),
	}
}

// Start creates the window and makes its context current on the calling
// thread, which must stay locked to its OS thread.
func (w *WindowSink) Start() error {
	if w.Window != nil {
		return nil
	}
	w.log.Debug("initializing window")
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}

	window, caps, err := Negotiate(Candidates(w.cfg, w.Hidden), w.makeWindow)
	if err != nil {
		glfw.Terminate()
		return err
	}
	w.Window = window
	w.Caps = caps

	window.MakeContextCurrent()
	if caps.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}
	w.log.Info(fmt.Sprintf("opened %q (%s)", w.cfg.Title, caps))
	return nil
}

func (w *WindowSink) makeWindow(caps SurfaceCaps) (win *glfw.Window, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("glfw: %v", r)
		}
	}()

	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.Resizable, boolHint(caps.Resizable))
	glfw.WindowHint(glfw.Visible, boolHint(!caps.Hidden))
	glfw.WindowHint(glfw.DoubleBuffer, boolHint(caps.DoubleBuffered))
	glfw.WindowHint(glfw.ContextVersionMajor, caps.ContextMajor)
	glfw.WindowHint(glfw.ContextVersionMinor, caps.ContextMinor)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	return glfw.CreateWindow(w.cfg.Width, w.cfg.Height, w.cfg.Title, nil, nil)
}

func boolHint(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

// MakeCurrent binds the window's context to the calling thread.
func (w *WindowSink) MakeCurrent() (err error) {
	if w.Window == nil {
		return fmt.Errorf("%w: window not started", rendering.ErrSurfaceNotCurrent)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", rendering.ErrSurfaceNotCurrent, r)
		}
	}()
	w.Window.MakeContextCurrent()
	if glfw.GetCurrentContext() != w.Window {
		return rendering.ErrSurfaceNotCurrent
	}
	return nil
}

func (w *WindowSink) Size() (int, int) {
	return w.Window.GetFramebufferSize()
}

func (w *WindowSink) SwapBuffers() {
	w.Window.SwapBuffers()
}

func (w *WindowSink) DoubleBuffered() bool {
	return w.Caps.DoubleBuffered
}

// QueryCapability reports whether the current context offers the named
// extension, either as an extension or promoted into core.
func (w *WindowSink) QueryCapability(name string) bool {
	major := w.Window.GetAttrib(glfw.ContextVersionMajor)
	minor := w.Window.GetAttrib(glfw.ContextVersionMinor)
	if inCore(name, major, minor) {
		return true
	}
	return glfw.ExtensionSupported(name)
}

func (w *WindowSink) ShouldClose() bool {
	return w.Window.ShouldClose()
}

func (w *WindowSink) PollEvents() {
	glfw.PollEvents()
}

func (w *WindowSink) Stop() {
	if w.Window == nil {
		return
	}
	w.Window.Destroy()
	w.Window = nil
	glfw.Terminate()
}
