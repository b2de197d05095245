package kbdctl

import (
	"log/slog"

	"github.com/fosdem/yuvstream/lib/windowsink"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Target is what the shortcut keys control.
type Target interface {
	TogglePause() bool
	RequestShutdown()
}

type Command int

const (
	None Command = iota
	Quit
	TogglePause
)

// Lookup maps a key event onto a command.
func Lookup(key glfw.Key, action glfw.Action, mods glfw.ModifierKey) Command {
	if action == glfw.Release {
		if key == glfw.KeyQ &&
			mods&glfw.ModControl != 0 &&
			mods&glfw.ModShift != 0 {
			return Quit
		}
	}
	if action == glfw.Press && mods == 0 {
		switch key {
		case glfw.KeyEscape, glfw.KeyQ:
			return Quit
		case glfw.KeySpace:
			return TogglePause
		}
	}
	return None
}

func SetupShortcutKeys(ws *windowsink.WindowSink, t Target) {
	ws.Window.SetKeyCallback(keyCallback(t))
}

func keyCallback(t Target) glfw.KeyCallback {
	log := slog.With("module", "kbdctl")
	return func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		switch Lookup(key, action, mods) {
		case Quit:
			log.Info("told to quit, exiting")
			t.RequestShutdown()
		case TogglePause:
			if t.TogglePause() {
				log.Info("paused")
			} else {
				log.Info("resumed")
			}
		}
	}
}
