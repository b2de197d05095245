package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fosdem/yuvstream/lib/api"
	"github.com/fosdem/yuvstream/lib/config"
	"github.com/fosdem/yuvstream/lib/framesource"
	"github.com/fosdem/yuvstream/lib/glapi/glnative"
	"github.com/fosdem/yuvstream/lib/kbdctl"
	ylog "github.com/fosdem/yuvstream/lib/log"
	"github.com/fosdem/yuvstream/lib/pipeline"
	"github.com/fosdem/yuvstream/lib/player"
	"github.com/fosdem/yuvstream/lib/stats"
	"github.com/fosdem/yuvstream/lib/utils"
	"github.com/fosdem/yuvstream/lib/windowsink"
)

func init() {
	// The OpenGL stuff must be in one thread
	runtime.LockOSThread()
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <config file>", os.Args[0])
	}
	cfg, err := config.Parse(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	ylog.Install(cfg.Log.SlogLevel())

	err = run(cfg)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := framesource.New(cfg.Source, cfg.Frames)
	if err != nil {
		return fmt.Errorf("could not build frame source: %w", err)
	}

	win := windowsink.New(cfg.Window)
	err = win.Start()
	if err != nil {
		return fmt.Errorf("could not open window: %w", err)
	}
	defer win.Stop()

	gl, err := glnative.New()
	if err != nil {
		return err
	}

	layout, err := cfg.Frames.PixelLayout()
	if err != nil {
		return err
	}
	p, err := pipeline.Initialize(gl, win, win, pipeline.Options{
		Width:           cfg.Frames.Width,
		Height:          cfg.Frames.Height,
		Layout:          layout,
		Variant:         cfg.Render.ShaderVariant(),
		Policy:          cfg.Render.Policy(),
		StagingBuffers:  cfg.Render.StagingBuffers,
		FenceTimeout:    time.Duration(cfg.Render.FenceTimeoutMs) * time.Millisecond,
		StartupTimeout:  time.Duration(cfg.Render.StartupTimeoutMs) * time.Millisecond,
		ClearColour:     utils.ColourVec(cfg.Render.ClearColour),
		ValidateShaders: cfg.Render.ValidateShaders,
		ShaderDumpDir:   string(cfg.Render.ShaderDumpDir),
	})
	if err != nil {
		return fmt.Errorf("could not initialise pipeline: %w", err)
	}
	defer p.Shutdown()

	err = src.Start()
	if err != nil {
		return fmt.Errorf("could not start frame source: %w", err)
	}
	defer src.Stop()

	st := stats.New()
	st.Describe(p.Variant().String(), p.Textures()[0].Policy.Name)

	theApi := api.ServeInBackground(cfg, st)
	if theApi != nil {
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			_ = theApi.Shutdown(shutdownCtx)
		}()
	}

	pl := player.New(p, src, win, st)
	if !cfg.Window.VSync && cfg.Source.Rate > 0 {
		pl.Interval = time.Second / time.Duration(cfg.Source.Rate)
	}
	kbdctl.SetupShortcutKeys(win, pl)
	pl.Run(ctx, func() bool {
		return theApi != nil && theApi.ShutdownRequested.Load()
	})
	return nil
}
