// Package player runs the frame loop: it takes the latest frame from a
// source, streams it through the pipeline and presents it.
package player

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fosdem/yuvstream/lib/framesource"
	"github.com/fosdem/yuvstream/lib/pipeline"
	"github.com/fosdem/yuvstream/lib/rendering"
	"github.com/fosdem/yuvstream/lib/stats"
	"github.com/fosdem/yuvstream/lib/utils"
)

type Window interface {
	rendering.Surface
	ShouldClose() bool
	PollEvents()
}

type Player struct {
	// Interval paces the loop when nothing else does, e.g. without vsync.
	Interval time.Duration

	pipeline *pipeline.Pipeline
	source   framesource.Source
	window   Window
	stats    *stats.Stats

	timer    utils.DeltaTimer
	lastID   uint64
	paused   atomic.Bool
	shutdown atomic.Bool
	log      *slog.Logger
}

func New(p *pipeline.Pipeline, src framesource.Source, win Window, s *stats.Stats) *Player {
	return &Player{
		pipeline: p,
		source:   src,
		window:   win,
		stats:    s,
		log:      slog.With("module", "player"),
	}
}

// Step runs one iteration of the loop and reports whether a frame was
// presented. Dropped frames are not errors.
func (p *Player) Step() bool {
	frames := p.source.Frames()
	frames.Age(p.timer.Next())

	if !p.paused.Load() {
		p.takeFrame(frames)
	}

	err := p.pipeline.PresentFrame()
	presented := err == nil
	if err != nil && !errors.Is(err, pipeline.ErrNoFrame) {
		p.stats.Dropped()
	}
	p.stats.Update(presented)
	p.window.PollEvents()
	return presented
}

// takeFrame uploads the latest frame unless it is already on the GPU.
func (p *Player) takeFrame(frames *framesource.FrameForwarder) {
	frame := frames.GetFrameForReading()
	if frame == nil {
		return
	}
	defer frames.FinishedReading(frame)
	if frame.ID == p.lastID {
		return
	}
	err := p.pipeline.UploadFrame(frame.Data)
	if err != nil {
		p.stats.Dropped()
	}
	p.lastID = frame.ID
}

// Run loops until ctx is done, the window is closed or stop returns true.
func (p *Player) Run(ctx context.Context, stop func() bool) {
	p.log.Info("starting frame loop")
	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("frame loop cancelled")
			return
		default:
		}
		if p.shutdown.Load() || p.window.ShouldClose() || (stop != nil && stop()) {
			p.log.Info("frame loop stopped")
			return
		}

		p.Step()

		if p.Interval > 0 {
			next = next.Add(p.Interval)
			if d := time.Until(next); d > 0 {
				time.Sleep(d)
			} else {
				next = time.Now()
			}
		}
	}
}

// TogglePause freezes or unfreezes the picture and reports whether the
// player is now paused.
func (p *Player) TogglePause() bool {
	for {
		old := p.paused.Load()
		if p.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (p *Player) RequestShutdown() {
	p.shutdown.Store(true)
}
