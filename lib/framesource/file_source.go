package framesource

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jhenstridge/go-inotify"
)

type FileOptions struct {
	// Rate in frames per second for files holding several frames
	Rate    int
	Inotify bool
	Loop    bool
}

// ReloadDelay is how long to wait after a write before mapping the file
// again, so writers that close and reopen are finished.
var ReloadDelay = 100 * time.Millisecond

var newWatcher = inotify.NewWatcher

// FileSource plays a file of concatenated raw frames. A file holding a
// single frame is shown as a still image.
type FileSource struct {
	path      string
	frameSize int
	opts      FileOptions

	mu       sync.Mutex
	m        *mapping
	chunks   [][]byte
	pos      int
	reloaded chan struct{}

	frames  FrameForwarder
	stop    chan struct{}
	wg      sync.WaitGroup
	watcher *inotify.Watcher
	log     *slog.Logger
}

func NewFileSource(path string, frameSize, numFrames int, opts FileOptions) *FileSource {
	s := &FileSource{
		path:      path,
		frameSize: frameSize,
		opts:      opts,
		reloaded:  make(chan struct{}, 1),
		stop:      make(chan struct{}),
		log:       slog.With("module", "framesource", "path", path),
	}
	s.frames.Init(path, frameSize, numFrames)
	return s
}

func (s *FileSource) Start() error {
	err := s.load()
	if err != nil {
		return err
	}

	if s.opts.Inotify {
		s.watcher, err = newWatcher()
		if err != nil {
			s.release()
			return fmt.Errorf("could not start inotify watcher: %w", err)
		}
		_, err = s.watcher.Watch(s.path)
		if err != nil {
			s.watcher.Close()
			s.watcher = nil
			s.release()
			return fmt.Errorf("could not watch %s: %w", s.path, err)
		}
		s.wg.Add(1)
		go s.watch()
	}

	s.wg.Add(1)
	go s.play()
	return nil
}

// NumFrames is the number of frames in the currently mapped file.
func (s *FileSource) NumFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func (s *FileSource) load() error {
	m, err := mapFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.m.unmap()
	s.m = m
	s.chunks = m.frames(s.frameSize)
	s.pos = 0
	n := len(s.chunks)
	s.mu.Unlock()

	s.frames.Lock()
	if n == 1 {
		s.frames.HoldFrame = Hold
	} else {
		s.frames.HoldFrame = NoHold
	}
	s.frames.Unlock()

	if len(m.data)%s.frameSize != 0 {
		s.log.Warn(fmt.Sprintf("file is %d bytes, not a multiple of the %d byte frame size", len(m.data), s.frameSize))
	} else {
		s.log.Info(fmt.Sprintf("mapped %d frames", n))
	}
	return nil
}

func (s *FileSource) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case err, ok := <-s.watcher.Error:
			if !ok {
				return
			}
			s.log.Error(fmt.Sprintf("inotify: %s", err))
		case ev, ok := <-s.watcher.Event:
			if !ok {
				return
			}
			if ev.Mask&inotify.IN_CLOSE_WRITE == 0 {
				continue
			}
			s.log.Debug("reloading due to inotify event")
			select {
			case <-time.After(ReloadDelay):
			case <-s.stop:
				return
			}
			err := s.load()
			if err != nil {
				s.log.Error(fmt.Sprintf("could not reload: %s", err))
				continue
			}
			select {
			case s.reloaded <- struct{}{}:
			default:
			}
		}
	}
}

func (s *FileSource) play() {
	defer s.wg.Done()

	interval := time.Second
	if s.opts.Rate > 0 {
		interval = time.Second / time.Duration(s.opts.Rate)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	more := s.writeNext()
	for {
		select {
		case <-s.stop:
			return
		case <-s.reloaded:
			more = s.writeNext()
		case <-ticker.C:
			if more {
				more = s.writeNext()
			}
		}
	}
}

// writeNext forwards the frame at the current position and reports whether
// there is anything left to play.
func (s *FileSource) writeNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.chunks) == 0 {
		return false
	}
	src := s.chunks[s.pos]
	last := s.pos == len(s.chunks)-1
	if last && (len(s.chunks) == 1 || !s.opts.Loop) {
		s.frames.Lock()
		s.frames.HoldFrame = Hold
		s.frames.Unlock()
	}

	frame := s.frames.GetFrameForWriting()
	if frame == nil {
		return true
	}
	frame.Data = append(frame.Data[:0], src...)
	s.frames.FinishedWriting(frame)

	if last {
		if !s.opts.Loop || len(s.chunks) == 1 {
			return false
		}
		s.pos = 0
	} else {
		s.pos++
	}
	return true
}

func (s *FileSource) Frames() *FrameForwarder {
	return &s.frames
}

func (s *FileSource) Stop() {
	select {
	case <-s.stop:
		return
	default:
	}
	close(s.stop)
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.wg.Wait()
	s.release()
}

// Mapped reports whether the file is currently mapped.
func (s *FileSource) Mapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m != nil
}

func (s *FileSource) release() {
	s.mu.Lock()
	s.m.unmap()
	s.m = nil
	s.chunks = nil
	s.mu.Unlock()
}
