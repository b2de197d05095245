package framesource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// StdinSource reads back-to-back raw frames from a pipe.
type StdinSource struct {
	Rate int

	frameSize int
	reader    *bufio.Reader
	frames    FrameForwarder
	done      chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	err       error
	log       *slog.Logger
}

func NewStdinSource(r io.Reader, frameSize, numFrames, rate int) *StdinSource {
	s := &StdinSource{
		Rate:      rate,
		frameSize: frameSize,
		reader:    bufio.NewReaderSize(r, frameSize),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
		log:       slog.With("module", "framesource", "path", "-"),
	}
	s.frames.Init("stdin", frameSize, numFrames)
	return s
}

func (s *StdinSource) Start() error {
	go s.process()
	return nil
}

func (s *StdinSource) process() {
	defer close(s.done)

	var frameTime time.Duration
	if s.Rate > 0 {
		frameTime = time.Second / time.Duration(s.Rate)
	}
	scratch := make([]byte, s.frameSize)
	ftime := time.Now()
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		time.Sleep(frameTime - time.Since(ftime))
		ftime = time.Now()

		frame := s.frames.GetFrameForWriting()
		if frame == nil {
			// keep the pipe moving even when the reader is behind
			_, err := io.ReadFull(s.reader, scratch)
			if err != nil {
				s.finish(err)
				return
			}
			continue
		}
		if cap(frame.Data) < s.frameSize {
			frame.Data = make([]byte, s.frameSize)
		}
		frame.Data = frame.Data[:s.frameSize]
		_, err := io.ReadFull(s.reader, frame.Data)
		if err != nil {
			s.frames.FailedWriting(frame)
			s.finish(err)
			return
		}
		s.frames.FinishedWriting(frame)
	}
}

func (s *StdinSource) finish(err error) {
	if errors.Is(err, io.EOF) {
		s.log.Info("end of stream")
		return
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = fmt.Errorf("stream ended mid-frame: %w", err)
	}
	s.err = err
	s.log.Error(fmt.Sprintf("could not read frame: %s", err))
}

// Done is closed once the stream has ended.
func (s *StdinSource) Done() <-chan struct{} {
	return s.done
}

// Err is the read error that ended the stream, nil on a clean EOF. Only
// valid after Done is closed.
func (s *StdinSource) Err() error {
	return s.err
}

func (s *StdinSource) Frames() *FrameForwarder {
	return &s.frames
}

// Stop stops reading after the frame in progress. It does not interrupt a
// blocked read.
func (s *StdinSource) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
