package framesource

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fosdem/yuvstream/lib/config"
	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/metrics"
	"github.com/jhenstridge/go-inotify"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func writeFrames(t *testing.T, frameSize int, seeds ...byte) string {
	t.Helper()
	var buf []byte
	for _, s := range seeds {
		buf = append(buf, bytes.Repeat([]byte{s}, frameSize)...)
	}
	path := filepath.Join(t.TempDir(), "clip.yuv")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

// next waits for a frame newer than after and returns its first byte.
func next(t *testing.T, f *FrameForwarder, after uint64) (uint64, byte) {
	t.Helper()
	var id uint64
	var first byte
	require.Eventually(t, func() bool {
		frame := f.GetFrameForReading()
		if frame == nil {
			return false
		}
		defer f.FinishedReading(frame)
		if frame.ID <= after {
			return false
		}
		id, first = frame.ID, frame.Data[0]
		return true
	}, waitFor, tick)
	return id, first
}

func TestForwarderRecycling(t *testing.T) {
	var f FrameForwarder
	f.Init("recycling", 4, 2)
	assert.Nil(t, f.GetFrameForReading())
	assert.False(t, f.Ready())

	w := f.GetFrameForWriting()
	require.NotNil(t, w)
	copy(w.Data, "abcd")
	f.FinishedWriting(w)

	r := f.GetFrameForReading()
	require.Same(t, w, r)
	assert.Equal(t, uint64(1), r.ID)

	w2 := f.GetFrameForWriting()
	require.NotNil(t, w2)

	before := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.DropSourceOverrun))
	assert.Nil(t, f.GetFrameForWriting())
	assert.Equal(t, uint64(1), f.DroppedFramesOut)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.DropSourceOverrun)))

	// w is still being read, so it only returns to the pool afterwards
	f.FinishedWriting(w2)
	assert.Zero(t, f.AvailableFramesForWriting())
	f.FinishedReading(r)
	assert.Equal(t, 1, f.AvailableFramesForWriting())

	assert.Same(t, w2, f.GetFrameForReading())
}

func TestForwarderFailedWriting(t *testing.T) {
	var f FrameForwarder
	f.Init("failed", 4, 1)
	w := f.GetFrameForWriting()
	f.FailedWriting(w)
	assert.Equal(t, uint64(1), f.DroppedFramesIn)
	assert.Equal(t, 1, f.AvailableFramesForWriting())
	assert.Nil(t, f.GetFrameForReading())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SourceFramesDropped.WithLabelValues("failed")))
}

func TestForwarderHold(t *testing.T) {
	var f FrameForwarder
	f.Init("hold", 4, 2)
	f.HoldFrame = Hold

	w := f.GetFrameForWriting()
	f.FinishedWriting(w)
	assert.Equal(t, HoldUpdate, f.HoldFrame)

	r := f.GetFrameForReading()
	require.NotNil(t, r)
	f.FinishedReading(r)
	assert.Nil(t, f.GetFrameForReading())

	f.Age(2 * StaleAfter)
	assert.True(t, f.Ready())
}

func TestForwarderStale(t *testing.T) {
	var f FrameForwarder
	f.Init("stale", 4, 2)
	f.FinishedWriting(f.GetFrameForWriting())

	f.Age(StaleAfter / 2)
	assert.True(t, f.Ready())
	f.Age(StaleAfter)
	assert.False(t, f.Ready())
	assert.Nil(t, f.GetFrameForReading())
}

func TestForwarderFinishedReadingTwicePanics(t *testing.T) {
	var f FrameForwarder
	f.Init("panics", 4, 2)
	f.FinishedWriting(f.GetFrameForWriting())
	r := f.GetFrameForReading()
	f.FinishedReading(r)
	assert.Panics(t, func() { f.FinishedReading(r) })
}

func TestFileSourcePlaysAndLoops(t *testing.T) {
	path := writeFrames(t, 16, 1, 2, 3)
	s := NewFileSource(path, 16, 3, FileOptions{Rate: 100, Loop: true})
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Equal(t, 3, s.NumFrames())

	// frame N of the stream always carries file frame (N-1)%3, even when
	// the reader skips some
	var id uint64
	var b byte
	for id <= 3 || b != 1 {
		id, b = next(t, s.Frames(), id)
		require.Equal(t, byte((id-1)%3+1), b, "frame %d", id)
	}
}

func TestFileSourceHoldsLastFrame(t *testing.T) {
	path := writeFrames(t, 16, 1, 2)
	s := NewFileSource(path, 16, 3, FileOptions{Rate: 200})
	require.NoError(t, s.Start())
	defer s.Stop()

	f := s.Frames()
	require.Eventually(t, func() bool {
		f.Lock()
		defer f.Unlock()
		return f.LastFrameID == 2
	}, waitFor, tick)

	_, b := next(t, f, 0)
	assert.Equal(t, byte(2), b)
	assert.Nil(t, f.GetFrameForReading())
}

func TestFileSourceStill(t *testing.T) {
	path := writeFrames(t, 16, 7)
	s := NewFileSource(path, 16, 2, FileOptions{})
	require.NoError(t, s.Start())
	defer s.Stop()

	_, b := next(t, s.Frames(), 0)
	assert.Equal(t, byte(7), b)
	assert.Nil(t, s.Frames().GetFrameForReading())
}

func TestFileSourceWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.yuv")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))

	s := NewFileSource(path, 24, 2, FileOptions{})
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Equal(t, 1, s.NumFrames())

	var frame *Frame
	require.Eventually(t, func() bool {
		frame = s.Frames().GetFrameForReading()
		return frame != nil
	}, waitFor, tick)
	defer s.Frames().FinishedReading(frame)
	assert.Len(t, frame.Data, 100)
}

func TestFileSourceMissing(t *testing.T) {
	s := NewFileSource(filepath.Join(t.TempDir(), "nope.yuv"), 16, 2, FileOptions{})
	assert.ErrorIs(t, s.Start(), os.ErrNotExist)
}

func TestFileSourceReload(t *testing.T) {
	ReloadDelay = 10 * time.Millisecond
	defer func() { ReloadDelay = 100 * time.Millisecond }()

	path := writeFrames(t, 16, 1)
	s := NewFileSource(path, 16, 2, FileOptions{Inotify: true})
	require.NoError(t, s.Start())
	defer s.Stop()

	id, b := next(t, s.Frames(), 0)
	assert.Equal(t, byte(1), b)

	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{9}, 16), 0o644))
	_, b = next(t, s.Frames(), id)
	assert.Equal(t, byte(9), b)
}

func TestFileSourceWatcherFailureUnmaps(t *testing.T) {
	orig := newWatcher
	newWatcher = func() (*inotify.Watcher, error) {
		return nil, errors.New("too many open files")
	}
	defer func() { newWatcher = orig }()

	s := NewFileSource(writeFrames(t, 16, 1, 2), 16, 2, FileOptions{Inotify: true})
	err := s.Start()
	assert.ErrorContains(t, err, "too many open files")
	assert.False(t, s.Mapped())
}

func TestStdinSource(t *testing.T) {
	input := append(bytes.Repeat([]byte{1}, 8), bytes.Repeat([]byte{2}, 8)...)
	s := NewStdinSource(bytes.NewReader(input), 8, 3, 0)
	require.NoError(t, s.Start())

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("stdin source did not finish")
	}
	assert.NoError(t, s.Err())

	id, b := next(t, s.Frames(), 0)
	assert.Equal(t, byte(2), b)
	assert.Equal(t, uint64(2), id)
}

func TestStdinSourceTruncated(t *testing.T) {
	s := NewStdinSource(bytes.NewReader(make([]byte, 12)), 8, 3, 0)
	require.NoError(t, s.Start())
	<-s.Done()
	assert.ErrorIs(t, s.Err(), io.ErrUnexpectedEOF)
	assert.Equal(t, uint64(1), s.Frames().DroppedFramesIn)
}

func TestStdinSourceStop(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	s := NewStdinSource(r, 8, 2, 1000)
	require.NoError(t, s.Start())

	_, err := w.Write(make([]byte, 8))
	require.NoError(t, err)
	s.Stop()
	s.Stop()
	w.Close()

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("stdin source did not stop")
	}
}

func TestReadFrame(t *testing.T) {
	path := writeFrames(t, 6, 4)
	data, err := ReadFrame(path)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{4}, 6), data)

	empty := filepath.Join(t.TempDir(), "empty.yuv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = ReadFrame(empty)
	assert.ErrorContains(t, err, "empty")
}

func TestNew(t *testing.T) {
	frames := encdec.FrameCfg{Width: 4, Height: 2, NumAllocatedFrames: 1}

	src, err := New(&config.SourceCfg{Type: "file", Path: "clip.yuv", Rate: 25}, frames)
	require.NoError(t, err)
	fs, ok := src.(*FileSource)
	require.True(t, ok)
	assert.Equal(t, 12, fs.Frames().FrameSize)
	assert.Equal(t, 2, fs.Frames().NumFrames)

	src, err = New(&config.SourceCfg{Type: "stdin"}, frames)
	require.NoError(t, err)
	assert.IsType(t, &StdinSource{}, src)

	_, err = New(&config.SourceCfg{Type: "v4l"}, frames)
	assert.Error(t, err)

	_, err = New(&config.SourceCfg{Type: "stdin"}, encdec.FrameCfg{Width: 3, Height: 2})
	var sizeErr *encdec.SizeMismatchError
	assert.ErrorAs(t, err, &sizeErr)
}
