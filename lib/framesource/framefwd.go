package framesource

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fosdem/yuvstream/lib/metrics"
)

type FrameHold int

const (
	NoHold FrameHold = iota
	HoldUpdate
	Hold
)

// StaleAfter is how long a frame stays ready without a newer one.
const StaleAfter = 1 * time.Second

type Frame struct {
	ID   uint64
	Data []byte

	numReaders         atomic.Int32
	markedForRecycling bool
}

// FrameForwarder takes care of synchronising frames between a single
// writer goroutine and the GL thread.
// It is designed to drop unused source frames instead of queueing them,
// thus achieving minimal latency.
type FrameForwarder struct {
	Name      string
	FrameSize int
	NumFrames int

	IsReady   bool
	HoldFrame FrameHold
	FrameAge  time.Duration

	curReadingFrame *Frame

	bin []*Frame
	sync.Mutex

	LastFrameID uint64

	DroppedFramesIn  uint64
	DroppedFramesOut uint64

	metrics metrics.SourceMetrics
}

func (f *FrameForwarder) Init(name string, frameSize int, numFrames int) {
	f.Name = name
	f.FrameSize = frameSize
	f.NumFrames = numFrames
	f.FrameAge = 0
	f.allocateFrames(numFrames)
	f.metrics = metrics.NewSourceMetrics(name)
}

// GetFrameForReading gets the latest fully-written frame and blocks
// the writer from using it. The frame is released as available for
// writing into only after FinishedReading.
// Returns nil when there is nothing new to read.
func (f *FrameForwarder) GetFrameForReading() *Frame {
	f.Lock()
	defer f.Unlock()

	if f.HoldFrame == Hold {
		// Don't upload the frame again when holding
		return nil
	}

	frame := f.curReadingFrame
	if !f.IsReady || frame == nil {
		return nil
	}

	frame.numReaders.Add(1)
	f.metrics.FramesRead.Inc()

	if f.HoldFrame == HoldUpdate {
		// Don't send this frame again on the next request
		f.HoldFrame = Hold
	}
	return frame
}

func (f *FrameForwarder) FinishedReading(frame *Frame) {
	f.Lock()
	defer f.Unlock()

	numReaders := frame.numReaders.Add(-1)
	if numReaders < 0 {
		panic("FinishedReading called on frame with no readers")
	}
	if numReaders == 0 && frame.markedForRecycling {
		f.recycleFrame(frame)
	}
}

// GetFrameForWriting gets an unused frame for writing into.
// For each call of GetFrameForWriting() there should be exactly one corresponding
// call of either FinishedWriting() or FailedWriting() to put the frame back into
// the pool. Returns nil if the pool is empty, in which case the frame should be
// dropped.
func (f *FrameForwarder) GetFrameForWriting() *Frame {
	f.Lock()
	defer f.Unlock()

	if len(f.bin) == 0 {
		f.DroppedFramesOut += 1
		f.metrics.FramesDropped.Inc()
		metrics.Dropped(metrics.DropSourceOverrun)
		return nil
	}

	frame := f.bin[len(f.bin)-1]
	f.bin = f.bin[:len(f.bin)-1]

	f.LastFrameID += 1
	frame.ID = f.LastFrameID

	frame.markedForRecycling = false
	return frame
}

// FinishedWriting sets the given frame as the latest frame. The previous
// latest frame goes back into the pool once nobody reads it.
func (f *FrameForwarder) FinishedWriting(frame *Frame) {
	f.Lock()
	defer f.Unlock()

	if f.curReadingFrame != nil {
		if f.curReadingFrame.numReaders.Load() == 0 {
			f.recycleFrame(f.curReadingFrame)
		} else {
			f.curReadingFrame.markedForRecycling = true
		}
	}

	f.curReadingFrame = frame
	f.metrics.FramesWritten.Inc()

	f.FrameAge = 0
	f.IsReady = true
	if f.HoldFrame == Hold {
		f.HoldFrame = HoldUpdate
	}
}

// FailedWriting puts a frame back into the pool without updating
// the latest frame pointer
func (f *FrameForwarder) FailedWriting(frame *Frame) {
	f.Lock()
	defer f.Unlock()

	f.DroppedFramesIn += 1
	f.metrics.FramesDropped.Inc()

	f.recycleFrame(frame)
}

func (f *FrameForwarder) AvailableFramesForWriting() int {
	f.Lock()
	defer f.Unlock()
	return len(f.bin)
}

func (f *FrameForwarder) recycleFrame(frame *Frame) {
	if len(f.bin) >= cap(f.bin) {
		panic("more frames returned than extracted??")
	}
	f.bin = append(f.bin, frame)
}

func (f *FrameForwarder) allocateFrames(num int) {
	if num < 1 {
		return
	}
	f.bin = make([]*Frame, num)
	for i := range num {
		f.bin[i] = &Frame{Data: make([]byte, f.FrameSize)}
	}
}

// Age marks the latest frame as stale once it is older than StaleAfter,
// unless it is being held.
func (f *FrameForwarder) Age(dt time.Duration) {
	f.Lock()
	defer f.Unlock()

	f.FrameAge += dt
	if f.HoldFrame == NoHold && f.FrameAge > StaleAfter {
		f.IsReady = false
	}
}

func (f *FrameForwarder) Ready() bool {
	f.Lock()
	defer f.Unlock()
	return f.IsReady
}
