package rendering

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fosdem/yuvstream/lib/glapi"
)

type MapErrorReason int

const (
	AlreadyMapped MapErrorReason = iota
	InFlight
	DriverRefused
)

func (r MapErrorReason) String() string {
	switch r {
	case AlreadyMapped:
		return "already mapped"
	case InFlight:
		return "in flight"
	case DriverRefused:
		return "driver refused mapping"
	default:
		panic("unknown map error reason")
	}
}

type MapError struct {
	Buffer uint32
	Reason MapErrorReason
}

func (e *MapError) Error() string {
	return fmt.Sprintf("cannot map staging buffer %d: %s", e.Buffer, e.Reason)
}

// StagingBuffer is a pixel unpack buffer the host writes a plane into before
// the GPU copies it into a texture. It is either mapped or usable as copy
// source, never both.
type StagingBuffer struct {
	gl       glapi.GL
	id       uint32
	capacity int

	mapping []byte
	bound   bool

	fence    glapi.Sync
	hasFence bool
	fences   bool
}

func NewStagingBuffer(gl glapi.GL, capacity int) *StagingBuffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("staging buffer capacity must be positive, got %d", capacity))
	}
	b := &StagingBuffer{
		gl:       gl,
		id:       gl.GenBuffer(),
		capacity: capacity,
		fences:   true,
	}
	gl.BindBuffer(glapi.PIXEL_UNPACK_BUFFER, b.id)
	gl.BufferData(glapi.PIXEL_UNPACK_BUFFER, capacity, nil, glapi.STREAM_DRAW)
	gl.BindBuffer(glapi.PIXEL_UNPACK_BUFFER, 0)
	return b
}

// DisableFences is for contexts without sync objects; such a buffer never
// reports being in flight.
func (b *StagingBuffer) DisableFences() {
	b.fences = false
}

func (b *StagingBuffer) ID() uint32 {
	return b.id
}

func (b *StagingBuffer) Capacity() int {
	return b.capacity
}

func (b *StagingBuffer) Mapped() bool {
	return b.mapping != nil
}

// WriteGuard holds a buffer mapped for writing until End is called.
type WriteGuard struct {
	buf *StagingBuffer
}

// BeginWrite maps the whole buffer write-only, discarding its previous
// contents.
func (b *StagingBuffer) BeginWrite() (*WriteGuard, error) {
	if b.mapping != nil {
		return nil, &MapError{Buffer: b.id, Reason: AlreadyMapped}
	}
	if b.InFlight() {
		return nil, &MapError{Buffer: b.id, Reason: InFlight}
	}

	b.gl.BindBuffer(glapi.PIXEL_UNPACK_BUFFER, b.id)
	mapping := b.gl.MapBufferRange(
		glapi.PIXEL_UNPACK_BUFFER, 0, b.capacity,
		glapi.MAP_WRITE_BIT|glapi.MAP_INVALIDATE_BUFFER_BIT,
	)
	if mapping == nil {
		b.gl.BindBuffer(glapi.PIXEL_UNPACK_BUFFER, 0)
		return nil, &MapError{Buffer: b.id, Reason: DriverRefused}
	}
	b.mapping = mapping
	return &WriteGuard{buf: b}, nil
}

// Bytes is the mapped memory. It must not be used after End.
func (g *WriteGuard) Bytes() []byte {
	if g.buf == nil || g.buf.mapping == nil {
		panic("writing to a staging buffer that is not mapped")
	}
	return g.buf.mapping
}

// End unmaps and unbinds the buffer. Calling it again does nothing.
func (g *WriteGuard) End() error {
	if g.buf == nil {
		return nil
	}
	b := g.buf
	g.buf = nil

	b.gl.BindBuffer(glapi.PIXEL_UNPACK_BUFFER, b.id)
	ok := b.gl.UnmapBuffer(glapi.PIXEL_UNPACK_BUFFER)
	b.gl.BindBuffer(glapi.PIXEL_UNPACK_BUFFER, 0)
	b.mapping = nil
	if !ok {
		return fmt.Errorf("staging buffer %d lost its contents while mapped", b.id)
	}
	return nil
}

// Write maps the buffer for the duration of fn.
func (b *StagingBuffer) Write(fn func(dst []byte) error) (err error) {
	g, err := b.BeginWrite()
	if err != nil {
		return err
	}
	defer func() {
		endErr := g.End()
		if err == nil {
			err = endErr
		}
	}()
	return fn(g.Bytes())
}

// BindAsCopySource makes the buffer the source of the next texture upload.
func (b *StagingBuffer) BindAsCopySource() {
	if b.mapping != nil {
		panic(fmt.Sprintf("staging buffer %d bound as copy source while mapped", b.id))
	}
	b.gl.BindBuffer(glapi.PIXEL_UNPACK_BUFFER, b.id)
	b.bound = true
}

func (b *StagingBuffer) Bound() bool {
	return b.bound
}

func (b *StagingBuffer) Unbind() {
	b.gl.BindBuffer(glapi.PIXEL_UNPACK_BUFFER, 0)
	b.bound = false
}

// MarkInFlight records that the GPU has been asked to read the buffer.
func (b *StagingBuffer) MarkInFlight() {
	if !b.fences {
		return
	}
	b.dropFence()
	b.fence = b.gl.FenceSync()
	b.hasFence = true
}

func (b *StagingBuffer) dropFence() {
	if b.hasFence {
		b.gl.DeleteSync(b.fence)
		b.hasFence = false
	}
}

// InFlight polls without blocking.
func (b *StagingBuffer) InFlight() bool {
	if !b.hasFence {
		return false
	}
	switch b.gl.ClientWaitSync(b.fence, 0) {
	case glapi.TIMEOUT_EXPIRED:
		return true
	case glapi.WAIT_FAILED:
		slog.Warn("fence wait failed, treating buffer as idle", "module", "staging", "buffer", b.id)
	}
	b.dropFence()
	return false
}

var errFenceWaitFailed = errors.New("fence wait failed")

// Await blocks until the GPU is done with the buffer, for at most timeout.
func (b *StagingBuffer) Await(timeout time.Duration) error {
	if !b.hasFence {
		return nil
	}
	switch b.gl.ClientWaitSync(b.fence, timeout) {
	case glapi.TIMEOUT_EXPIRED:
		return &MapError{Buffer: b.id, Reason: InFlight}
	case glapi.WAIT_FAILED:
		b.dropFence()
		return fmt.Errorf("staging buffer %d: %w", b.id, errFenceWaitFailed)
	}
	b.dropFence()
	return nil
}

func (b *StagingBuffer) Delete() {
	if b.id == 0 {
		return
	}
	if b.mapping != nil {
		g := &WriteGuard{buf: b}
		_ = g.End()
	}
	b.dropFence()
	b.gl.DeleteBuffer(b.id)
	b.id = 0
	b.bound = false
}
