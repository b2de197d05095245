package stats

import (
	"sync"
	"time"

	"github.com/fosdem/yuvstream/lib/rendering"
)

type Stats struct {
	TextureUpload      uint64  `json:"texture_upload"`
	TextureUploadAvgGb float64 `json:"texture_upload_avg_gb"`
	Uptime             float64 `json:"uptime"`
	FPS                uint64  `json:"fps"`
	WsClients          int     `json:"ws_clients"`

	FramesPresented uint64 `json:"frames_presented"`
	FramesDropped   uint64 `json:"frames_dropped"`
	Variant         string `json:"variant"`
	Format          string `json:"format"`

	frameCounter uint64
	frameTimer   time.Time
	start        time.Time
	lock         sync.Mutex
}

func New() *Stats {
	s := &Stats{}
	s.start = time.Now()
	s.frameTimer = s.start
	return s
}

// Describe records what the pipeline is streaming through.
func (s *Stats) Describe(variant, format string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Variant = variant
	s.Format = format
}

// Update is called once per loop iteration; presented tells whether a
// frame made it to the screen.
func (s *Stats) Update(presented bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if presented {
		s.frameCounter++
		s.FramesPresented++
	}
	if time.Since(s.frameTimer) > 1*time.Second {
		s.FPS = s.frameCounter
		s.frameCounter = 0
		s.frameTimer = time.Now()
	}

	s.Uptime = float64(time.Since(s.start).Nanoseconds()) / 1e9
	s.TextureUpload = rendering.TextureUploadCounter.Load()
	if s.Uptime > 0 {
		s.TextureUploadAvgGb = float64(s.TextureUpload) / (s.Uptime * 1024 * 1024 * 1024)
	}
}

func (s *Stats) Dropped() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.FramesDropped++
}

func (s *Stats) SetWsClients(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.WsClients = n
}

// Snapshot returns a copy that is safe to marshal while the frame loop
// keeps updating.
func (s *Stats) Snapshot() *Stats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return &Stats{
		TextureUpload:      s.TextureUpload,
		TextureUploadAvgGb: s.TextureUploadAvgGb,
		Uptime:             s.Uptime,
		FPS:                s.FPS,
		WsClients:          s.WsClients,
		FramesPresented:    s.FramesPresented,
		FramesDropped:      s.FramesDropped,
		Variant:            s.Variant,
		Format:             s.Format,
	}
}
