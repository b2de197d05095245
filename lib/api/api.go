package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/pprof"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fosdem/yuvstream/lib/api/docs"
	"github.com/fosdem/yuvstream/lib/config"
	"github.com/fosdem/yuvstream/lib/metrics"
	"github.com/fosdem/yuvstream/lib/stats"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title		yuvstream
// @version	1.0
// @description	Live status of a raw YUV frame player.
// @BasePath	/

type Api struct {
	srv http.Server
	mux *http.ServeMux
	cfg *config.Config

	Stats *stats.Stats

	// ShutdownRequested is set by /api/kill; the frame loop polls it
	ShutdownRequested atomic.Bool

	wsClients map[*websocket.Conn]bool
	wsLock    sync.Mutex
	log       *slog.Logger
}

func New(cfg *config.Config, s *stats.Stats) *Api {
	a := &Api{}
	a.cfg = cfg
	a.mux = http.NewServeMux()
	a.Stats = s
	a.wsClients = make(map[*websocket.Conn]bool)
	a.log = slog.With("module", "api")
	if cfg.Api != nil {
		a.srv.Addr = cfg.Api.Bind
	}
	a.srv.Handler = a.mux
	a.routes()
	return a
}

func (a *Api) routes() {
	if a.cfg.Api != nil && a.cfg.Api.EnableProfiler {
		a.mux.HandleFunc("/prof", a.profileCPU)
	}
	a.mux.HandleFunc("/api/kill", a.suicide)
	a.mux.HandleFunc("/api/stats", a.getStats)
	a.mux.HandleFunc("/api/config", a.handleConfig)
	a.mux.HandleFunc("/api/ws", a.handleWebsocket)
	a.mux.Handle("/metrics", metrics.Handler())
	a.mux.Handle("/api/docs/", httpSwagger.Handler(
		httpSwagger.URL("/api/docs/doc.json"),
		httpSwagger.InstanceName(docs.SwaggerInfo.InstanceName()),
	))
}

func (a *Api) Handler() http.Handler {
	return a.mux
}

func (a *Api) Serve() error {
	return a.srv.ListenAndServe()
}

func (a *Api) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}

// @Summary	Record a CPU profile
// @Router		/prof [get]
// @Tags		debug
// @Param		seconds	query	int	false	"Duration of the profile, 10 seconds by default"
// @Produce	octet-stream
// @Success	200
// @Failure	500	{string}	string	"A profile is already running"
func (a *Api) profileCPU(w http.ResponseWriter, req *http.Request) {
	duration := 10 * time.Second
	if s := req.URL.Query().Get("seconds"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "seconds must be a positive integer", http.StatusBadRequest)
			return
		}
		duration = time.Duration(n) * time.Second
	}
	err := pprof.StartCPUProfile(w)
	if err != nil {
		http.Error(w, fmt.Sprintf("Could not start CPU profile: %s", err), http.StatusInternalServerError)
		return
	}
	select {
	case <-time.After(duration):
	case <-req.Context().Done():
	}
	pprof.StopCPUProfile()
}

// @Summary	Stop the player
// @Router		/api/kill [post]
// @Tags		base
// @Produce	json
// @Success	200	{string}	string	"ok"
func (a *Api) suicide(w http.ResponseWriter, _ *http.Request) {
	a.log.Info("shutting down as per api request")
	a.ShutdownRequested.Store(true)
	_, err := fmt.Fprintf(w, "\"ok\"\n")
	if err != nil {
		a.log.Error(fmt.Sprintf("could not write response: %s", err))
	}
}

// @Summary	Get playback and upload statistics
// @Router		/api/stats [get]
// @Tags		base
// @Produce	json
// @Success	200	{object}	stats.Stats
func (a *Api) getStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	err := encoder.Encode(a.Stats.Snapshot())
	if err != nil {
		http.Error(w, fmt.Sprintf("could not encode stats: %s", err), http.StatusInternalServerError)
	}
}

type Config struct {
	Width          int    `json:"width" example:"1280"`
	Height         int    `json:"height" example:"720"`
	Layout         string `json:"layout" example:"i420"`
	Source         string `json:"source" example:"file"`
	Variant        string `json:"variant" example:"multi_plane"`
	Format         string `json:"format" example:"red_r8"`
	StagingBuffers int    `json:"staging_buffers" example:"2"`
}

// @Summary	Get the active stream configuration
// @Router		/api/config [get]
// @Tags		base
// @Produce	json
// @Success	200	{object}	Config
func (a *Api) handleConfig(w http.ResponseWriter, _ *http.Request) {
	result := &Config{
		Width:          a.cfg.Frames.Width,
		Height:         a.cfg.Frames.Height,
		Layout:         a.cfg.Frames.Layout,
		Source:         a.cfg.Source.Type,
		Variant:        a.cfg.Render.Variant,
		Format:         a.cfg.Render.Format,
		StagingBuffers: a.cfg.Render.StagingBuffers,
	}
	if result.Format == "" {
		result.Format = a.Stats.Snapshot().Format
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(result)
	if err != nil {
		http.Error(w, fmt.Sprintf("couldn't encode config: %s", err), http.StatusInternalServerError)
	}
}

func ServeInBackground(cfg *config.Config, s *stats.Stats) *Api {
	if cfg.Api == nil {
		return nil
	}
	theApi := New(cfg, s)
	theApi.log.Info(fmt.Sprintf("starting web server on %s", cfg.Api.Bind))
	go func() {
		err := theApi.Serve()
		if err != nil && err != http.ErrServerClosed {
			theApi.log.Error(fmt.Sprintf("could not start web server: %s", err))
		}
	}()
	return theApi
}
