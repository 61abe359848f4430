// Package app wires the daemon together: the HTTP API, the WebSocket hub,
// the schedule store, the tracker, and the TLE catalog. It owns the serve
// lifecycle and is the single place where subsystems meet.
package app

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jdiez17/sat-o-mat/internal/config"
	"github.com/jdiez17/sat-o-mat/internal/predict"
	"github.com/jdiez17/sat-o-mat/internal/radio"
	"github.com/jdiez17/sat-o-mat/internal/schedule"
	"github.com/jdiez17/sat-o-mat/internal/tracker"
	"github.com/jdiez17/sat-o-mat/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger *log.Logger
	Cfg    config.Config
	Bind   string
}

// App is the daemon process.
type App struct {
	log    *log.Logger
	cfg    config.Config
	bind   string
	server *http.Server

	startedAt time.Time

	hub      *ws.Hub
	store    *schedule.Store
	tracker  *tracker.Tracker
	radio    radio.Controller
	tleStore *predict.TLEStore

	// One schedule executes at a time; the runner goroutine holds runMu
	// for the duration of the run.
	runMu sync.Mutex

	stateMu   sync.Mutex
	runningID string
}

// New assembles an App from configuration. The tracker broadcasts its
// samples through the hub.
func New(opts Options) (*App, error) {
	station := stationFromConfig(opts.Cfg)

	store, err := schedule.NewStore(opts.Cfg.Data.Root, opts.Logger)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub()
	trk := tracker.New(station, opts.Logger)
	trk.Events = hub.Publish

	a := &App{
		log:       opts.Logger,
		cfg:       opts.Cfg,
		bind:      opts.Bind,
		startedAt: time.Now(),
		hub:       hub,
		store:     store,
		tracker:   trk,
		radio:     radio.NewLogController(opts.Logger),
		tleStore:  predict.NewTLEStore(opts.Cfg.Data.TLEDir, opts.Cfg.Predict.TLEURL, opts.Logger),
	}
	return a, nil
}

// Run starts the HTTP server and WebSocket hub, blocking until the context
// is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" {
		bind = a.cfg.Server.Bind
	}

	if err := a.tleStore.LoadAll(); err != nil {
		// A missing or empty TLE directory only disables pass prediction.
		a.log.Printf("app: tle catalog not loaded: %v", err)
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	a.log.Printf("app: listening on http://%s", bind)

	go a.hub.Run(ctx)

	go func() {
		<-ctx.Done()
		a.log.Printf("app: shutdown requested")
		a.tracker.Stop()
		_ = a.server.Shutdown(context.Background())
	}()

	return a.server.Serve(ln)
}

// routes builds the daemon's HTTP mux.
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /api/status", a.handleStatus)

	mux.HandleFunc("GET /api/tracker", a.handleTrackerStatus)
	mux.HandleFunc("POST /api/tracker/run", a.handleTrackerRun)
	mux.HandleFunc("POST /api/tracker/stop", a.handleTrackerStop)

	mux.HandleFunc("GET /api/schedules", a.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", a.handleSubmitSchedule)
	mux.HandleFunc("GET /api/schedules/{id}", a.handleGetSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", a.handleDeleteSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/approve", a.handleApproveSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/reject", a.handleRejectSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/run", a.handleRunSchedule)

	mux.HandleFunc("GET /api/satellites", a.handleSatellites)
	mux.HandleFunc("GET /api/passes", a.handlePasses)
	mux.HandleFunc("POST /api/tle/refresh", a.handleTLERefresh)

	mux.Handle("/ws", a.hub.Handler())
	return mux
}

// station returns the process-lifetime ground station.
func (a *App) station() predict.GroundStation {
	return stationFromConfig(a.cfg)
}

func stationFromConfig(cfg config.Config) predict.GroundStation {
	return predict.GroundStation{
		LatitudeDeg:  cfg.Station.Latitude,
		LongitudeDeg: cfg.Station.Longitude,
		AltitudeM:    cfg.Station.Altitude,
	}
}
