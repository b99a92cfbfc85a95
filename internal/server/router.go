package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"regexp"
	"strconv"

	"github.com/conneroisu/livetex/internal/build"
	"github.com/conneroisu/livetex/internal/config"
	"github.com/conneroisu/livetex/internal/logging"
	"github.com/conneroisu/livetex/internal/state"
	"github.com/conneroisu/livetex/internal/validation"
	"github.com/conneroisu/livetex/internal/version"
	"github.com/conneroisu/livetex/internal/watcher"
	"github.com/spf13/afero"
)

// Dependencies are everything the router reads from. Config and Store are
// required.
type Dependencies struct {
	Config *config.Config
	Store  state.Store
	Fs     afero.Fs
	Events *EventHub
	// Workers reports the supervised workers for /health.
	Workers func() []watcher.WorkerStatus
	Logger  logging.Logger
}

type routeHandler func(w http.ResponseWriter, r *http.Request, id string)

type route struct {
	method  string
	pattern *regexp.Regexp
	// accept further restricts the captured identifier; nil accepts all.
	accept func(id string) bool
	handle routeHandler
}

// Router dispatches requests through an ordered table of path patterns. The
// first route whose method and pattern both match wins; the captured group is
// the identifier.
type Router struct {
	cfg      *config.Config
	store    state.Store
	fs       afero.Fs
	events   *EventHub
	workers  func() []watcher.WorkerStatus
	isSource watcher.FileFilter
	logger   logging.Logger
	routes   []route
}

// NewRouter builds the route table. It panics if Config or Store is nil.
func NewRouter(deps Dependencies) *Router {
	if deps.Config == nil {
		panic("Router: config cannot be nil")
	}
	if deps.Store == nil {
		panic("Router: store cannot be nil")
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	r := &Router{
		cfg:      deps.Config,
		store:    deps.Store,
		fs:       deps.Fs,
		events:   deps.Events,
		workers:  deps.Workers,
		isSource: watcher.NewSourceFilter(deps.Config.Build.SourceExtensions),
		logger:   deps.Logger.WithComponent("router"),
	}
	r.registerRoutes()

	return r
}

func (r *Router) registerRoutes() {
	r.handle(http.MethodGet, `^/state/(.*)$`, r.handleState)
	r.handle(http.MethodDelete, `^/update/(.*)$`, r.handleClearUpdate)
	r.handle(http.MethodGet, `^/update/(.*)$`, r.handleUpdateFlag)
	r.handle(http.MethodGet, `^/pdf/(.*)$`, r.handleArtifact)
	r.handle(http.MethodGet, `^/log/(.*)$`, r.handleLog)
	if r.events != nil {
		r.handle(http.MethodGet, `^/events/(.*)$`, r.handleEvents)
	}
	r.handle(http.MethodGet, `^/(health)$`, r.handleHealth)

	// Generic source page, last
	r.handleIf(http.MethodGet, `^/(.+)$`, r.isSource, r.handlePreview)
}

func (r *Router) handle(method, pattern string, h routeHandler) {
	r.handleIf(method, pattern, nil, h)
}

func (r *Router) handleIf(method, pattern string, accept func(string) bool, h routeHandler) {
	r.routes = append(r.routes, route{
		method:  method,
		pattern: regexp.MustCompile(pattern),
		accept:  accept,
		handle:  h,
	})
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	for _, rt := range r.routes {
		if rt.method != req.Method {
			continue
		}
		match := rt.pattern.FindStringSubmatch(path)
		if match == nil {
			continue
		}
		if rt.accept != nil && !rt.accept(match[1]) {
			continue
		}
		rt.handle(w, req, match[1])
		return
	}

	r.logger.Debug(req.Context(), "No route for path", "method", req.Method, "path", path)
	w.WriteHeader(http.StatusNotFound)
}

// GET /state/<id>
func (r *Router) handleState(w http.ResponseWriter, req *http.Request, id string) {
	var body *state.Outcome
	if outcome, ok := r.store.Get(id); ok {
		body = &outcome
	}

	r.writeJSON(w, req, body)
}

// DELETE /update/<id>
func (r *Router) handleClearUpdate(w http.ResponseWriter, req *http.Request, id string) {
	if r.store.ClearUpdate(id) {
		r.logger.Debug(req.Context(), "Update consumed", "source", id)
	}
	w.WriteHeader(http.StatusOK)
}

// GET /update/<id>, answered as plain "true" or "false".
func (r *Router) handleUpdateFlag(w http.ResponseWriter, req *http.Request, id string) {
	outcome, _ := r.store.Get(id)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.FormatBool(outcome.Update)))
}

// GET /pdf/<id>
func (r *Router) handleArtifact(w http.ResponseWriter, req *http.Request, id string) {
	ext := r.cfg.Build.ArtifactExtension
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	r.serveFile(w, req, r.cfg.Build.OutputDir, id, ext, contentType)
}

// GET /log/<id>
func (r *Router) handleLog(w http.ResponseWriter, req *http.Request, id string) {
	r.serveFile(w, req, r.cfg.Build.IntermediateDir, id, r.cfg.Build.LogExtension, "text/plain; charset=utf-8")
}

// GET /events/<id>
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request, id string) {
	r.events.Serve(w, req, id, func() *state.Outcome {
		if outcome, ok := r.store.Get(id); ok {
			return &outcome
		}
		return nil
	})
}

type healthResponse struct {
	Status  string                 `json:"status"`
	Sources int                    `json:"sources"`
	Version string                 `json:"version"`
	Workers []watcher.WorkerStatus `json:"workers"`
}

// GET /health. Status is "degraded" once any worker has stopped, which
// happens when its source can no longer be read.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request, _ string) {
	health := healthResponse{
		Status:  "ok",
		Version: version.Short(),
		Workers: []watcher.WorkerStatus{},
	}
	if r.workers != nil {
		if workers := r.workers(); workers != nil {
			health.Workers = workers
		}
	}
	health.Sources = len(health.Workers)
	for _, worker := range health.Workers {
		if worker.State == watcher.StateStopped.String() {
			health.Status = "degraded"
		}
	}

	r.writeJSON(w, req, health)
}

// GET /<id> for ids with a source extension
func (r *Router) handlePreview(w http.ResponseWriter, req *http.Request, id string) {
	servePreview(w, req, id)
}

// serveFile answers with the file derived from id inside dir. Every failure,
// an unsafe identifier included, is a 500 with an empty body.
func (r *Router) serveFile(w http.ResponseWriter, req *http.Request, dir, id, ext, contentType string) {
	ctx := req.Context()

	if err := validation.ValidateIdentifier(id); err != nil {
		r.logger.Warn(ctx, err, "Rejected identifier", "source", id)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	path, err := validation.SafeJoin(dir, build.DerivedName(id, ext))
	if err != nil {
		r.logger.Warn(ctx, err, "Rejected identifier", "source", id)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		r.logger.Error(ctx, err, "Cannot read file", "source", id, "path", path)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (r *Router) writeJSON(w http.ResponseWriter, req *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error(req.Context(), err, "Failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
