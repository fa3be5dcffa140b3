package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ritzau/deps-builder/pkg/build"
	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/model"
	"github.com/ritzau/deps-builder/pkg/pubsub"
	"github.com/ritzau/deps-builder/pkg/scheduler"
)

// ErrBuildRunning is returned by a BuildFunc when a build is already in progress
var ErrBuildRunning = errors.New("a build is already running")

// BuildFunc starts a build in the background
type BuildFunc func() error

// OrderData is the body of GET /api/order
type OrderData struct {
	Root  string   `json:"root"`
	Order []string `json:"order"`
}

// BuildData is the body of GET /api/build
type BuildData struct {
	Running bool               `json:"running"`
	State   *scheduler.State   `json:"state,omitempty"`
	Results []build.NodeResult `json:"results"`
	Error   string             `json:"error,omitempty"`
}

// Server serves the state of the last resolution and build
type Server struct {
	router    *mux.Router
	publisher *pubsub.SSEPublisher
	logger    *slog.Logger

	mu       sync.RWMutex
	graph    *model.Graph
	order    *OrderData
	resolved error
	sched    *scheduler.Scheduler
	results  []build.NodeResult
	running  bool
	buildErr error
	onBuild  BuildFunc
}

// NewServer creates a new web server
func NewServer() *Server {
	publisher := pubsub.NewSSEPublisher()

	// resolution: only the current state matters to a new subscriber
	publisher.ConfigureTopic(pubsub.TopicResolution, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
	})

	// build: replay the progress of the running build
	publisher.ConfigureTopic(pubsub.TopicBuild, pubsub.TopicConfig{
		BufferSize: 256,
		ReplayAll:  true,
	})

	s := &Server{
		router:    mux.NewRouter(),
		publisher: publisher,
		logger:    logging.New("web"),
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler with request logging applied
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

// Publisher returns the event publisher streaming to subscribers
func (s *Server) Publisher() pubsub.Publisher {
	return s.publisher
}

// OnBuild registers the function POST /api/build calls
func (s *Server) OnBuild(f BuildFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBuild = f
}

// PublishResolving announces that resolution of root started
func (s *Server) PublishResolving(root dep.Dep) {
	s.publish(pubsub.TopicResolution, "resolving", pubsub.ResolutionStatus{State: "resolving", Root: root.String()})
}

// SetResolution stores a resolution outcome. err is set when resolution or ordering failed.
func (s *Server) SetResolution(root dep.Dep, res *graph.Result, order []dep.Key, err error) {
	s.mu.Lock()
	s.resolved = err
	if err == nil {
		s.graph = model.FromResult(res)
		names := make([]string, 0, len(order))
		for _, k := range order {
			names = append(names, k.String())
		}
		s.order = &OrderData{Root: res.Root.String(), Order: names}
	}
	s.mu.Unlock()

	if err != nil {
		s.publish(pubsub.TopicResolution, "failed",
			pubsub.ResolutionStatus{State: "failed", Root: root.String(), Message: err.Error()})
		return
	}
	s.publish(pubsub.TopicResolution, "resolved", pubsub.ResolutionStatus{
		State:     "resolved",
		Root:      res.Root.String(),
		Nodes:     res.Graph.Len(),
		Collapsed: len(res.Collapsed),
	})
}

// BuildStarted attaches the scheduler of a new build run
func (s *Server) BuildStarted(sched *scheduler.Scheduler, total int) {
	s.mu.Lock()
	s.sched = sched
	s.results = nil
	s.running = true
	s.buildErr = nil
	s.mu.Unlock()
	s.publish(pubsub.TopicBuild, "started", pubsub.BuildProgress{Status: "started", Total: total})
}

// NodeFinished records one node result; safe to use as a build.Runner OnFinish hook
func (s *Server) NodeFinished(res build.NodeResult) {
	s.mu.Lock()
	s.results = append(s.results, res)
	done := len(s.results)
	total := 0
	if s.sched != nil {
		st := s.sched.Snapshot()
		total = len(st.Waiting) + len(st.Building) + len(st.Built)
	}
	s.mu.Unlock()

	status := "ok"
	if res.Err != "" {
		status = "failed"
	}
	s.publish(pubsub.TopicBuild, "node_finished", pubsub.BuildProgress{
		Node:     res.Node.String(),
		Status:   status,
		Duration: res.Duration,
		Done:     done,
		Total:    total,
		Error:    res.Err,
	})
}

// BuildFinished marks the running build as done
func (s *Server) BuildFinished(err error) {
	s.mu.Lock()
	s.running = false
	s.buildErr = err
	done := len(s.results)
	s.mu.Unlock()

	p := pubsub.BuildProgress{Status: "finished", Done: done}
	if err != nil {
		p.Status = "failed"
		p.Error = err.Error()
	}
	s.publish(pubsub.TopicBuild, "finished", p)
}

func (s *Server) publish(topic, eventType string, data interface{}) {
	if err := s.publisher.Publish(topic, eventType, data); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "type", eventType, "error", err)
	}
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/graph", s.handleGraph).Methods("GET")
	api.HandleFunc("/order", s.handleOrder).Methods("GET")
	api.HandleFunc("/build", s.handleBuildStatus).Methods("GET")
	api.HandleFunc("/build", s.handleStartBuild).Methods("POST")
	api.HandleFunc("/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	g, err := s.graph, s.resolved
	s.mu.RUnlock()

	switch {
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err)
	case g == nil:
		writeError(w, http.StatusServiceUnavailable, errors.New("no graph resolved yet"))
	default:
		writeJSON(w, http.StatusOK, g)
	}
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	o, err := s.order, s.resolved
	s.mu.RUnlock()

	switch {
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err)
	case o == nil:
		writeError(w, http.StatusServiceUnavailable, errors.New("no graph resolved yet"))
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

func (s *Server) handleBuildStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data := BuildData{
		Running: s.running,
		Results: append([]build.NodeResult{}, s.results...),
	}
	if s.sched != nil {
		st := s.sched.Snapshot()
		data.State = &st
	}
	if s.buildErr != nil {
		data.Error = s.buildErr.Error()
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleStartBuild(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	f := s.onBuild
	s.mu.RUnlock()

	if f == nil {
		writeError(w, http.StatusNotImplemented, errors.New("builds are not enabled"))
		return
	}
	if err := f(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrBuildRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if topic != pubsub.TopicResolution && topic != pubsub.TopicBuild {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown topic %q", topic))
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial comment to establish connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			s.logger.DebugContext(r.Context(), "subscriber went away", "topic", topic, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting status server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.publisher.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
