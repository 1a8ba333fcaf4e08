package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"image-shrink-go/internal/apperr"
	"image-shrink-go/internal/compressor"
	"image-shrink-go/internal/config"
	"image-shrink-go/internal/metadata"
	"image-shrink-go/internal/pipeline"
	"image-shrink-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	backend    compressor.Backend
	inspector  metadata.Inspector
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Job state
	operationMutex sync.RWMutex
	running        int
	jobsDone       int
	lastStats      *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	JobID   string      `json:"job_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CompressRequest struct {
	SourcePath  string `json:"source_path"`
	Destination string `json:"destination,omitempty"`
	Credential  string `json:"credential,omitempty"`
}

type CompressURLRequest struct {
	URL         string `json:"url"`
	Destination string `json:"destination,omitempty"`
	Credential  string `json:"credential,omitempty"`
}

type BatchRequest struct {
	Paths      []string `json:"paths"`
	OutputDir  string   `json:"output_dir,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type FilterRequest struct {
	Paths []string `json:"paths"`
}

type WSMessage struct {
	Type  string      `json:"type"`
	JobID string      `json:"job_id,omitempty"`
	Data  interface{} `json:"data"`
}

func NewServer(cfg *config.Config, backend compressor.Backend, inspector metadata.Inspector, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		backend:   backend,
		inspector: inspector,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		// a nil CheckOrigin rejects cross-origin browser connections
		wsUpgrader: websocket.Upgrader{},
	}

	s.setupRoutes()
	return s
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/compress-url", s.handleCompressURL).Methods("POST")
	api.HandleFunc("/batch", s.handleBatch).Methods("POST")
	api.HandleFunc("/filter", s.handleFilter).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start listens on host:port until Stop is called. The API has no
// authentication and accepts local paths, so host should be a loopback
// address unless the network is trusted.
func (s *Server) Start(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// compression runs inside the request
		WriteTimeout: s.cfg.Backend.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.running
	done := s.jobsDone
	stats := s.lastStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary":  stats.GetSummary(),
			"counters": stats.Snapshot(),
		}
	}

	data := map[string]interface{}{
		"backend":    s.backend.Name(),
		"running":    running,
		"jobs_done":  done,
		"statistics": statsData,
	}
	if cr, ok := s.inspector.(metadata.CacheReporter); ok {
		data["metadata_cache"] = cr.GetCacheStats()
	}

	s.writeJSON(w, APIResponse{Success: true, Data: data})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SourcePath == "" {
		s.writeError(w, "source_path is required", http.StatusBadRequest)
		return
	}

	job := s.startJob("compress")
	res, err := job.pipeline.CompressFile(r.Context(), pipeline.Request{
		SourcePath:  req.SourcePath,
		Destination: req.Destination,
		Credential:  req.Credential,
	})
	s.finishJob(job, err)
	if err != nil {
		s.writeTaskError(w, job.host.JobID(), err)
		return
	}
	s.writeJSON(w, APIResponse{Success: true, JobID: job.host.JobID(), Data: res})
}

func (s *Server) handleCompressURL(w http.ResponseWriter, r *http.Request) {
	var req CompressURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job := s.startJob("compress_url")
	res, err := job.pipeline.CompressURL(r.Context(), pipeline.URLRequest{
		URL:         req.URL,
		Destination: req.Destination,
		Credential:  req.Credential,
	})
	s.finishJob(job, err)
	if err != nil {
		s.writeTaskError(w, job.host.JobID(), err)
		return
	}
	s.writeJSON(w, APIResponse{Success: true, JobID: job.host.JobID(), Data: res})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		s.writeError(w, "paths are required", http.StatusBadRequest)
		return
	}

	job := s.startJob("batch")
	report, err := job.pipeline.CompressBatch(r.Context(), pipeline.BatchRequest{
		Paths:       req.Paths,
		Destination: req.OutputDir,
		Credential:  req.Credential,
	})
	s.finishJob(job, err)
	if err != nil {
		s.writeTaskError(w, job.host.JobID(), err)
		return
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		JobID:   job.host.JobID(),
		Message: fmt.Sprintf("Total saved: %s", statistics.FormatBytes(report.TotalSaved)),
		Data:    report,
	})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	images := pipeline.FilterImages(req.Paths, s.cfg.ImageExtensions, s.log)
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    map[string]interface{}{"images": images},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

type job struct {
	host     *wsHost
	pipeline *pipeline.Pipeline
	op       string
}

func (s *Server) startJob(op string) *job {
	h := newWSHost(s, s.cfg.Session.Root, s.cfg.Backend.APIKey)
	p := pipeline.New(s.backend, h, s.log, s.inspector, pipeline.OptionsFromConfig(s.cfg))

	s.operationMutex.Lock()
	s.running++
	s.operationMutex.Unlock()

	s.broadcastWSMessage(op+"_started", h.JobID(), nil)
	return &job{host: h, pipeline: p, op: op}
}

func (s *Server) finishJob(j *job, err error) {
	s.operationMutex.Lock()
	s.running--
	s.jobsDone++
	s.lastStats = j.pipeline.Statistics()
	s.operationMutex.Unlock()

	if err != nil {
		s.broadcastWSMessage(j.op+"_error", j.host.JobID(), map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.broadcastWSMessage(j.op+"_completed", j.host.JobID(), map[string]interface{}{
		"statistics": j.pipeline.Statistics().Snapshot(),
	})
}

func (s *Server) broadcastWSMessage(messageType, jobID string, data interface{}) {
	message := WSMessage{
		Type:  messageType,
		JobID: jobID,
		Data:  data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeTaskError maps a pipeline error onto an HTTP status.
func (s *Server) writeTaskError(w http.ResponseWriter, jobID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrBackend), errors.Is(err, apperr.ErrProtocol):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		JobID:   jobID,
		Error:   err.Error(),
	})
}
