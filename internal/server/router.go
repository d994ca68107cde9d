package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/reconsole/internal/process"
	"github.com/loykin/reconsole/internal/stream"
)

// Router provides embeddable HTTP handlers for the scan console.
// Endpoints:
//   POST {basePath}/start-scan                 body: process.Request JSON
//   POST {basePath}/stop-scan
//   GET  {basePath}/status
//   GET  {basePath}/stream-console             text/event-stream
//   GET  {basePath}/stream-file-notifications  text/event-stream
//   GET  {basePath}/api/list_directory         query: path=...
//   GET  {basePath}/api/get_file               query: path=...
//   GET  {basePath}/api/get_image              query: path=...
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	sup      *process.Supervisor
	pub      *stream.Publisher
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/recon" results in /recon/start-scan, /recon/stop-scan, ...
func NewRouter(sup *process.Supervisor, pub *stream.Publisher, basePath string) *Router {
	return &Router{sup: sup, pub: pub, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start-scan", r.handleStart)
	group.POST("/stop-scan", r.handleStop)
	group.GET("/status", r.handleStatus)
	group.GET("/stream-console", r.handleStreamConsole)
	group.GET("/stream-file-notifications", r.handleStreamNotifications)
	api := group.Group("/api")
	api.GET("/list_directory", r.handleListDirectory)
	api.GET("/get_file", r.handleGetFile)
	api.GET("/get_image", r.handleGetImage)
	return g
}

// NewServer starts a standalone HTTP server on addr serving h.
// There is no write timeout because event streams stay open indefinitely.
func NewServer(addr string, h http.Handler) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type messageResp struct {
	Message string `json:"message"`
}

type startResp struct {
	Message  string `json:"message"`
	BasePath string `json:"basePath"`
	ID       string `json:"id"`
}

// statusFor maps the supervisor's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var ae *process.AdmissionError
	switch {
	case errors.As(err, &ae), errors.Is(err, process.ErrNoActiveScan):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

func (r *Router) handleStart(c *gin.Context) {
	// an occupied slot is reported before the request is looked at
	if r.sup.State() != process.StateAbsent {
		writeError(c, process.ErrAlreadyRunning)
		return
	}
	var req process.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	spec, err := req.CommandSpec(r.sup.Config().ScriptPath)
	if err != nil {
		writeError(c, err)
		return
	}
	started, err := r.sup.Start(spec)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, startResp{
		Message:  fmt.Sprintf("Scan started for %s", started.Target),
		BasePath: started.BasePath,
		ID:       started.ID,
	})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.sup.Stop(); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, messageResp{Message: "Stop signal sent."})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status())
}

func (r *Router) handleStreamConsole(c *gin.Context) {
	startEventStream(c)
	_ = r.pub.Console(c.Request.Context(), c.Writer)
}

func (r *Router) handleStreamNotifications(c *gin.Context) {
	startEventStream(c)
	_ = r.pub.Notifications(c.Request.Context(), c.Writer)
}
