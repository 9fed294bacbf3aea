// Package httpapi is the HTTP Control Plane: a thin gin REST layer exposing
// the Task Store, Supervisor, and OS Discovery (spec.md §4.8, §6).
//
// Grounded on the teacher's internal/server/router.go (gin.New + Recovery,
// grouped routes, a writeJSON helper, plain struct response bodies).
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/procpanel/tasksupervisor/internal/discovery"
	"github.com/procpanel/tasksupervisor/internal/guardian"
	"github.com/procpanel/tasksupervisor/internal/metrics"
	"github.com/procpanel/tasksupervisor/internal/model"
	"github.com/procpanel/tasksupervisor/internal/supervisor"
	"github.com/procpanel/tasksupervisor/internal/taskstore"
)

// Router builds the gin engine exposing every endpoint in spec.md §6.
type Router struct {
	store    *taskstore.Store
	sup      *supervisor.Supervisor
	mx       *metrics.Metrics
	guardian *guardian.Guardian
}

// New constructs a Router wired to store, sup, an optional metrics set, and
// an optional guardian (nil disables the guardian-state clearing on user
// actions but leaves every other endpoint intact, e.g. in tests).
func New(store *taskstore.Store, sup *supervisor.Supervisor, mx *metrics.Metrics, g *guardian.Guardian) *Router {
	return &Router{store: store, sup: sup, mx: mx, guardian: g}
}

// clearGuardianState forgets any pending backoff for id, since any user
// action (start, stop, restart) is a fresh "last user action" per
// spec.md §4.6.
func (r *Router) clearGuardianState(id string) {
	if r.guardian != nil {
		r.guardian.ClearState(id)
	}
}

// Handler returns the http.Handler for this Router, with permissive CORS
// and recovery middleware (spec.md §4.8: "no authentication, CORS is
// permissive").
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(corsMiddleware())

	api := g.Group("/api")
	{
		projects := api.Group("/projects")
		projects.GET("", r.listProjects)
		projects.POST("", r.createProject)
		projects.PUT("/:id", r.updateProject)
		projects.DELETE("/:id", r.deleteProject)
		projects.POST("/dedupe", r.dedupeProjects)
		projects.POST("/start", r.startProject)
		projects.POST("/stop", r.stopProject)
		projects.POST("/restart", r.restartProject)
		projects.GET("/status/:id", r.statusProject)
		projects.GET("/logs/:id", r.getLogs)
		projects.DELETE("/logs/:id", r.clearLogs)

		processes := api.Group("/processes")
		processes.GET("/search", r.searchProcesses)
		processes.GET("/by-port/:port", r.listByPort)
		processes.POST("/kill", r.killProcess)
	}

	if r.mx != nil {
		g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return g
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type errorResp struct {
	Error  string   `json:"error"`
	Code   *int     `json:"code,omitempty"`
	Signal string   `json:"signal,omitempty"`
	Logs   *logsResp `json:"logs,omitempty"`
}

type logsResp struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

type okResp struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (r *Router) listProjects(c *gin.Context) {
	tasks, err := r.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (r *Router) createProject(c *gin.Context) {
	var t model.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	created, err := r.store.Create(t)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, created)
}

func (r *Router) updateProject(c *gin.Context) {
	id := c.Param("id")
	var patch model.Task
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	updated, ok, err := r.store.Update(id, patch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, errorResp{Error: "unknown task id"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (r *Router) deleteProject(c *gin.Context) {
	id := c.Param("id")
	r.sup.Stop(supervisor.StopRequest{ID: id})
	_, _ = r.store.Delete(id)
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) dedupeProjects(c *gin.Context) {
	removed, total, err := r.store.Dedupe()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "removed": removed, "total": total})
}

type startBody struct {
	ID                 string            `json:"id"`
	StartCommand       string            `json:"start_command"`
	WorkingDirectory   string            `json:"working_directory"`
	EnvironmentVars    map[string]string `json:"environment_variables"`
	StartupTimeoutMS   int               `json:"startup_timeout_ms"`
}

func (r *Router) startProject(c *gin.Context) {
	var body startBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if r.mx != nil {
		r.mx.TaskStartsTotal.Inc()
	}
	r.clearGuardianState(body.ID)
	result := r.sup.Start(supervisor.StartRequest{
		ID:               body.ID,
		StartCommand:     body.StartCommand,
		WorkingDirectory: body.WorkingDirectory,
		EnvironmentVars:  body.EnvironmentVars,
		StartupTimeoutMS: body.StartupTimeoutMS,
	})
	writeStartResult(c, result)
}

func writeStartResult(c *gin.Context, result supervisor.StartResult) {
	if result.Err != nil && isValidationErr(result.Err) {
		c.JSON(http.StatusBadRequest, errorResp{Error: result.Err.Error()})
		return
	}
	if !result.OK {
		resp := errorResp{Logs: &logsResp{Stdout: result.Stdout, Stderr: result.Stderr}}
		if result.Err != nil {
			resp.Error = result.Err.Error()
		} else {
			resp.Error = "command exited during startup window"
		}
		if result.Code != 0 {
			code := result.Code
			resp.Code = &code
		}
		resp.Signal = result.Signal
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "pid": result.PID})
}

type stopBody struct {
	ID               string            `json:"id"`
	StopCommand      string            `json:"stop_command"`
	WorkingDirectory string            `json:"working_directory"`
	EnvironmentVars  map[string]string `json:"environment_variables"`
}

func (r *Router) stopProject(c *gin.Context) {
	var body stopBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	r.clearGuardianState(body.ID)
	result := r.sup.Stop(supervisor.StopRequest{
		ID:               body.ID,
		StopCommand:      body.StopCommand,
		WorkingDirectory: body.WorkingDirectory,
		EnvironmentVars:  body.EnvironmentVars,
	})
	if result.Err != nil && isValidationErr(result.Err) {
		c.JSON(http.StatusBadRequest, errorResp{Error: result.Err.Error()})
		return
	}
	if !result.OK {
		c.JSON(http.StatusInternalServerError, errorResp{
			Error: result.Err.Error(),
			Logs:  &logsResp{Stdout: result.Stdout, Stderr: result.Stderr},
		})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true, Message: result.Message})
}

type restartBody struct {
	ID                 string            `json:"id"`
	StartCommand       string            `json:"start_command"`
	StopCommand        string            `json:"stop_command"`
	WorkingDirectory   string            `json:"working_directory"`
	EnvironmentVars    map[string]string `json:"environment_variables"`
	StartupTimeoutMS   int               `json:"startup_timeout_ms"`
}

func (r *Router) restartProject(c *gin.Context) {
	var body restartBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	r.clearGuardianState(body.ID)
	result := r.sup.Restart(supervisor.RestartRequest{
		ID:               body.ID,
		StartCommand:     body.StartCommand,
		StopCommand:      body.StopCommand,
		WorkingDirectory: body.WorkingDirectory,
		EnvironmentVars:  body.EnvironmentVars,
		StartupTimeoutMS: body.StartupTimeoutMS,
	})
	writeStartResult(c, result)
}

func (r *Router) statusProject(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, r.sup.Status(id))
}

func (r *Router) getLogs(c *gin.Context) {
	id := c.Param("id")
	stdout, stderr := r.sup.Logs(id)
	c.JSON(http.StatusOK, logsResp{Stdout: stdout, Stderr: stderr})
}

func (r *Router) clearLogs(c *gin.Context) {
	id := c.Param("id")
	r.sup.ClearLogs(id)
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) searchProcesses(c *gin.Context) {
	name := c.Query("name")
	matches, err := discovery.SearchByName(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, matches)
}

func (r *Router) listByPort(c *gin.Context) {
	port, err := discovery.ParsePort(c.Param("port"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	matches, err := discovery.ListByPort(port)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, matches)
}

type killBody struct {
	PID    int32  `json:"pid"`
	Signal string `json:"signal"`
}

func (r *Router) killProcess(c *gin.Context) {
	var body killBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if body.PID <= 0 {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid pid"})
		return
	}
	if err := discovery.Kill(body.PID, body.Signal); err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "pid": body.PID, "signal": body.Signal})
}

func isValidationErr(err error) bool {
	return errors.Is(err, supervisor.ErrValidation)
}

// NewServer builds an *http.Server wrapping Handler with the teacher's
// conservative timeout defaults (internal/server/router.go NewServer).
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // logs/status can be long-lived from slow clients; start/stop block up to the startup window
		IdleTimeout:       60 * time.Second,
	}
}
