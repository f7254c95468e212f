package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/firedesk/firedesk/internal/domain/instance"
	"github.com/firedesk/firedesk/internal/infrastructure/monitoring"
	"github.com/firedesk/firedesk/internal/providers/clipboard"
	"github.com/firedesk/firedesk/internal/providers/proxycheck"
	"github.com/firedesk/firedesk/internal/shared/paths"
	"github.com/firedesk/firedesk/internal/shared/types"
)

// Version is reported by the root and health endpoints.
const Version = "1.0.0"

// DaemonChecker reports whether a display daemon is alive. Satisfied by
// the process supervisor.
type DaemonChecker interface {
	CheckDaemon(ctx context.Context, pattern string) bool
}

// Handlers contains all HTTP handlers
type Handlers struct {
	manager   *instance.Manager
	clipboard *clipboard.Provider
	checker   *proxycheck.Checker
	daemons   DaemonChecker
	metrics   *monitoring.Metrics
	layout    paths.Layout
}

// NewHandlers creates a new handler set
func NewHandlers(
	manager *instance.Manager,
	clip *clipboard.Provider,
	checker *proxycheck.Checker,
	daemons DaemonChecker,
	metrics *monitoring.Metrics,
	layout paths.Layout,
) *Handlers {
	return &Handlers{
		manager:   manager,
		clipboard: clip,
		checker:   checker,
		daemons:   daemons,
		metrics:   metrics,
		layout:    layout,
	}
}

// Root handles the basic liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "firedesk",
		"version": Version,
	})
}

// Health handles the detailed health check. The admin service is healthy
// as long as it can serve; dead display daemons degrade the report but
// do not fail it, since instance CRUD still works without VNC.
func (h *Handlers) Health(c *gin.Context) {
	ctx := c.Request.Context()
	vnc := h.daemons.CheckDaemon(ctx, "Xvnc")
	websockify := h.daemons.CheckDaemon(ctx, "websockify")

	status := "healthy"
	if !vnc || !websockify {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"instances": h.manager.Stats(),
		"daemons": gin.H{
			"vnc":        vnc,
			"websockify": websockify,
		},
		"metrics": h.metrics.GetSnapshot(),
	})
}

// ListInstances lists all instances
func (h *Handlers) ListInstances(c *gin.Context) {
	instances := h.manager.List()

	c.JSON(http.StatusOK, gin.H{
		"instances": instances,
		"stats":     h.manager.Stats(),
	})
}

// CreateInstance creates a new instance
func (h *Handlers) CreateInstance(c *gin.Context) {
	var req types.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, err := h.manager.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, inst)
}

// GetInstance returns one instance
func (h *Handlers) GetInstance(c *gin.Context) {
	inst, err := h.manager.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, inst)
}

// UpdateInstance applies a partial update
func (h *Handlers) UpdateInstance(c *gin.Context) {
	var req types.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, err := h.manager.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, inst)
}

// DeleteInstance removes an instance. ?force=true stops a running one first.
func (h *Handlers) DeleteInstance(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	if err := h.manager.Delete(c.Request.Context(), c.Param("id"), force); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "instance_id": c.Param("id")})
}

// StartInstance launches the instance's browser
func (h *Handlers) StartInstance(c *gin.Context) {
	inst, err := h.manager.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, inst)
}

// StopInstance stops the instance's browser
func (h *Handlers) StopInstance(c *gin.Context) {
	inst, err := h.manager.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, inst)
}

// Autostart launches every instance flagged auto_start
func (h *Handlers) Autostart(c *gin.Context) {
	result := h.manager.StartAutostart(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

// ProxyCheck probes connectivity through the instance's proxy
func (h *Handlers) ProxyCheck(c *gin.Context) {
	inst, err := h.manager.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req types.ProxyCheckRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	timer := monitoring.NewTimer(h.metrics, "proxycheck", "check")
	result, err := h.checker.Check(c.Request.Context(), inst.Proxy, &req)
	if err != nil {
		timer.Stop("error")
		respondError(c, err)
		return
	}
	timer.Stop("success")

	c.JSON(http.StatusOK, result)
}

// ExportInstance streams the profile directory as a tar.gz download
func (h *Handlers) ExportInstance(c *gin.Context) {
	instanceID := c.Param("id")
	inst, err := h.manager.Get(instanceID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Pre-check before committing response headers; Export re-validates
	// under the instance lock.
	switch inst.ObservedState {
	case types.StateStopped, types.StateCrashed:
	default:
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("instance %s is %s, stop it before exporting", inst.ID, inst.ObservedState),
		})
		return
	}

	filename := fmt.Sprintf("%s-profile.tar.gz", inst.ID)
	c.Header("Content-Type", "application/gzip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.manager.Export(c.Request.Context(), instanceID, c.Writer); err != nil {
		// Headers may already be out; all we can do is drop the stream.
		c.Abort()
		return
	}
}

// ReadClipboard returns the shared VNC clipboard content
func (h *Handlers) ReadClipboard(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "clipboard", "read")
	content, err := h.clipboard.Read(c.Request.Context())
	if err != nil {
		timer.Stop("error")
		respondError(c, err)
		return
	}
	timer.Stop("success")

	c.JSON(http.StatusOK, gin.H{"content": content})
}

// WriteClipboard replaces the shared VNC clipboard content
func (h *Handlers) WriteClipboard(c *gin.Context) {
	var req types.ClipboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timer := monitoring.NewTimer(h.metrics, "clipboard", "write")
	if err := h.clipboard.Write(c.Request.Context(), req.Content); err != nil {
		timer.Stop("error")
		respondError(c, err)
		return
	}
	timer.Stop("success")

	c.JSON(http.StatusOK, gin.H{"written": true, "bytes": len(req.Content)})
}
