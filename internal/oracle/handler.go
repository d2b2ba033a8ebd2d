package oracle

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/famedly/matrix-oracle/pkg/client"
	"github.com/famedly/matrix-oracle/pkg/server"
)

// Handler exposes the discovery service over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// serverResponse is the JSON body for a resolved server name.
type serverResponse struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	HostHeader string `json:"host_header"`
	Address    string `json:"address"`
	Target     string `json:"target,omitempty"`
}

// ResolveServer handles GET /v1/server/:name.
func (h *Handler) ResolveServer(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server name is required"})
		return
	}

	resolved, err := h.svc.ResolveServer(c.Request.Context(), name)
	if err != nil {
		h.logger.Warn("server resolution failed",
			zap.String("name", name),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := serverResponse{
		Name:       name,
		Kind:       resolved.Kind.String(),
		HostHeader: resolved.HostHeader(),
		Address:    resolved.Address(),
	}
	if resolved.Kind == server.KindSRV {
		resp.Target = resolved.Target
	}
	c.JSON(http.StatusOK, resp)
}

// ResolveServerAddr handles GET /v1/server/:name/addr.
func (h *Handler) ResolveServerAddr(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server name is required"})
		return
	}

	addr, err := h.svc.ServerAddr(c.Request.Context(), name)
	if err != nil {
		h.logger.Warn("address resolution failed",
			zap.String("name", name),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name": name,
		"addr": addr.String(),
	})
}

// ResolveClient handles GET /v1/client/:domain. Failures carry a "class"
// field so callers can distinguish retryable transport problems ("prompt")
// from broken delegation configuration ("fail").
func (h *Handler) ResolveClient(c *gin.Context) {
	domain := c.Param("domain")
	if domain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "domain is required"})
		return
	}

	baseURL, err := h.svc.ResolveClient(c.Request.Context(), domain)
	if err != nil {
		class := "prompt"
		var fail *client.FailError
		if errors.As(err, &fail) {
			class = "fail"
		}
		h.logger.Warn("client resolution failed",
			zap.String("domain", domain),
			zap.String("class", class),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"class": class,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domain":   domain,
		"base_url": baseURL,
	})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"cache_entries": h.svc.CacheStats(),
		"time":          time.Now().UTC().Format(time.RFC3339),
	})
}
