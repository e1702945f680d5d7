// Package httpapi serves a component proxy to peers over XML HTTP. The
// remote processor is its client.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cmsstore/internal/core"
	"cmsstore/internal/wire"
	"cmsstore/pkg/domain"
)

const maxRequestBody = 32 << 20

// Backend is the storage surface the handler exposes. *core.Proxy satisfies it.
type Backend interface {
	Save(ctx context.Context, components []domain.Component) (core.SaveResults, error)
	Delete(ctx context.Context, components []domain.Component) (int, error)
	DeleteKeys(ctx context.Context, t domain.ComponentType, keys []*domain.Key) (int, error)
	Load(ctx context.Context, t domain.ComponentType, keys []*domain.Key) ([]domain.Component, error)
}

// Handler decodes peer requests and forwards them to Backend.
type Handler struct {
	Backend Backend
	Catalog *domain.Catalog
	Logger  core.Logger
}

// NewHandler returns a handler over backend using the default catalog.
func NewHandler(backend Backend, logger core.Logger) *Handler {
	return &Handler{Backend: backend, Catalog: domain.DefaultCatalog(), Logger: logger}
}

// Register mounts the peer routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET(wire.PathHealth, h.Health)
	r.POST(wire.PathSave, h.Save)
	r.POST(wire.PathDelete, h.Delete)
	r.POST(wire.PathLoad, h.Load)
	r.POST(wire.PathDeleteKeys, h.DeleteKeys)
}

// NewRouter builds a gin engine serving h with panic recovery and request logging.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests())
	h.Register(r)
	r.NoRoute(func(c *gin.Context) {
		h.fail(c, domain.NewFault(domain.ReasonUnsupported, "httpapi", "no route for %s %s", c.Request.Method, c.Request.URL.Path))
	})
	return r
}

func (h *Handler) logger() core.Logger {
	if h.Logger == nil {
		return core.NewLogrusLogger(nil)
	}
	return h.Logger
}

func (h *Handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger().Debug("peer request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String())
	}
}

func (h *Handler) catalog() *domain.Catalog {
	if h.Catalog == nil {
		return domain.DefaultCatalog()
	}
	return h.Catalog
}

// statusFor maps a fault reason onto an HTTP status.
func statusFor(err error) int {
	reason, _ := domain.ReasonOf(err)
	switch reason {
	case domain.ReasonInvalidArgument, domain.ReasonMalformedElement, domain.ReasonInvalidKey,
		domain.ReasonTypeMismatch, domain.ReasonDuplicate, domain.ReasonInvalidState:
		return http.StatusBadRequest
	case domain.ReasonUnknownComponentType:
		return http.StatusNotFound
	case domain.ReasonUnsupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeXML(c *gin.Context, status int, el *domain.Element) {
	data, err := domain.MarshalXML(el)
	if err != nil {
		h.logger().Error("encode response", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, wire.ContentType, data)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger().Error("peer request failed", "path", c.Request.URL.Path, "error", err)
	}
	h.writeXML(c, status, wire.Fault(err))
}

func (h *Handler) readBody(c *gin.Context) (*domain.Element, error) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewFault(domain.ReasonInvalidArgument, "httpapi", "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, domain.WrapFault(err, domain.ReasonInvalidArgument, "httpapi", "read body")
	}
	return domain.UnmarshalXML(data)
}

func componentType(c *gin.Context) (domain.ComponentType, error) {
	t := strings.TrimSpace(c.Query(wire.QueryType))
	if t == "" {
		return "", domain.NewFault(domain.ReasonInvalidArgument, "httpapi", "query parameter %q is required", wire.QueryType)
	}
	return domain.ComponentType(t), nil
}

func (h *Handler) components(c *gin.Context) ([]domain.Component, error) {
	el, err := h.readBody(c)
	if err != nil {
		return nil, err
	}
	return wire.DecodeComponentList(h.catalog(), el)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Save stores the posted components and returns their stored renderings.
func (h *Handler) Save(c *gin.Context) {
	comps, err := h.components(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.Backend.Save(c.Request.Context(), comps)
	if err != nil {
		h.fail(c, err)
		return
	}
	index := make(map[domain.Component]int, len(comps))
	for i, comp := range comps {
		index[comp] = i
	}
	saved := make([]wire.Saved, 0, len(res.Components))
	for _, comp := range res.Components {
		if i, ok := index[comp]; ok {
			saved = append(saved, wire.Saved{Index: i, Component: comp})
		}
	}
	h.writeXML(c, http.StatusOK, wire.SaveResults(res.Stats, saved))
}

// Delete removes the posted components.
func (h *Handler) Delete(c *gin.Context) {
	comps, err := h.components(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	assigned := make([]bool, len(comps))
	for i, comp := range comps {
		assigned[i] = comp.IsAssigned()
	}
	n, err := h.Backend.Delete(c.Request.Context(), comps)
	if err != nil {
		h.fail(c, err)
		return
	}
	var removed []int
	for i, comp := range comps {
		if assigned[i] && !comp.IsAssigned() {
			removed = append(removed, i)
		}
	}
	h.writeXML(c, http.StatusOK, wire.DeleteResults(n, removed))
}

// DeleteKeys removes components of the queried type by key.
func (h *Handler) DeleteKeys(c *gin.Context) {
	t, err := componentType(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	el, err := h.readBody(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	keys, err := wire.DecodeKeyList(el)
	if err != nil {
		h.fail(c, err)
		return
	}
	assigned := make([]bool, len(keys))
	for i, k := range keys {
		assigned[i] = k.IsAssigned()
	}
	n, err := h.Backend.DeleteKeys(c.Request.Context(), t, keys)
	if err != nil {
		h.fail(c, err)
		return
	}
	var removed []int
	for i, k := range keys {
		if assigned[i] && !k.IsAssigned() {
			removed = append(removed, i)
		}
	}
	h.writeXML(c, http.StatusOK, wire.DeleteResults(n, removed))
}

// Load returns stored components of the queried type.
func (h *Handler) Load(c *gin.Context) {
	t, err := componentType(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	el, err := h.readBody(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	keys, err := wire.DecodeKeyList(el)
	if err != nil {
		h.fail(c, err)
		return
	}
	comps, err := h.Backend.Load(c.Request.Context(), t, keys)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.writeXML(c, http.StatusOK, wire.ComponentList(comps))
}
