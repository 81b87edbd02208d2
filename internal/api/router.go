package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	auditdomain "directory-sync/backend/internal/audit/domain"
	dirdomain "directory-sync/backend/internal/directory/domain"
	ovrdomain "directory-sync/backend/internal/override/domain"
)

// ActorHeader carries the caller identity recorded on override mutations.
const ActorHeader = "X-Actor-ID"

// Handler adapts Service to gin.
type Handler struct {
	Service *Service
}

// NewRouter returns a gin engine serving the service under /api.
func NewRouter(svc *Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h := &Handler{Service: svc}
	h.Register(r.Group("/api"))
	return r
}

// Register mounts every route on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	for _, kind := range dirdomain.Kinds {
		kg := g.Group("/" + string(kind))
		kg.GET("", h.list(kind))
		kg.GET("/stats", h.stats(kind))
		kg.GET("/:id", h.get(kind))
	}
	g.POST("/users", h.CreateUser)
	g.PATCH("/users/:id", h.UpdateUser)
	g.DELETE("/users/:id", h.DeleteUser)
	g.POST("/devices", h.CreateDevice)
	g.PATCH("/devices/:id", h.UpdateDevice)
	g.DELETE("/devices/:id", h.DeleteDevice)

	g.POST("/sync", h.TriggerSync)
	g.GET("/sync/status", h.SyncStatus)
	g.GET("/sync/history", h.SyncHistory)
	g.GET("/diagnostics", h.Diagnostics)
	g.GET("/sources", h.Sources)
	g.GET("/audit", h.AuditLogs)
}

func respond(c *gin.Context, env Envelope) {
	c.JSON(HTTPStatus(env.Error), env)
}

func badRequest(c *gin.Context, err error) {
	respond(c, Fail(fmt.Errorf("%w: %v", ErrInvalidArgument, err), nil))
}

func actor(c *gin.Context) string {
	return c.GetHeader(ActorHeader)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func (h *Handler) list(kind dirdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f dirdomain.Filter
		if err := c.ShouldBindQuery(&f); err != nil {
			badRequest(c, err)
			return
		}
		source := c.Query("source")
		if f == (dirdomain.Filter{}) {
			respond(c, h.Service.GetCombined(c.Request.Context(), string(kind), source))
			return
		}
		respond(c, h.Service.Find(c.Request.Context(), string(kind), source, f))
	}
}

func (h *Handler) stats(kind dirdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, h.Service.GetStats(c.Request.Context(), string(kind)))
	}
}

func (h *Handler) get(kind dirdomain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, h.Service.GetByID(c.Request.Context(), string(kind), c.Param("id")))
	}
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req ovrdomain.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	env := h.Service.CreateUser(c.Request.Context(), req, actor(c))
	if env.Success {
		c.JSON(http.StatusCreated, env)
		return
	}
	respond(c, env)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req ovrdomain.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.Service.UpdateUser(c.Request.Context(), c.Param("id"), req, actor(c)))
}

func (h *Handler) DeleteUser(c *gin.Context) {
	respond(c, h.Service.DeleteUser(c.Request.Context(), c.Param("id"), actor(c)))
}

func (h *Handler) CreateDevice(c *gin.Context) {
	var req ovrdomain.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	env := h.Service.CreateDevice(c.Request.Context(), req, actor(c))
	if env.Success {
		c.JSON(http.StatusCreated, env)
		return
	}
	respond(c, env)
}

func (h *Handler) UpdateDevice(c *gin.Context) {
	var req ovrdomain.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.Service.UpdateDevice(c.Request.Context(), c.Param("id"), req, actor(c)))
}

func (h *Handler) DeleteDevice(c *gin.Context) {
	respond(c, h.Service.DeleteDevice(c.Request.Context(), c.Param("id"), actor(c)))
}

func (h *Handler) TriggerSync(c *gin.Context) {
	respond(c, h.Service.TriggerManualSync(c.Request.Context()))
}

func (h *Handler) SyncStatus(c *gin.Context) {
	respond(c, h.Service.GetSyncStatus(c.Request.Context()))
}

func (h *Handler) SyncHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.Service.GetSyncHistory(c.Request.Context(), limit))
}

func (h *Handler) Diagnostics(c *gin.Context) {
	respond(c, h.Service.GetDiagnostics(c.Request.Context()))
}

func (h *Handler) Sources(c *gin.Context) {
	respond(c, h.Service.ListAvailableSources(c.Request.Context()))
}

func (h *Handler) AuditLogs(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		badRequest(c, err)
		return
	}
	filter := auditdomain.ListFilter{
		Action:     c.Query("action"),
		Resource:   c.Query("resource"),
		ResourceID: c.Query("resourceId"),
	}
	respond(c, h.Service.ListAuditLogs(c.Request.Context(), filter, limit, offset))
}
