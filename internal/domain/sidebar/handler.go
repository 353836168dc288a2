package sidebar

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/platform/backend"
)

type Handler struct {
	ctrl *Controller
}

func NewHandler(ctrl *Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// RegisterRoutes mounts the list under /<kind>/conversations.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/" + string(h.ctrl.Kind()) + "/conversations")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/:id/select", h.Select)
	g.PUT("/:id", h.Rename)
	g.DELETE("/:id", h.Delete)
}

type listResponse struct {
	Active        string                 `json:"active,omitempty"`
	Conversations []conversation.Summary `json:"conversations"`
}

// List returns the polled list; ?refresh=true fetches first.
func (h *Handler) List(c echo.Context) error {
	if c.QueryParam("refresh") == "true" {
		if err := h.ctrl.Refresh(c.Request().Context()); err != nil {
			return httpError(err)
		}
	}
	return c.JSON(http.StatusOK, listResponse{
		Active:        h.ctrl.Active(),
		Conversations: h.ctrl.Items(),
	})
}

func (h *Handler) Create(c echo.Context) error {
	id, err := h.ctrl.Create(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"conversation_id": id})
}

func (h *Handler) Select(c echo.Context) error {
	if err := h.ctrl.Select(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Rename(c echo.Context) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.ctrl.Rename(c.Request().Context(), c.Param("id"), req.Title); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.ctrl.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AllLister lists conversations of every kind.
type AllLister interface {
	ListAll(ctx context.Context) ([]conversation.Summary, error)
}

// RegisterAll mounts GET /conversations, the combined list.
func RegisterAll(api *echo.Group, l AllLister) {
	api.GET("/conversations", func(c echo.Context) error {
		list, err := l.ListAll(c.Request().Context())
		if err != nil {
			return httpError(err)
		}
		if list == nil {
			list = []conversation.Summary{}
		}
		return c.JSON(http.StatusOK, list)
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrEmptyTitle):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrStale):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if code := backend.StatusCode(err); code == http.StatusNotFound {
		return echo.NewHTTPError(http.StatusNotFound, backend.Detail(err))
	}
	return echo.NewHTTPError(http.StatusBadGateway, backend.Detail(err))
}
