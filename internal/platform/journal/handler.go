package journal

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes recorded entries for troubleshooting.
type Handler struct {
	rec Recorder
}

func NewHandler(rec Recorder) *Handler {
	return &Handler{rec: rec}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/journal", h.List)
}

func (h *Handler) List(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	entries, err := h.rec.List(c.Request().Context(), c.QueryParam("conversation_id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}
