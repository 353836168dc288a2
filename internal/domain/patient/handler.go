package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/medassist/internal/platform/backend"
	"github.com/medassist/medassist/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/search", h.Search)
	g.GET("/mrn/:mrn", h.GetByMRN)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// List returns one page of patients, filtered locally by ?q=.
func (h *Handler) List(c echo.Context) error {
	patients, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	filtered := Filter(patients, c.QueryParam("q"))
	return c.JSON(http.StatusOK, pagination.Page(filtered, pagination.FromContext(c)))
}

func (h *Handler) Search(c echo.Context) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patients, err := h.svc.Search(c.Request().Context(), req.Query)
	if err != nil {
		return httpError(err)
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patients": patients,
		"total":    len(patients),
	})
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetByMRN(c echo.Context) error {
	p, err := h.svc.GetByMRN(c.Request().Context(), c.Param("mrn"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Create(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Create(c.Request().Context(), &in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Update(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Update(c.Request().Context(), c.Param("id"), &in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// httpError keeps backend validation messages verbatim.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if code := backend.StatusCode(err); code >= 400 && code < 500 {
		return echo.NewHTTPError(code, backend.Detail(err))
	}
	return echo.NewHTTPError(http.StatusBadGateway, backend.Detail(err))
}
