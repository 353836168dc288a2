package imaging

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/medassist/internal/platform/upload"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/images/analyze", h.Analyze)
}

func (h *Handler) Analyze(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	text, err := h.svc.Analyze(c.Request().Context(), upload.File{Name: fh.Filename, Data: data})
	if err != nil {
		if errors.Is(err, upload.ErrUnsupportedType) {
			return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, ErrorText).SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"analysis": text})
}
