package workflow

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/platform/backend"
	"github.com/medassist/medassist/internal/platform/upload"
)

type Handler struct {
	m *Machine
}

func NewHandler(m *Machine) *Handler {
	return &Handler{m: m}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/document")
	g.GET("/state", h.State)
	g.POST("/messages", h.Send)
	g.POST("/files", h.Attach)
	g.POST("/reset", h.Reset)
	g.POST("/change-patient", h.ChangePatient)
	g.POST("/detach", h.Detach)
	g.GET("/export", h.Export)
}

func (h *Handler) State(c echo.Context) error {
	return c.JSON(http.StatusOK, h.m.State())
}

type sendResponse struct {
	*Result
	Error string `json:"error,omitempty"`
}

// Send handles one input. Step failures still answer 200: the fallback
// message is part of the result.
func (h *Handler) Send(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.m.Handle(c.Request().Context(), req.Text)
	if res == nil {
		return httpError(err)
	}
	out := sendResponse{Result: res}
	if err != nil {
		out.Error = backend.Detail(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Attach(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if err := upload.ValidateDocument(fh.Filename); err != nil {
		return httpError(err)
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

	res, err := h.m.AttachFile(c.Request().Context(), upload.File{
		Name:        fh.Filename,
		Data:        data,
		ContentType: fh.Header.Get("Content-Type"),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Reset(c echo.Context) error {
	res, err := h.m.Reset(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ChangePatient(c echo.Context) error {
	res, err := h.m.ChangePatient(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Detach(c echo.Context) error {
	h.m.Detach()
	return c.JSON(http.StatusOK, h.m.State())
}

func (h *Handler) Export(c echo.Context) error {
	name, content, ok := h.m.Export()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no analysis to export")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.String(http.StatusOK, content)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, upload.ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, conversation.ErrStale):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, backend.Detail(err))
}
