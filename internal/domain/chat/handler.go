package chat

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/platform/backend"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/medical")
	g.GET("/state", h.State)
	g.POST("/messages", h.Send)
	g.POST("/voice", h.Voice)
	g.POST("/detach", h.Detach)
}

type stateResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Messages       []conversation.Message `json:"messages"`
}

func (h *Handler) State(c echo.Context) error {
	return c.JSON(http.StatusOK, stateResponse{
		ConversationID: h.svc.ConversationID(),
		Messages:       h.svc.Messages(),
	})
}

type sendResponse struct {
	*Reply
	Error string `json:"error,omitempty"`
}

func (h *Handler) Send(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reply, err := h.svc.Send(c.Request().Context(), req.Text)
	if reply == nil {
		return httpError(err)
	}
	out := sendResponse{Reply: reply}
	if err != nil {
		out.Error = backend.Detail(err)
	}
	return c.JSON(http.StatusOK, out)
}

// Voice answers audio/mpeg for the given text or the last reply.
func (h *Handler) Voice(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	audio, err := h.svc.Voice(c.Request().Context(), req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (h *Handler) Detach(c echo.Context) error {
	h.svc.Detach()
	return h.State(c)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyInput), errors.Is(err, ErrNoReply):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrStale):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, backend.Detail(err))
}
