package orders

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/orders", h.List)
	admin.GET("/orders/:id", h.Get)
	admin.GET("/orders/:id/history", h.History)
	admin.GET("/orders/:id/transitions", h.Transitions)
	admin.POST("/orders/:id/transition", h.Transition)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	orders, err := h.svc.List(ctx, auth.ActorFromContext(ctx), ledger.Status(c.QueryParam("status")))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(orders, pagination.FromContext(c)))
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	o, err := h.svc.Get(ctx, auth.ActorFromContext(ctx), c.Param("id"))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) History(c echo.Context) error {
	ctx := c.Request().Context()
	entries, err := h.svc.History(ctx, auth.ActorFromContext(ctx), c.Param("id"))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Transitions(c echo.Context) error {
	ctx := c.Request().Context()
	allowed, err := h.svc.AllowedTransitions(ctx, auth.ActorFromContext(ctx), c.Param("id"))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"allowed": allowed})
}

func (h *Handler) Transition(c echo.Context) error {
	var req TransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	ctx := c.Request().Context()
	o, out, err := h.svc.Transition(ctx, auth.ActorFromContext(ctx), c.Param("id"), req)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"order": o, "path": out.Path})
}
