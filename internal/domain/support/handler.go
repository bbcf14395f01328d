package support

import (
	"net/http"
	"strconv"

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
	admin.GET("/tickets", h.ListTickets)
	admin.POST("/tickets/:id/transition", h.TransitionTicket)

	admin.GET("/alerts", h.ListAlerts)
	admin.POST("/alerts", h.CreateAlert)
	admin.PUT("/alerts/:id", h.SetAlertResolved)
}

func (h *Handler) ListTickets(c echo.Context) error {
	ctx := c.Request().Context()
	tickets, err := h.svc.ListTickets(ctx, auth.ActorFromContext(ctx), ledger.Status(c.QueryParam("status")))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(tickets, pagination.FromContext(c)))
}

type ticketTransition struct {
	Status   ledger.Status `json:"status"`
	Response string        `json:"response"`
}

func (h *Handler) TransitionTicket(c echo.Context) error {
	var req ticketTransition
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	ctx := c.Request().Context()
	t, out, err := h.svc.TransitionTicket(ctx, auth.ActorFromContext(ctx), c.Param("id"), req.Status, req.Response)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ticket": t, "path": out.Path})
}

func (h *Handler) ListAlerts(c echo.Context) error {
	var resolved *bool
	if v := c.QueryParam("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "resolved must be true or false")
		}
		resolved = &b
	}
	ctx := c.Request().Context()
	alerts, err := h.svc.ListAlerts(ctx, auth.ActorFromContext(ctx), resolved)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(alerts, pagination.FromContext(c)))
}

func (h *Handler) CreateAlert(c echo.Context) error {
	var in NewAlert
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, err := h.svc.CreateAlert(ctx, auth.ActorFromContext(ctx), in)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

type resolveRequest struct {
	IsResolved *bool `json:"is_resolved"`
}

func (h *Handler) SetAlertResolved(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IsResolved == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_resolved is required")
	}
	ctx := c.Request().Context()
	a, out, err := h.svc.SetAlertResolved(ctx, auth.ActorFromContext(ctx), c.Param("id"), *req.IsResolved)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"alert": a, "path": out.Path})
}
