package credentials

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
	"github.com/carehub/ledger/pkg/pagination"
)

type Handler struct {
	orch *Orchestrator
}

func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/credentials/pending", h.ListPending)
	admin.POST("/credentials/:origin/:id/approve", h.Approve)
	admin.POST("/credentials/:origin/:id/reject", h.Reject)
	admin.GET("/doctors", h.ListDoctors)
	admin.DELETE("/doctors/:id", h.RemoveDoctor)
}

func (h *Handler) ListPending(c echo.Context) error {
	ctx := c.Request().Context()
	pending, err := h.orch.ListPending(ctx, auth.ActorFromContext(ctx))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(pending, pagination.FromContext(c)))
}

func (h *Handler) ListDoctors(c echo.Context) error {
	ctx := c.Request().Context()
	doctors, err := h.orch.ListDoctors(ctx, auth.ActorFromContext(ctx))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(doctors, pagination.FromContext(c)))
}

func (h *Handler) Approve(c echo.Context) error {
	origin, err := originParam(c)
	if err != nil {
		return err
	}
	var terms Terms
	if err := c.Bind(&terms); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	result, err := h.orch.Approve(ctx, auth.ActorFromContext(ctx), origin, c.Param("id"), terms)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Reject(c echo.Context) error {
	origin, err := originParam(c)
	if err != nil {
		return err
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	out, err := h.orch.Reject(ctx, auth.ActorFromContext(ctx), origin, c.Param("id"), body.Reason)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": StatusRejected, "path": out.Path})
}

func (h *Handler) RemoveDoctor(c echo.Context) error {
	ctx := c.Request().Context()
	result, err := h.orch.RemoveDoctor(ctx, auth.ActorFromContext(ctx), c.Param("id"))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func originParam(c echo.Context) (Origin, error) {
	o, ok := ParseOrigin(c.Param("origin"))
	if !ok {
		return "", echo.NewHTTPError(http.StatusBadRequest, "origin must be request or profile")
	}
	return o, nil
}
