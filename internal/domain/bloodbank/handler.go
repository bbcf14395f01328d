package bloodbank

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
	admin.GET("/blood/donors", h.ListDonors)
	admin.POST("/blood/donors/:id/transition", h.ReviewDonor)
	admin.GET("/blood/requests", h.ListRequests)
	admin.POST("/blood/requests/:id/transition", h.ReviewRequest)
}

func (h *Handler) ListDonors(c echo.Context) error {
	ctx := c.Request().Context()
	donors, err := h.svc.ListDonors(ctx, auth.ActorFromContext(ctx), ledger.Status(c.QueryParam("status")))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(donors, pagination.FromContext(c)))
}

func (h *Handler) ListRequests(c echo.Context) error {
	ctx := c.Request().Context()
	requests, err := h.svc.ListRequests(ctx, auth.ActorFromContext(ctx), ledger.Status(c.QueryParam("status")))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(requests, pagination.FromContext(c)))
}

func (h *Handler) ReviewDonor(c echo.Context) error {
	r, err := bindReview(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	d, out, err := h.svc.ReviewDonor(ctx, auth.ActorFromContext(ctx), c.Param("id"), r)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"donor": d, "path": out.Path})
}

func (h *Handler) ReviewRequest(c echo.Context) error {
	r, err := bindReview(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	req, out, err := h.svc.ReviewRequest(ctx, auth.ActorFromContext(ctx), c.Param("id"), r)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"request": req, "path": out.Path})
}

func bindReview(c echo.Context) (Review, error) {
	var r Review
	if err := c.Bind(&r); err != nil {
		return r, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if r.Status == "" {
		return r, echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	return r, nil
}
