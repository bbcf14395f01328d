package facility

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
	admin.GET("/beds", h.ListBeds)
	admin.GET("/beds/duplicates", h.BedDuplicates)
	admin.PUT("/beds/:bed_type", h.UpdateBeds)

	admin.GET("/theaters", h.ListTheaters)
	admin.PUT("/theaters/:name", h.SetTheaterAvailability)

	admin.GET("/bookings", h.ListBookings)
	admin.POST("/bookings/:id/transition", h.TransitionBooking)
}

func (h *Handler) ListBeds(c echo.Context) error {
	ctx := c.Request().Context()
	beds, err := h.svc.ListBeds(ctx, auth.ActorFromContext(ctx))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, beds)
}

func (h *Handler) BedDuplicates(c echo.Context) error {
	ctx := c.Request().Context()
	dups, err := h.svc.BedDuplicates(ctx, auth.ActorFromContext(ctx))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, dups)
}

func (h *Handler) UpdateBeds(c echo.Context) error {
	var u BedUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	row, out, err := h.svc.UpdateBeds(ctx, auth.ActorFromContext(ctx), c.Param("bed_type"), u)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"bed": row, "path": out.Path})
}

func (h *Handler) ListTheaters(c echo.Context) error {
	ctx := c.Request().Context()
	theaters, err := h.svc.ListTheaters(ctx, auth.ActorFromContext(ctx))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, theaters)
}

type theaterRequest struct {
	IsAvailable *bool `json:"is_available"`
}

func (h *Handler) SetTheaterAvailability(c echo.Context) error {
	var req theaterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IsAvailable == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_available is required")
	}
	ctx := c.Request().Context()
	th, out, err := h.svc.SetTheaterAvailability(ctx, auth.ActorFromContext(ctx), c.Param("name"), *req.IsAvailable)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"theater": th, "path": out.Path})
}

func (h *Handler) ListBookings(c echo.Context) error {
	ctx := c.Request().Context()
	bookings, err := h.svc.ListBookings(ctx, auth.ActorFromContext(ctx), ledger.Status(c.QueryParam("status")))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(bookings, pagination.FromContext(c)))
}

type transitionRequest struct {
	Status  ledger.Status `json:"status"`
	Message string        `json:"message"`
}

func (h *Handler) TransitionBooking(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	ctx := c.Request().Context()
	b, out, err := h.svc.TransitionBooking(ctx, auth.ActorFromContext(ctx), c.Param("id"), req.Status, req.Message)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"booking": b, "path": out.Path})
}
