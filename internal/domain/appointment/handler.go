package appointment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/holisticconnect/holisticconnect/internal/platform/auth"
	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

// Handler serves appointment CRUD for both parties plus the per-role listing
// endpoints. Every route requires a session, and every record access checks
// that the caller is one of the two parties on the appointment.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the shared CRUD routes onto the authenticated API
// group and the party-scoped listings onto the client and practitioner
// groups.
func (h *Handler) RegisterRoutes(api, clientGroup, practGroup *echo.Group) {
	api.POST("/appointments", h.Create)
	api.GET("/appointments/:id", h.Get)
	api.PUT("/appointments/:id", h.Update)
	api.POST("/appointments/:id/cancel", h.Cancel)

	clientGroup.GET("/appointments", h.ListForClient)
	practGroup.GET("/appointments", h.ListForPractitioner)
}

func (h *Handler) Create(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}

	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// Clients book for themselves. Only the practitioner side of a booking
	// may name another party as the client.
	if a.ClientID == uuid.Nil {
		a.ClientID = uid
	}
	if uid != a.ClientID && uid != a.PractitionerID {
		return echo.NewHTTPError(http.StatusForbidden, "not a participant")
	}

	if err := h.svc.Create(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a.ViewFor(uid))
}

func (h *Handler) Get(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get appointment")
	}
	if a == nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if uid != a.ClientID && uid != a.PractitionerID {
		return echo.NewHTTPError(http.StatusForbidden, "not a participant")
	}
	return c.JSON(http.StatusOK, a.ViewFor(uid))
}

func (h *Handler) Update(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	cur, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get appointment")
	}
	if cur == nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if uid != cur.ClientID && uid != cur.PractitionerID {
		return echo.NewHTTPError(http.StatusForbidden, "not a participant")
	}

	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PractitionerNotes != nil && uid != cur.PractitionerID {
		return echo.NewHTTPError(http.StatusForbidden, "only the practitioner can edit practitioner notes")
	}

	updated, err := h.svc.Update(c.Request().Context(), id, req)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated.ViewFor(uid))
}

// Cancel records which side called it off. The actor comes from the session,
// not from the request body.
func (h *Handler) Cancel(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	ctx := c.Request().Context()
	cur, err := h.svc.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get appointment")
	}
	if cur == nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}

	var actor string
	switch uid {
	case cur.ClientID:
		actor = ActorClient
	case cur.PractitionerID:
		actor = ActorPractitioner
	default:
		return echo.NewHTTPError(http.StatusForbidden, "not a participant")
	}

	if err := h.svc.Cancel(ctx, id, actor); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to cancel appointment")
	}

	cancelled, err := h.svc.Get(ctx, id)
	if err != nil || cancelled == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get appointment")
	}
	return c.JSON(http.StatusOK, cancelled.ViewFor(uid))
}

// ListForClient serves GET /client/appointments, always scoped to the
// session user's bookings.
func (h *Handler) ListForClient(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	q, limit, err := listQueryFrom(c)
	if err != nil {
		return err
	}
	q.ClientID = &uid
	return h.list(c, uid, q, limit)
}

// ListForPractitioner serves GET /practitioner/appointments, always scoped
// to the session user's schedule.
func (h *Handler) ListForPractitioner(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	q, limit, err := listQueryFrom(c)
	if err != nil {
		return err
	}
	q.PractitionerID = &uid
	return h.list(c, uid, q, limit)
}

func (h *Handler) list(c echo.Context, uid uuid.UUID, q Query, limit int) error {
	items, next, err := h.svc.List(c.Request().Context(), q)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list appointments")
	}

	views := make([]*Appointment, 0, len(items))
	for _, a := range items {
		views = append(views, a.ViewFor(uid))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, limit, next))
}

func listQueryFrom(c echo.Context) (Query, int, error) {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return Query{}, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
	}
	limit := pg.Clamp(DefaultListLimit)

	q := Query{Limit: limit, After: pg.After}
	if status := c.QueryParam("status"); status != "" {
		if !validStatuses[status] {
			return Query{}, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		q.Status = &status
	}
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Query{}, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid from time")
		}
		q.From = &t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Query{}, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid to time")
		}
		q.To = &t
	}
	return q, limit, nil
}
