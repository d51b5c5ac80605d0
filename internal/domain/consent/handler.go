package consent

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fkeenv/lyra-health-sub001/internal/platform/auth"
	"github.com/fkeenv/lyra-health-sub001/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/consents", h.Create)
	api.POST("/consents/request", h.RequestAccess)
	api.GET("/consents", h.List)
	api.GET("/consents/:id", h.Get)
	api.POST("/consents/:id/grant", h.Grant)
	api.POST("/consents/:id/deny", h.Deny)
	api.POST("/consents/:id/revoke", h.Revoke)
	api.POST("/consents/:id/restore", h.Restore)
	api.POST("/consents/:id/extend", h.Extend)
	api.PUT("/consents/:id/scope", h.ModifyScope)
	api.DELETE("/consents/:id", h.Delete)
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func actorFromContext(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authenticated actor id is not a valid uuid")
	}
	return id, nil
}

type createRequest struct {
	PatientID       uuid.UUID   `json:"patient_id"`
	ProfessionalID  uuid.UUID   `json:"professional_id"`
	AccessLevel     AccessLevel `json:"access_level"`
	DataTypes       []string    `json:"data_types,omitempty"`
	EmergencyAccess bool        `json:"emergency_access"`
	ExpiresAt       *time.Time  `json:"expires_at,omitempty"`
	Notes           *string     `json:"notes,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec := &ConsentRecord{
		PatientID:       req.PatientID,
		ProfessionalID:  req.ProfessionalID,
		AccessLevel:     req.AccessLevel,
		DataTypes:       req.DataTypes,
		EmergencyAccess: req.EmergencyAccess,
		ExpiresAt:       req.ExpiresAt,
		Notes:           req.Notes,
	}
	if err := h.svc.Create(c.Request().Context(), rec, actor, time.Now().UTC()); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

type requestAccessRequest struct {
	PatientID   uuid.UUID   `json:"patient_id"`
	AccessLevel AccessLevel `json:"access_level"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
}

func (h *Handler) RequestAccess(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req requestAccessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.svc.RequestAccess(c.Request().Context(), actor, req.PatientID, req.AccessLevel, req.ExpiresAt, time.Now().UTC())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if pid := c.QueryParam("patient_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		items, total, err := h.svc.ListByPatient(ctx, id, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	if pid := c.QueryParam("professional_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid professional_id")
		}
		items, total, err := h.svc.ListByProfessional(ctx, id, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	return echo.NewHTTPError(http.StatusBadRequest, "patient_id or professional_id query parameter is required")
}

func (h *Handler) Grant(c echo.Context) error {
	return h.transition(c, h.svc.Grant)
}

func (h *Handler) Deny(c echo.Context) error {
	return h.transition(c, h.svc.Deny)
}

func (h *Handler) Revoke(c echo.Context) error {
	return h.transition(c, h.svc.Revoke)
}

func (h *Handler) Restore(c echo.Context) error {
	return h.transition(c, h.svc.Restore)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id, actor uuid.UUID, now time.Time) (*ConsentRecord, error)) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := fn(c.Request().Context(), id, actor, time.Now().UTC())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type extendRequest struct {
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) Extend(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req extendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Extend(c.Request().Context(), id, actor, req.ExpiresAt, time.Now().UTC())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type modifyScopeRequest struct {
	AccessLevel AccessLevel `json:"access_level"`
	DataTypes   []string    `json:"data_types,omitempty"`
}

func (h *Handler) ModifyScope(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req modifyScopeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.ModifyScope(c.Request().Context(), id, actor, req.AccessLevel, req.DataTypes, time.Now().UTC())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Delete(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.ForceDelete(c.Request().Context(), id, actor, time.Now().UTC()); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
