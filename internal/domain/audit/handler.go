package audit

import (
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
	api.GET("/audit/patient/:patientID", h.ListForPatient)
	api.GET("/audit/professional/:professionalID", h.ListForProfessional)
}

// ListForPatient serves a patient's own access history. The authenticated
// actor must be the patient in the path.
func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	if actor != patientID.String() {
		return echo.NewHTTPError(http.StatusForbidden, "patients may only view their own access history")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ListForProfessional serves the professional's own logged accesses on
// active consents only.
func (h *Handler) ListForProfessional(c echo.Context) error {
	professionalID, err := uuid.Parse(c.Param("professionalID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid professional id")
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	if actor != professionalID.String() {
		return echo.NewHTTPError(http.StatusForbidden, "professionals may only view their own access log")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForProfessional(c.Request().Context(), professionalID, time.Now().UTC(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
