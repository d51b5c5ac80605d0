package access

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fkeenv/lyra-health-sub001/internal/domain/audit"
	"github.com/fkeenv/lyra-health-sub001/internal/domain/consent"
	"github.com/fkeenv/lyra-health-sub001/internal/platform/auth"
	"github.com/fkeenv/lyra-health-sub001/internal/platform/healthrecord"
)

type Handler struct {
	engine  *Engine
	records healthrecord.Store
}

func NewHandler(engine *Engine, records healthrecord.Store) *Handler {
	return &Handler{engine: engine, records: records}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:patientID/records", h.ReadRecords)
	api.POST("/patients/:patientID/emergency-access", h.EmergencyAccess)
}

func professionalFromContext(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authenticated actor id is not a valid uuid")
	}
	return id, nil
}

func metaFromContext(c echo.Context) AccessMeta {
	meta := AccessMeta{IPAddress: c.RealIP()}
	if ua := c.Request().UserAgent(); ua != "" {
		meta.UserAgent = &ua
	}
	return meta
}

// ReadRecords is the consent-gated data-read path: authorize, fetch, audit,
// return. A denied decision is always Forbidden, never NotFound, so callers
// cannot probe whether a patient exists or has data.
func (h *Handler) ReadRecords(c echo.Context) error {
	professionalID, err := professionalFromContext(c)
	if err != nil {
		return err
	}
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	category := c.QueryParam("category")
	if category == "" {
		category = consent.CategoryVitalSigns
	}
	now := time.Now().UTC()

	decision, err := h.engine.Authorize(c.Request().Context(), professionalID, patientID, category, now)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "authorization check failed")
	}
	if !decision.Allowed {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}

	from, to := timeRange(c, now)
	items, err := h.records.Fetch(c.Request().Context(), patientID, decision.GrantedScope, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// The audit write precedes the response; a failure is surfaced in the
	// log by the engine but does not retract data already read.
	_ = h.engine.RecordAccess(c.Request().Context(), decision, professionalID, patientID,
		accessTypeFromQuery(c), now, metaFromContext(c))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"decision": decision,
		"records":  items,
	})
}

// EmergencyAccess is the verified-professional bypass. The audit entry is
// written before any data leaves the handler, and an audit failure aborts
// the call.
func (h *Handler) EmergencyAccess(c echo.Context) error {
	professionalID, err := professionalFromContext(c)
	if err != nil {
		return err
	}
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	now := time.Now().UTC()

	decision, err := h.engine.AuthorizeEmergency(c.Request().Context(), professionalID, patientID, now, metaFromContext(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !decision.Allowed {
		return echo.NewHTTPError(http.StatusForbidden, "emergency access requires a verified professional")
	}

	from, to := timeRange(c, now)
	items, err := h.records.Fetch(c.Request().Context(), patientID, decision.GrantedScope, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"decision": decision,
		"records":  items,
	})
}

func accessTypeFromQuery(c echo.Context) audit.AccessType {
	switch c.QueryParam("access_type") {
	case string(audit.AccessExport):
		return audit.AccessExport
	case string(audit.AccessPrint):
		return audit.AccessPrint
	default:
		return audit.AccessView
	}
}

func timeRange(c echo.Context, now time.Time) (time.Time, time.Time) {
	from := now.AddDate(0, -1, 0)
	to := now
	if v := c.QueryParam("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	return from, to
}
