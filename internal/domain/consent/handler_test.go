package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fkeenv/lyra-health-sub001/internal/platform/auth"
)

func newHandlerTest() (*echo.Echo, *Handler, *memRepo) {
	e := echo.New()
	repo := newMemRepo()
	svc := NewService(repo, nil, Config{})
	h := NewHandler(svc)
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, h, repo
}

func doJSON(e *echo.Echo, method, path string, actor uuid.UUID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, actor.String())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Create(t *testing.T) {
	e, _, _ := newHandlerTest()
	patientID := uuid.New()

	body := fmt.Sprintf(`{"patient_id":%q,"professional_id":%q,"access_level":"read_only"}`,
		patientID, uuid.New())
	rec := doJSON(e, http.MethodPost, "/api/v1/consents", patientID, body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got ConsentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
}

func TestHandler_Create_ProfessionalActorForbidden(t *testing.T) {
	e, _, _ := newHandlerTest()
	professionalID := uuid.New()

	body := fmt.Sprintf(`{"patient_id":%q,"professional_id":%q,"access_level":"read_only"}`,
		uuid.New(), professionalID)
	rec := doJSON(e, http.MethodPost, "/api/v1/consents", professionalID, body)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandler_Create_DuplicateConflicts(t *testing.T) {
	e, _, _ := newHandlerTest()
	patientID := uuid.New()
	professionalID := uuid.New()

	body := fmt.Sprintf(`{"patient_id":%q,"professional_id":%q,"access_level":"read_only"}`,
		patientID, professionalID)
	if rec := doJSON(e, http.MethodPost, "/api/v1/consents", patientID, body); rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rec.Code)
	}
	rec := doJSON(e, http.MethodPost, "/api/v1/consents", patientID, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestHandler_GetUnknownIsNotFound(t *testing.T) {
	e, _, _ := newHandlerTest()
	rec := doJSON(e, http.MethodGet, "/api/v1/consents/"+uuid.New().String(), uuid.New(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_GrantDenyFlow(t *testing.T) {
	e, _, _ := newHandlerTest()
	patientID := uuid.New()
	professionalID := uuid.New()

	// Professional requests access.
	body := fmt.Sprintf(`{"patient_id":%q,"access_level":"read_only"}`, patientID)
	rec := doJSON(e, http.MethodPost, "/api/v1/consents/request", professionalID, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("request: %d %s", rec.Code, rec.Body.String())
	}
	var pending ConsentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pending.Status != StatusPending {
		t.Fatalf("status = %s, want pending", pending.Status)
	}

	// The professional cannot grant their own request.
	rec = doJSON(e, http.MethodPost, "/api/v1/consents/"+pending.ID.String()+"/grant", professionalID, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("professional self-grant: %d, want 403", rec.Code)
	}

	// The patient grants.
	rec = doJSON(e, http.MethodPost, "/api/v1/consents/"+pending.ID.String()+"/grant", patientID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("grant: %d %s", rec.Code, rec.Body.String())
	}

	// Granting again violates the state machine.
	rec = doJSON(e, http.MethodPost, "/api/v1/consents/"+pending.ID.String()+"/grant", patientID, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second grant: %d, want 422", rec.Code)
	}
}

func TestHandler_RevokeRestore(t *testing.T) {
	e, _, _ := newHandlerTest()
	patientID := uuid.New()

	body := fmt.Sprintf(`{"patient_id":%q,"professional_id":%q,"access_level":"full_access"}`,
		patientID, uuid.New())
	rec := doJSON(e, http.MethodPost, "/api/v1/consents", patientID, body)
	var created ConsentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/consents/"+created.ID.String()+"/revoke", patientID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/consents/"+created.ID.String()+"/restore", patientID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", rec.Code, rec.Body.String())
	}
	var restored ConsentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &restored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if restored.Status != StatusActive || restored.RevokedAt != nil {
		t.Errorf("restored record = %+v", restored)
	}
}

func TestHandler_Extend(t *testing.T) {
	e, _, _ := newHandlerTest()
	patientID := uuid.New()

	body := fmt.Sprintf(`{"patient_id":%q,"professional_id":%q,"access_level":"read_only"}`,
		patientID, uuid.New())
	rec := doJSON(e, http.MethodPost, "/api/v1/consents", patientID, body)
	var created ConsentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	newExpiry := time.Now().UTC().AddDate(0, 6, 0).Format(time.RFC3339)
	rec = doJSON(e, http.MethodPost, "/api/v1/consents/"+created.ID.String()+"/extend", patientID,
		fmt.Sprintf(`{"expires_at":%q}`, newExpiry))
	if rec.Code != http.StatusOK {
		t.Fatalf("extend: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_List_RequiresFilter(t *testing.T) {
	e, _, _ := newHandlerTest()
	rec := doJSON(e, http.MethodGet, "/api/v1/consents", uuid.New(), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_List_ByPatient(t *testing.T) {
	e, _, _ := newHandlerTest()
	patientID := uuid.New()

	body := fmt.Sprintf(`{"patient_id":%q,"professional_id":%q,"access_level":"read_only"}`,
		patientID, uuid.New())
	if rec := doJSON(e, http.MethodPost, "/api/v1/consents", patientID, body); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	rec := doJSON(e, http.MethodGet, "/api/v1/consents?patient_id="+patientID.String(), patientID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

func TestHandler_MissingActorIsUnauthorized(t *testing.T) {
	e, _, _ := newHandlerTest()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consents", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
