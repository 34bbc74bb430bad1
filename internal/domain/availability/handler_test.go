package availability

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEcho() *echo.Echo {
	var buf bytes.Buffer
	svc, _ := newTestService(&buf)
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func request(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RuleLifecycle(t *testing.T) {
	e := newTestEcho()
	doctor, clinic := uuid.New(), uuid.New()
	body := `{"doctor_id":"` + doctor.String() + `","clinic_id":"` + clinic.String() +
		`","day_of_week":1,"start_time":"09:00","end_time":"10:00","max_patients":6,"minutes_per_patient":15}`

	rec := request(e, http.MethodPost, "/api/v1/availability/rules", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID            uuid.UUID `json:"id"`
		StartTime     string    `json:"start_time"`
		Overcommitted bool      `json:"overcommitted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "09:00", created.StartTime)
	assert.True(t, created.Overcommitted)

	rec = request(e, http.MethodGet, "/api/v1/availability/rules?doctor_id="+doctor.String()+"&clinic_id="+clinic.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.ID.String())

	rec = request(e, http.MethodDelete, "/api/v1/availability/rules/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = request(e, http.MethodGet, "/api/v1/availability/rules/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CreateRuleInvalid(t *testing.T) {
	e := newTestEcho()
	rec := request(e, http.MethodPost, "/api/v1/availability/rules",
		`{"doctor_id":"`+uuid.NewString()+`","clinic_id":"`+uuid.NewString()+`","day_of_week":9,"start_time":"09:00","end_time":"10:00","max_patients":6,"minutes_per_patient":15}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(e, http.MethodPost, "/api/v1/availability/rules", `{"start_time":"nine"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Exceptions(t *testing.T) {
	e := newTestEcho()
	doctor, clinic := uuid.New(), uuid.New()
	body := `{"doctor_id":"` + doctor.String() + `","clinic_id":"` + clinic.String() +
		`","date":"2024-06-10","start_time":"09:00","end_time":"12:00","reason":"leave"}`

	rec := request(e, http.MethodPost, "/api/v1/availability/exceptions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = request(e, http.MethodGet, "/api/v1/availability/exceptions?doctor_id="+doctor.String()+
		"&clinic_id="+clinic.String()+"&from=2024-06-01&to=2024-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []Exception
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "leave", items[0].Reason)

	rec = request(e, http.MethodGet, "/api/v1/availability/exceptions?doctor_id="+doctor.String()+
		"&clinic_id="+clinic.String()+"&from=2024-06-30&to=2024-06-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(e, http.MethodPost, "/api/v1/availability/exceptions", strings.Replace(body, "2024-06-10", "10/06/2024", 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToHTTPError_HidesStoreErrors(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")

	var he *echo.HTTPError
	require.ErrorAs(t, toHTTPError(cause), &he)
	assert.Equal(t, http.StatusInternalServerError, he.Code)
	assert.Equal(t, "internal server error", he.Message)
	assert.ErrorIs(t, he.Internal, cause)
}
