package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/booking/internal/domain/availability"
	"github.com/clinic/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	dc := api.Group("/doctors/:doctor_id/clinics/:clinic_id")
	dc.GET("/sessions", h.ListSessions)
	dc.GET("/booking-window", h.GetBookingWindow)

	api.POST("/appointments", h.CreateAppointment)
	api.POST("/appointments/next", h.CreateNextAppointment)
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.POST("/appointments/:id/status", h.TransitionStatus)
	api.GET("/sessions/:session_key/appointments", h.ListSessionAppointments)
}

// -- Session Handlers --

func (h *Handler) ListSessions(c echo.Context) error {
	doctorID, clinicID, err := doctorClinicParams(c)
	if err != nil {
		return err
	}
	date, err := dateQuery(c, true)
	if err != nil {
		return err
	}
	sessions, err := h.svc.SessionAvailability(c.Request().Context(), doctorID, clinicID, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":     date.Format(availability.DateLayout),
		"sessions": sessions,
	})
}

func (h *Handler) GetBookingWindow(c echo.Context) error {
	doctorID, clinicID, err := doctorClinicParams(c)
	if err != nil {
		return err
	}
	date, err := dateQuery(c, false)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if date.IsZero() {
		w, err := h.svc.BookingWindow(ctx, doctorID, clinicID)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, windowResponse(w, nil))
	}
	w, err := h.svc.CheckBookingWindow(ctx, doctorID, clinicID, date)
	if err != nil && !errors.Is(err, ErrDateNotBookable) {
		return toHTTPError(err)
	}
	bookable := err == nil
	return c.JSON(http.StatusOK, windowResponse(w, &bookable))
}

func windowResponse(w BookingWindow, bookable *bool) map[string]interface{} {
	resp := map[string]interface{}{
		"today":        w.Today.Format(availability.DateLayout),
		"last_date":    w.LastDate.Format(availability.DateLayout),
		"visible_days": w.VisibleDays,
	}
	if bookable != nil {
		resp["bookable"] = *bookable
	}
	return resp
}

// -- Appointment Handlers --

type createAppointmentRequest struct {
	SessionKey string      `json:"session_key"`
	Patient    PatientInfo `json:"patient"`
	Notes      string      `json:"notes"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	alloc, err := h.svc.AllocateAppointment(c.Request().Context(), BookingRequest{
		SessionKey: req.SessionKey,
		Patient:    req.Patient,
		Notes:      req.Notes,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, alloc)
}

type nextAppointmentRequest struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	ClinicID uuid.UUID   `json:"clinic_id"`
	Date     string      `json:"date"`
	Patient  PatientInfo `json:"patient"`
	Notes    string      `json:"notes"`
}

func (h *Handler) CreateNextAppointment(c echo.Context) error {
	var req nextAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := availability.ParseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	alloc, err := h.svc.AllocateNext(c.Request().Context(), NextBookingRequest{
		DoctorID: req.DoctorID,
		ClinicID: req.ClinicID,
		Date:     date,
		Patient:  req.Patient,
		Notes:    req.Notes,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, alloc)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pid, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientAppointments(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *Handler) TransitionStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to, err := ParseStatus(req.Status)
	if err != nil {
		return toHTTPError(err)
	}
	appt, err := h.svc.TransitionStatus(c.Request().Context(), id, to)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListSessionAppointments(c echo.Context) error {
	items, err := h.svc.ListSessionAppointments(c.Request().Context(), c.Param("session_key"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  items,
		"total": len(items),
	})
}

func doctorClinicParams(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	doctorID, err := uuid.Parse(c.Param("doctor_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	clinicID, err := uuid.Parse(c.Param("clinic_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
	}
	return doctorID, clinicID, nil
}

func dateQuery(c echo.Context, required bool) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		if required {
			return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date is required")
		}
		return time.Time{}, nil
	}
	d, err := availability.ParseDate(raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return d, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAppointmentNotFound), errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionFull), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAllocationConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrDateNotBookable), errors.Is(err, ErrNoSessionAvailable), errors.Is(err, ErrFeeConfigMissing):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		// The cause stays internal; the request logger records it.
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
