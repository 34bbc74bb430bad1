package availability

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/availability")
	g.GET("/rules", h.ListRules)
	g.GET("/rules/:id", h.GetRule)
	g.POST("/rules", h.CreateRule)
	g.DELETE("/rules/:id", h.DeleteRule)
	g.GET("/exceptions", h.ListExceptions)
	g.GET("/exceptions/:id", h.GetException)
	g.POST("/exceptions", h.CreateException)
	g.DELETE("/exceptions/:id", h.DeleteException)
}

// -- Rule Handlers --

type createRuleRequest struct {
	DoctorID          uuid.UUID `json:"doctor_id"`
	ClinicID          uuid.UUID `json:"clinic_id"`
	DayOfWeek         int       `json:"day_of_week"`
	StartTime         TimeOfDay `json:"start_time"`
	EndTime           TimeOfDay `json:"end_time"`
	MaxPatients       int       `json:"max_patients"`
	MinutesPerPatient int       `json:"minutes_per_patient"`
}

func (h *Handler) CreateRule(c echo.Context) error {
	var req createRuleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule := RecurringRule{
		DoctorID:          req.DoctorID,
		ClinicID:          req.ClinicID,
		DayOfWeek:         req.DayOfWeek,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		MaxPatients:       req.MaxPatients,
		MinutesPerPatient: req.MinutesPerPatient,
	}
	if err := h.svc.CreateRule(c.Request().Context(), &rule); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, ruleResponse{RecurringRule: &rule, Overcommitted: rule.Overcommitted()})
}

type ruleResponse struct {
	*RecurringRule
	Overcommitted bool `json:"overcommitted"`
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rule, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ruleResponse{RecurringRule: rule, Overcommitted: rule.Overcommitted()})
}

func (h *Handler) ListRules(c echo.Context) error {
	doctorID, clinicID, err := pairFromQuery(c)
	if err != nil {
		return err
	}
	rules, err := h.svc.ListRules(c.Request().Context(), doctorID, clinicID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rules)
}

func (h *Handler) DeleteRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteRule(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Exception Handlers --

type createExceptionRequest struct {
	DoctorID          uuid.UUID `json:"doctor_id"`
	ClinicID          uuid.UUID `json:"clinic_id"`
	Date              string    `json:"date"`
	StartTime         TimeOfDay `json:"start_time"`
	EndTime           TimeOfDay `json:"end_time"`
	Reason            string    `json:"reason"`
	IsModifiedSession bool      `json:"is_modified_session"`
	MaxPatients       *int      `json:"max_patients,omitempty"`
	MinutesPerPatient *int      `json:"minutes_per_patient,omitempty"`
}

func (h *Handler) CreateException(c echo.Context) error {
	var req createExceptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exc := Exception{
		DoctorID:          req.DoctorID,
		ClinicID:          req.ClinicID,
		Date:              date,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Reason:            req.Reason,
		IsModifiedSession: req.IsModifiedSession,
		MaxPatients:       req.MaxPatients,
		MinutesPerPatient: req.MinutesPerPatient,
	}
	if err := h.svc.CreateException(c.Request().Context(), &exc); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, exc)
}

func (h *Handler) GetException(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	exc, err := h.svc.GetException(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, exc)
}

func (h *Handler) ListExceptions(c echo.Context) error {
	doctorID, clinicID, err := pairFromQuery(c)
	if err != nil {
		return err
	}
	from, err := ParseDate(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from: "+err.Error())
	}
	to, err := ParseDate(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to: "+err.Error())
	}
	items, err := h.svc.ListExceptions(c.Request().Context(), doctorID, clinicID, from, to)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteException(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteException(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pairFromQuery(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	clinicID, err := uuid.Parse(c.QueryParam("clinic_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
	}
	return doctorID, clinicID, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRuleNotFound), errors.Is(err, ErrExceptionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		// The cause stays internal; the request logger records it.
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
