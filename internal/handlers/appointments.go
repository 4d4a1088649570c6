package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"medibook-server/internal/middleware"
	"medibook-server/internal/models"
	"medibook-server/internal/scheduling"
	"medibook-server/internal/utils"
)

// AppointmentHandler exposes the scheduling engine over HTTP.
type AppointmentHandler struct {
	Engine *scheduling.Engine
	Logger zerolog.Logger
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(engine *scheduling.Engine, logger zerolog.Logger) *AppointmentHandler {
	return &AppointmentHandler{Engine: engine, Logger: logger}
}

// CreateAppointmentRequest represents the request body for booking an appointment.
type CreateAppointmentRequest struct {
	DoctorID    string `json:"doctorId"`
	ScheduledAt string `json:"scheduledAt"`
	Purpose     string `json:"purpose" binding:"max=255"`
}

// CancelAppointmentRequest represents the optional body of a cancellation.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// CompleteAppointmentRequest represents the optional body of a completion.
type CompleteAppointmentRequest struct {
	Notes        string `json:"notes"`
	Prescription string `json:"prescription"`
}

// UpdateAppointmentStatusRequest represents the body of the status endpoint.
type UpdateAppointmentStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	Reason       string `json:"reason" binding:"max=255"`
	Notes        string `json:"notes"`
	Prescription string `json:"prescription"`
}

// legacyStatuses maps older status names onto the canonical ones.
var legacyStatuses = map[string]models.AppointmentStatus{
	"accepted": models.StatusConfirmed,
	"rejected": models.StatusCancelled,
}

// CanonicalStatus translates a status name from a request, accepting the
// legacy aliases. Unknown names are returned unchanged for the engine to reject.
func CanonicalStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if st, ok := legacyStatuses[s]; ok {
		return string(st)
	}
	return s
}

// CreateAppointment books an appointment for the calling patient.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	view, err := h.Engine.Book(c.Request.Context(), caller, scheduling.BookRequest{
		DoctorID:    req.DoctorID,
		ScheduledAt: req.ScheduledAt,
		Purpose:     req.Purpose,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Created(c, "Appointment booked successfully", view)
}

// GetAppointmentsForUser lists the caller's appointments.
func (h *AppointmentHandler) GetAppointmentsForUser(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	page, err := h.Engine.List(c.Request.Context(), caller, scheduling.ListParams{
		Status: CanonicalStatus(c.Query("status")),
		From:   c.Query("from"),
		To:     c.Query("to"),
		Page:   c.Query("page"),
		Limit:  c.Query("limit"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", page)
}

// GetAppointmentByID returns one appointment with its doctor and patient.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	view, err := h.Engine.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", view)
}

// AcceptAppointment confirms a pending appointment.
func (h *AppointmentHandler) AcceptAppointment(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	appt, err := h.Engine.Accept(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Success(c, "Appointment accepted successfully", appt)
}

// CancelAppointment cancels an active appointment.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	var req CancelAppointmentRequest
	if !bindOptional(c, &req) {
		return
	}

	appt, err := h.Engine.Cancel(c.Request.Context(), caller, c.Param("id"), scheduling.CancelRequest{Reason: req.Reason})
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Success(c, "Appointment cancelled successfully", appt)
}

// CompleteAppointment marks a confirmed appointment as completed.
func (h *AppointmentHandler) CompleteAppointment(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	var req CompleteAppointmentRequest
	if !bindOptional(c, &req) {
		return
	}

	appt, err := h.Engine.Complete(c.Request.Context(), caller, c.Param("id"), scheduling.CompleteRequest{
		Notes:        req.Notes,
		Prescription: req.Prescription,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Success(c, "Appointment completed successfully", appt)
}

// UpdateAppointmentStatus routes a requested status onto the matching
// transition.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		appt *models.Appointment
		err  error
		msg  string
	)
	switch models.AppointmentStatus(CanonicalStatus(req.Status)) {
	case models.StatusConfirmed:
		appt, err = h.Engine.Accept(ctx, caller, id)
		msg = "Appointment accepted successfully"
	case models.StatusCancelled:
		appt, err = h.Engine.Cancel(ctx, caller, id, scheduling.CancelRequest{Reason: req.Reason})
		msg = "Appointment cancelled successfully"
	case models.StatusCompleted:
		appt, err = h.Engine.Complete(ctx, caller, id, scheduling.CompleteRequest{
			Notes:        req.Notes,
			Prescription: req.Prescription,
		})
		msg = "Appointment completed successfully"
	default:
		utils.ErrorWithDetails(c, http.StatusBadRequest, "Unsupported status transition",
			string(scheduling.KindValidation), scheduling.Details{"status": req.Status})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.Success(c, msg, appt)
}

// respondError writes the envelope for an engine error.
func (h *AppointmentHandler) respondError(c *gin.Context, err error) {
	var se *scheduling.Error
	if !errors.As(err, &se) {
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("unexpected error")
		utils.InternalServerError(c, "Internal server error")
		return
	}

	status := StatusForKind(se.Kind)
	details := se.Details
	if se.Kind == scheduling.KindUnavailable {
		// driver errors stay in the logs
		details = scheduling.Details{"retryable": se.Retryable()}
	}
	utils.ErrorWithDetails(c, status, se.Message, string(se.Kind), details)
}

// StatusForKind maps an error kind onto its HTTP status code.
func StatusForKind(k scheduling.Kind) int {
	switch k {
	case scheduling.KindValidation, scheduling.KindInvalidState:
		return http.StatusBadRequest
	case scheduling.KindForbidden:
		return http.StatusForbidden
	case scheduling.KindNotFound:
		return http.StatusNotFound
	case scheduling.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// callerFromContext reads the identity set by AuthMiddleware. It writes a
// 401 and returns false when there is none.
func callerFromContext(c *gin.Context) (scheduling.Caller, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return scheduling.Caller{}, false
	}
	role, ok := middleware.GetUserRoleFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return scheduling.Caller{}, false
	}
	return scheduling.Caller{ID: userID, Role: role}, true
}

// bindOptional binds a JSON body when one is present.
func bindOptional(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return utils.BindAndValidate(c, obj)
}
