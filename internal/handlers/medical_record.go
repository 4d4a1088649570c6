package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medibook-server/internal/middleware"
	"medibook-server/internal/models"
	"medibook-server/internal/utils"
)

// RecordStore persists and lists medical records.
type RecordStore interface {
	Create(ctx context.Context, record *models.MedicalRecord) error
	ListForPatient(ctx context.Context, patientID string) ([]models.MedicalRecord, error)
}

// UserFinder resolves a single user.
type UserFinder interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
}

// MedicalRecordHandler handles medical record related requests.
type MedicalRecordHandler struct {
	Records RecordStore
	Users   UserFinder
	Logger  zerolog.Logger
}

// NewMedicalRecordHandler creates a new MedicalRecordHandler.
func NewMedicalRecordHandler(records RecordStore, users UserFinder, logger zerolog.Logger) *MedicalRecordHandler {
	return &MedicalRecordHandler{Records: records, Users: users, Logger: logger}
}

// CreateMedicalRecordRequest represents the request body for creating a medical record.
type CreateMedicalRecordRequest struct {
	PatientID  string `json:"patientId" binding:"required,uuid"`
	RecordType string `json:"recordType" binding:"required,oneof=ConsultationNote Prescription"`
	RecordDate string `json:"recordDate"`
	Title      string `json:"title" binding:"required,max=255"`
	Summary    string `json:"summary" binding:"required"`
	Details    string `json:"details"`
}

// CreateMedicalRecord handles creating a new medical record.
// Only accessible by doctors.
func (h *MedicalRecordHandler) CreateMedicalRecord(c *gin.Context) {
	var req CreateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	doctorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	patient, err := h.Users.FindUser(c.Request.Context(), req.PatientID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.NotFound(c, "Patient not found")
		} else {
			h.Logger.Error().Err(err).Msg("create record: find patient")
			utils.InternalServerError(c, "Database error")
		}
		return
	}
	if patient.Role != models.RolePatient {
		utils.NotFound(c, "Patient not found")
		return
	}

	recordDate := time.Now().UTC()
	if s := strings.TrimSpace(req.RecordDate); s != "" {
		recordDate, err = time.Parse(time.RFC3339, s)
		if err != nil {
			utils.BadRequest(c, "Invalid date format. Please use ISO 8601 format (YYYY-MM-DDTHH:MM:SSZ)")
			return
		}
		recordDate = recordDate.UTC()
	}

	record := models.MedicalRecord{
		PatientID:  patient.ID,
		DoctorID:   doctorID,
		RecordType: models.MedicalRecordType(req.RecordType),
		RecordDate: recordDate,
		Title:      strings.TrimSpace(req.Title),
		Summary:    req.Summary,
		Details:    req.Details,
	}
	if err := h.Records.Create(c.Request.Context(), &record); err != nil {
		h.Logger.Error().Err(err).Msg("create record")
		utils.InternalServerError(c, "Failed to create medical record")
		return
	}

	utils.Created(c, "Medical record created successfully", record)
}

// GetMedicalRecordsForPatient handles fetching medical records for a specific patient.
// Accessible by the patient themselves, doctors and admins.
func (h *MedicalRecordHandler) GetMedicalRecordsForPatient(c *gin.Context) {
	patientID := c.Param("patientId")
	if _, err := uuid.Parse(patientID); err != nil {
		utils.BadRequest(c, "Invalid patient id format")
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)
	if role != models.RoleDoctor && role != models.RoleAdmin && userID != patientID {
		utils.Forbidden(c, "You are not authorized to view these medical records")
		return
	}

	records, err := h.Records.ListForPatient(c.Request.Context(), patientID)
	if err != nil {
		h.Logger.Error().Err(err).Str("patient_id", patientID).Msg("list records")
		utils.InternalServerError(c, "Failed to fetch medical records")
		return
	}
	utils.Success(c, "Medical records fetched successfully", records)
}
