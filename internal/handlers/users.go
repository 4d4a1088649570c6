package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medibook-server/internal/models"
	"medibook-server/internal/utils"
)

// UserDirectory is the read side of the user directory.
type UserDirectory interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
	ListDoctors(ctx context.Context, specialization string) ([]models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

// UserHandler handles user directory requests.
type UserHandler struct {
	Directory UserDirectory
	Logger    zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(dir UserDirectory, logger zerolog.Logger) *UserHandler {
	return &UserHandler{Directory: dir, Logger: logger}
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	userID := c.Param("id")
	if _, err := uuid.Parse(userID); err != nil {
		utils.BadRequest(c, "Invalid user id format")
		return
	}

	user, err := h.Directory.FindUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			h.Logger.Error().Err(err).Str("user_id", userID).Msg("find user")
			utils.InternalServerError(c, "Database error")
		}
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// GetDoctors lists doctors, optionally filtered by ?specialization=.
// Any authenticated user may browse doctors before booking.
func (h *UserHandler) GetDoctors(c *gin.Context) {
	doctors, err := h.Directory.ListDoctors(c.Request.Context(), c.Query("specialization"))
	if err != nil {
		h.Logger.Error().Err(err).Msg("list doctors")
		utils.InternalServerError(c, "Failed to fetch doctors")
		return
	}
	utils.Success(c, "Doctors fetched successfully", sanitizeAll(doctors))
}

// GetPatients lists all patients. Doctors and admins only.
func (h *UserHandler) GetPatients(c *gin.Context) {
	patients, err := h.Directory.ListByRole(c.Request.Context(), models.RolePatient)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list patients")
		utils.InternalServerError(c, "Failed to fetch patients")
		return
	}
	utils.Success(c, "Patients fetched successfully", sanitizeAll(patients))
}

func sanitizeAll(users []models.User) []models.UserSanitized {
	out := make([]models.UserSanitized, len(users))
	for i := range users {
		out[i] = users[i].Sanitize()
	}
	return out
}
