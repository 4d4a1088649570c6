package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"medibook-server/internal/config"
	"medibook-server/internal/middleware"
	"medibook-server/internal/models"
	"medibook-server/internal/utils"
)

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Logger zerolog.Logger

	// OnProfileChange is called with the user id after a profile update.
	OnProfileChange func(userID string)
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg, Logger: logger}
}

// RegisterRequest represents the request body for user registration.
// Admin accounts cannot be self-registered.
type RegisterRequest struct {
	FirstName      string `json:"firstName" binding:"required,max=100"`
	LastName       string `json:"lastName" binding:"required,max=100"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	Role           string `json:"role" binding:"omitempty,oneof=patient doctor"`
	PhoneNumber    string `json:"phoneNumber" binding:"max=50"`
	Specialization string `json:"specialization" binding:"max=100"`
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	role := models.RolePatient
	if req.Role != "" {
		role = models.Role(req.Role)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	err := h.DB.WithContext(c.Request.Context()).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		utils.Conflict(c, "User with this email already exists")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		h.Logger.Error().Err(err).Msg("register: lookup email")
		utils.InternalServerError(c, "Database error")
		return
	}

	user := models.User{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       email,
		Role:        role,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
	}
	if role == models.RoleDoctor {
		user.Specialization = strings.TrimSpace(req.Specialization)
	}

	if err := user.SetPassword(req.Password); err != nil {
		h.Logger.Error().Err(err).Msg("register: hash password")
		utils.InternalServerError(c, "Failed to hash password")
		return
	}

	if err := h.DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		h.Logger.Error().Err(err).Msg("register: create user")
		utils.InternalServerError(c, "Failed to create user")
		return
	}

	h.Logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken string               `json:"accessToken"`
	ExpiresAt   time.Time            `json:"expiresAt"`
	User        models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.DB.WithContext(c.Request.Context()).Where("email = ?", email).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Invalid email or password")
		} else {
			h.Logger.Error().Err(err).Msg("login: lookup user")
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	if !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	ttl := time.Duration(h.Cfg.JWTExpirationMinutes) * time.Minute
	accessToken, err := utils.GenerateAccessToken(&user, h.Cfg.JWTSecret, ttl)
	if err != nil {
		h.Logger.Error().Err(err).Msg("login: sign token")
		utils.InternalServerError(c, "Failed to generate token")
		return
	}

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken: accessToken,
		ExpiresAt:   time.Now().Add(ttl).UTC(),
		User:        user.Sanitize(),
	})
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).Where("id = ?", userID).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User profile not found")
		} else {
			h.Logger.Error().Err(err).Msg("profile: lookup user")
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
type UpdateProfileRequest struct {
	FirstName      string `json:"firstName" binding:"max=100"`
	LastName       string `json:"lastName" binding:"max=100"`
	PhoneNumber    string `json:"phoneNumber" binding:"max=50"`
	Specialization string `json:"specialization" binding:"max=100"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).Where("id = ?", userID).Take(&user).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}

	if v := strings.TrimSpace(req.FirstName); v != "" {
		user.FirstName = v
	}
	if v := strings.TrimSpace(req.LastName); v != "" {
		user.LastName = v
	}
	if v := strings.TrimSpace(req.PhoneNumber); v != "" {
		user.PhoneNumber = v
	}
	if v := strings.TrimSpace(req.Specialization); v != "" && user.Role == models.RoleDoctor {
		user.Specialization = v
	}

	if err := h.DB.WithContext(c.Request.Context()).Save(&user).Error; err != nil {
		h.Logger.Error().Err(err).Msg("profile: save user")
		utils.InternalServerError(c, "Failed to update profile")
		return
	}
	if h.OnProfileChange != nil {
		h.OnProfileChange(user.ID)
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}
