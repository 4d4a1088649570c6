package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medibook-server/internal/config"
	"medibook-server/internal/handlers"
	"medibook-server/internal/middleware"
	"medibook-server/internal/models"
)

// Handlers groups the HTTP handlers mounted by SetupRoutes.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Users         *handlers.UserHandler
	Appointments  *handlers.AppointmentHandler
	MedicalRecord *handlers.MedicalRecordHandler
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, h Handlers, cfg *config.Config) {
	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", h.Auth.Register)
			authRoutes.POST("/login", h.Auth.Login)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.GET("/profile", h.Auth.GetProfile)
			authRoutesPrivate.PUT("/profile", h.Auth.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		{
			// Any authenticated user may browse doctors
			userRoutes.GET("/doctors", h.Users.GetDoctors)
			userRoutes.GET("/patients", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin), h.Users.GetPatients)
			userRoutes.GET("/:id", middleware.RoleAuthMiddleware(models.RoleAdmin), h.Users.GetUserByID)
		}

		appointmentRoutes := private.Group("/appointments")
		{
			// Listing is scoped to the caller inside the engine; admins see everything
			appointmentRoutes.GET("", h.Appointments.GetAppointmentsForUser)
			appointmentRoutes.POST("", middleware.RoleAuthMiddleware(models.RolePatient), h.Appointments.CreateAppointment)
			appointmentRoutes.GET("/:id", h.Appointments.GetAppointmentByID)
			appointmentRoutes.PATCH("/:id/accept", middleware.RoleAuthMiddleware(models.RoleDoctor), h.Appointments.AcceptAppointment)
			appointmentRoutes.PATCH("/:id/cancel", middleware.RoleAuthMiddleware(models.RolePatient, models.RoleDoctor), h.Appointments.CancelAppointment)
			appointmentRoutes.PATCH("/:id/complete", middleware.RoleAuthMiddleware(models.RoleDoctor), h.Appointments.CompleteAppointment)
			appointmentRoutes.PATCH("/:id/status", h.Appointments.UpdateAppointmentStatus)
		}

		medicalRecordRoutes := private.Group("/medical-records")
		{
			medicalRecordRoutes.POST("", middleware.RoleAuthMiddleware(models.RoleDoctor), h.MedicalRecord.CreateMedicalRecord)
			medicalRecordRoutes.GET("/patient/:patientId", h.MedicalRecord.GetMedicalRecordsForPatient)
		}
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}
