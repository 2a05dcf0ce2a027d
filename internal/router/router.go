package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/handler"
	"github.com/stemsi/ieltsmock-backend/internal/middleware"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Attempt       *handler.AttemptHandler
	StudentPortal *handler.StudentPortalHandler
	Test          *handler.TestHandler
	TestKey       *handler.TestKeyHandler
	Moc           *handler.MocHandler
	Report        *handler.ReportHandler
	Media         *handler.MediaHandler
	Monitor       *handler.MonitorHandler
	AdminUser     *handler.AdminUserHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by the router, such as rate limiter
// cleanup.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(middleware.RequestID(), middleware.RequestLogger(log))

	// Uploaded media is immutable (UUID filenames), so cache for a year.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	accessLimiter := middleware.NewRateLimiter(cfg.AccessRatePerMinute, time.Minute)
	go accessLimiter.Cleanup(ctx.Done())

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/admin/login", accessLimiter.Middleware(), handlers.Auth.AdminLogin)
		auth.POST("/student/login", accessLimiter.Middleware(), handlers.Auth.StudentLogin)
		auth.POST("/student/register", accessLimiter.Middleware(), handlers.Auth.StudentRegister)
		auth.POST("/refresh", handlers.Auth.Refresh)

		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
		auth.POST("/student/logout",
			middleware.RequireStudentJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
			handlers.Auth.StudentLogout,
		)
	}

	// ─── 2. Exam Group (Test Key → Candidate Token) ────────────────────
	exam := router.Group("/api/v1/exam")
	exam.Use(middleware.NoStore())
	{
		exam.POST("/access", accessLimiter.Middleware(), handlers.Attempt.Access)

		candidate := exam.Group("")
		candidate.Use(middleware.RequireCandidateJWT(authService))
		{
			candidate.GET("/attempt", handlers.Attempt.GetAttempt)
			candidate.GET("/content", handlers.Attempt.GetContent)
			candidate.PUT("/answers/:section", handlers.Attempt.SaveSection)
			candidate.PUT("/highlights", handlers.Attempt.SaveHighlights)
			candidate.POST("/recordings", handlers.Attempt.UploadRecording)
			candidate.POST("/submit", handlers.Attempt.Submit)
		}
	}

	// Student-facing exam paths. Same handlers as the exam group, mounted
	// beside the student portal but bound to the candidate token.
	studentExam := router.Group("/api/v1/student")
	studentExam.Use(middleware.NoStore())
	{
		studentExam.POST("/access", accessLimiter.Middleware(), handlers.Attempt.Access)

		candidate := studentExam.Group("")
		candidate.Use(middleware.RequireCandidateJWT(authService))
		{
			candidate.GET("/test", handlers.Attempt.GetContent)
			candidate.POST("/answers/:section", handlers.Attempt.SaveSection)
			candidate.POST("/highlights", handlers.Attempt.SaveHighlights)
			candidate.POST("/submit", handlers.Attempt.Submit)
		}
	}

	// ─── 3. WebSocket Group (Candidate Token in Query) ─────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateJWT(authService))
	{
		ws.GET("/exam/stream", handlers.WS.ExamStream)
	}

	// ─── 4. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.POST("/enter-test-code", accessLimiter.Middleware(), handlers.StudentPortal.EnterTestCode)
		studentAPI.GET("/queue-status", handlers.StudentPortal.QueueStatus)
		studentAPI.POST("/leave-queue", handlers.StudentPortal.LeaveQueue)
		studentAPI.POST("/start-test", handlers.StudentPortal.StartTest)
		studentAPI.GET("/test-status/:code", handlers.StudentPortal.TestStatus)
		studentAPI.GET("/profile", handlers.StudentPortal.GetProfile)
		studentAPI.PUT("/profile", handlers.StudentPortal.UpdateProfile)
		studentAPI.GET("/attempts", handlers.StudentPortal.ListAttempts)
		studentAPI.GET("/stats", handlers.StudentPortal.GetStats)
	}

	// ─── 5. Admin Group (JWT, Admin or Owner) ──────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.RequireAdminJWT(authService),
		middleware.RequireRole(model.AdminRoleAdmin, model.AdminRoleOwner),
	)
	{
		adminAPI.POST("/media/upload", handlers.Media.UploadMedia)

		adminAPI.GET("/tests", handlers.Test.ListTests)
		adminAPI.POST("/tests", handlers.Test.CreateTest)
		adminAPI.GET("/tests/:id", handlers.Test.GetTest)
		adminAPI.PUT("/tests/:id", handlers.Test.UpdateTest)
		adminAPI.DELETE("/tests/:id", handlers.Test.DeleteTest)
		adminAPI.POST("/tests/:id/start-mock", handlers.Test.StartMock)
		adminAPI.POST("/tests/:id/stop-mock", handlers.Test.StopMock)
		adminAPI.GET("/tests/:id/monitor", handlers.Monitor.MonitorTestSSE)
		adminAPI.POST("/tests/:id/generate-code", handlers.TestKey.GenerateKey)
		adminAPI.POST("/tests/:id/generate-codes", handlers.TestKey.GenerateBatch)

		adminAPI.GET("/test-keys", handlers.TestKey.ListKeys)
		adminAPI.POST("/test-keys/:key/deactivate", handlers.TestKey.DeactivateKey)
		adminAPI.POST("/test-keys/:key/regenerate", handlers.TestKey.RegenerateKey)

		adminAPI.GET("/moc-tests", handlers.Moc.ListMocs)
		adminAPI.POST("/moc-tests", handlers.Moc.CreateMoc)
		adminAPI.POST("/moc-tests/start", handlers.Moc.StartMocSession)
		adminAPI.GET("/moc-tests/:id", handlers.Moc.GetMoc)
		adminAPI.PUT("/moc-tests/:id", handlers.Moc.UpdateMoc)
		adminAPI.DELETE("/moc-tests/:id", handlers.Moc.DeleteMoc)

		adminAPI.GET("/results", handlers.Report.ListResults)
		adminAPI.GET("/students", handlers.Report.ListStudents)
		adminAPI.GET("/stats", handlers.Report.GetStats)
		adminAPI.PUT("/queue/:id/status", handlers.Report.TransitionQueue)
	}

	// ─── 6. Owner Group ────────────────────────────────────────────────
	ownerAPI := router.Group("/api/v1/owner")
	ownerAPI.Use(
		middleware.RequireAdminJWT(authService),
		middleware.RequireRole(model.AdminRoleOwner),
	)
	{
		ownerAPI.GET("/stats", handlers.AdminUser.SystemStats)
		ownerAPI.GET("/admins", handlers.AdminUser.ListAdmins)
		ownerAPI.POST("/admins", handlers.AdminUser.CreateAdmin)
		ownerAPI.GET("/admins/stats", handlers.AdminUser.AdminStats)
		ownerAPI.PUT("/admins/:id/active", handlers.AdminUser.SetActive)
		ownerAPI.PUT("/admins/:id/password", handlers.AdminUser.ResetPassword)
		ownerAPI.DELETE("/admins/:id", handlers.AdminUser.DeleteAdmin)
	}

	return router
}
