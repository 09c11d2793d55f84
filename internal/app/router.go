package app

import (
	"mylms_backend/docs"
	"mylms_backend/internal/config"
	"mylms_backend/internal/middleware"
	"mylms_backend/internal/model"
	"mylms_backend/pkg/logger"
	"mylms_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg, logger.Named("auth")))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口
		a.registerTeacherRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	publicAPI := router.Group("/api/public")
	{
		publicAPI.GET("/certificates/verify/:code", c.certificate.Verify)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)
	rg.PUT("/profile", c.auth.UpdateProfile)

	// 课程与课时（查看）
	rg.GET("/catalog", c.course.ListCatalog)
	rg.GET("/courses", c.course.ListCourses)
	rg.GET("/courses/:id", c.course.GetCourse)
	rg.GET("/courses/:id/lessons", c.course.ListLessons)
	rg.GET("/lessons/:id", c.course.GetLesson)

	// 测验
	rg.GET("/courses/:id/quizzes", c.quiz.ListQuizzes)
	rg.GET("/quizzes/:id", c.quiz.GetQuiz)
	rg.GET("/quizzes/:id/answers", c.quiz.MyAnswers)
	rg.POST("/quizzes/:id/submit", middleware.RoleMiddleware(model.Student), c.quiz.SubmitAnswers)

	// 学习进度
	rg.GET("/courses/:id/progress", c.progress.GetCourseProgress)
	rg.PUT("/lessons/:id/progress", middleware.RoleMiddleware(model.Student), c.progress.UpdateLessonProgress)

	// 选课
	enrollments := rg.Group("/enrollments")
	{
		enrollments.GET("", c.enrollment.ListMine)
		enrollments.POST("", middleware.RoleMiddleware(model.Student), c.enrollment.Enroll)
		enrollments.POST("/:id/drop", c.enrollment.Drop)
	}

	// 证书
	certificates := rg.Group("/certificates")
	{
		certificates.GET("", c.certificate.List)
		certificates.GET("/:id", c.certificate.Get)
	}

	// 通知
	notifications := rg.Group("/notifications")
	{
		notifications.GET("", c.notification.List)
		notifications.GET("/unread-count", c.notification.UnreadCount)
		notifications.POST("/read-all", c.notification.MarkAllRead)
		notifications.POST("/:id/read", c.notification.MarkRead)
	}
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	teacher := rg.Group("")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		// 课程管理
		teacher.POST("/courses", c.course.CreateCourse)
		teacher.PUT("/courses/:id", c.course.UpdateCourse)
		teacher.DELETE("/courses/:id", c.course.DeleteCourse)
		teacher.POST("/courses/:id/lessons", c.course.CreateLesson)
		teacher.PUT("/lessons/:id", c.course.UpdateLesson)
		teacher.DELETE("/lessons/:id", c.course.DeleteLesson)

		// 测验管理
		teacher.POST("/courses/:id/quizzes", c.quiz.CreateQuiz)
		teacher.PUT("/quizzes/:id", c.quiz.UpdateQuiz)
		teacher.DELETE("/quizzes/:id", c.quiz.DeleteQuiz)
		teacher.POST("/quizzes/:id/questions", c.quiz.AddQuestion)
		teacher.PUT("/questions/:id", c.quiz.UpdateQuestion)
		teacher.DELETE("/questions/:id", c.quiz.DeleteQuestion)
		teacher.GET("/quizzes/:id/statistics", c.quiz.Statistics)

		// 学生管理
		teacher.GET("/courses/:id/enrollments", c.enrollment.ListForCourse)
		teacher.GET("/courses/:id/students/:studentId/progress", c.progress.GetStudentProgress)
		teacher.PUT("/enrollments/:id/status", c.enrollment.SetStatus)
		teacher.POST("/certificates/issue", c.certificate.Issue)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg, logger.Named("auth")), middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/users", c.user.ListUsers)
		admin.PUT("/users/:id/disabled", c.user.SetDisabled)
		admin.GET("/stats", c.admin.Stats)
		admin.POST("/notifications", c.admin.Broadcast)
	}
}
