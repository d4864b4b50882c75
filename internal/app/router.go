package app

import (
	"edu_backend/internal/config"
	"edu_backend/internal/middleware"
	"edu_backend/internal/model"
	"edu_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)

	rg.GET("/courses", c.catalog.ListCourses(false))
	rg.GET("/courses/:id/lessons", c.catalog.ListLessons)
	rg.POST("/courses/:id/enrollments", c.enrollment.Enroll)
	rg.PUT("/courses/:id/enrollments/me", c.enrollment.Reapply)
	rg.DELETE("/courses/:id/enrollments/me", c.enrollment.Withdraw)
	rg.GET("/enrollments", c.enrollment.List)

	activities := rg.Group("/activities")
	{
		// 作答相关路由要先于 /:id 注册
		attempts := activities.Group("/attempts")
		{
			attempts.POST("/start", c.attempt.Start)
			attempts.GET("", c.attempt.GetAttempts)
			attempts.GET("/:id", c.attempt.GetAttempt)
			attempts.POST("/:id/submit", c.attempt.Submit)
			attempts.GET("/:id/result", c.attempt.GetAttemptResult)
		}

		activities.GET("", c.activity.StudentList)
		activities.GET("/:id", c.activity.StudentDetail)
	}

	notifications := rg.Group("/notifications")
	{
		notifications.GET("", c.notification.List)
		notifications.GET("/ws", c.notification.HandleWS)
		notifications.PATCH("/read-all", c.notification.MarkAllRead)
		notifications.PATCH("/:id/read", c.notification.MarkRead)
	}
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	teacher := rg.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher, model.Admin))
	{
		teacher.POST("/courses", c.catalog.CreateCourse)
		teacher.GET("/courses", c.catalog.ListCourses(true))
		teacher.POST("/courses/:id/lessons", c.catalog.CreateLesson)
		teacher.GET("/courses/:id/lessons", c.catalog.ListLessons)
		teacher.PUT("/courses/:id/enrollments/:userId", c.enrollment.Review)
		teacher.DELETE("/courses/:id/enrollments/:userId", c.enrollment.Remove)

		teacher.POST("/activities", c.activity.Create)
		teacher.GET("/activities", c.activity.List)
		teacher.GET("/activities/:id", c.activity.Detail)
		teacher.PUT("/activities/:id", c.activity.Update)
		teacher.DELETE("/activities/:id", c.activity.Delete)

		teacher.GET("/attempts", c.attempt.AdminGetAttempts)
		teacher.GET("/attempts/:id", c.attempt.AdminGetAttemptDetail)
		teacher.POST("/attempts/:id/grade", c.attempt.Grade)
	}
}
