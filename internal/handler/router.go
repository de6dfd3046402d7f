package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/gestion-notas-api/internal/middleware"
	"github.com/noah-isme/gestion-notas-api/internal/models"
)

// Router groups the handlers and the collaborators their guards need.
type Router struct {
	Auth     *AuthHandler
	Users    *UserHandler
	Students *StudentHandler
	Teachers *TeacherHandler
	Courses  *CourseHandler
	Grades   *GradeHandler
	Exports  *ExportHandler
	Files    *FileHandler
	Metrics  *MetricsHandler

	Tokens          middleware.TokenValidator
	StudentAccounts middleware.StudentAccountLookup
	AuditLog        middleware.AuditWriter
	Logger          *zap.Logger
}

// Register mounts every API route under api.
func (r Router) Register(api *gin.RouterGroup) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent)
	staffOrSelf := middleware.RequireRolesOrOwnStudent(r.StudentAccounts, "id", models.RoleAdmin, models.RoleTeacher)
	adminOrSelf := middleware.RequireRolesOrOwnStudent(r.StudentAccounts, "id", models.RoleAdmin)
	audit := func(action, resource, idParam string) gin.HandlerFunc {
		return middleware.Audit(r.AuditLog, r.Logger, action, resource, idParam)
	}

	api.POST("/auth/login", r.Auth.Login)
	api.GET("/files/:token", r.Files.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(r.Tokens))

	auth := secured.Group("/auth")
	auth.GET("/me", r.Auth.Me)
	auth.POST("/change-password", r.Auth.ChangePassword)

	users := secured.Group("/users", admin)
	users.GET("", r.Users.List)
	users.POST("", r.Users.Create)
	users.GET("/:id", r.Users.Get)
	users.PUT("/:id", r.Users.Update)
	users.PATCH("/:id/activate", r.Users.Activate)
	users.PATCH("/:id/deactivate", r.Users.Deactivate)
	users.DELETE("/:id", r.Users.Delete)

	students := secured.Group("/students")
	students.GET("", staff, r.Students.List)
	students.POST("", admin, r.Students.Create)
	students.POST("/register", admin, r.Students.Register)
	students.GET("/me", middleware.RequireRoles(models.RoleStudent), r.Students.Me)
	students.GET("/code/:code", staff, r.Students.GetByCode)
	students.GET("/account/:accountId", staff, r.Students.GetByAccount)
	students.GET("/stats/districts", admin, r.Students.Stats)
	students.GET("/:id", staffOrSelf, r.Students.Get)
	students.PUT("/:id", admin, r.Students.Update)
	students.PATCH("/:id/profile", adminOrSelf, r.Students.UpdateProfile)
	students.PUT("/:id/photo", adminOrSelf, r.Students.UploadPhoto)
	students.GET("/:id/photo-url", staffOrSelf, r.Students.PhotoURL)
	students.DELETE("/:id", admin, audit(models.AuditActionStudentDelete, "students", "id"), r.Students.Delete)
	students.GET("/:id/grades", staffOrSelf, r.Grades.ListForStudent)
	students.GET("/:id/average", staffOrSelf, r.Grades.StudentAverage)
	students.GET("/:id/courses/:courseId/standing", staffOrSelf, r.Grades.Standing)

	teachers := secured.Group("/teachers")
	teachers.GET("", staff, r.Teachers.List)
	teachers.POST("", admin, r.Teachers.Create)
	teachers.POST("/register", admin, r.Teachers.Register)
	teachers.GET("/me", middleware.RequireRoles(models.RoleTeacher), r.Teachers.Me)
	teachers.GET("/code/:code", staff, r.Teachers.GetByCode)
	teachers.GET("/account/:accountId", staff, r.Teachers.GetByAccount)
	teachers.GET("/stats/specialties", admin, r.Teachers.Stats)
	teachers.GET("/:id", staff, r.Teachers.Get)
	teachers.PUT("/:id", admin, r.Teachers.Update)
	teachers.PATCH("/:id/profile", admin, r.Teachers.UpdateProfile)
	teachers.PUT("/:id/photo", admin, r.Teachers.UploadPhoto)
	teachers.GET("/:id/photo-url", staff, r.Teachers.PhotoURL)
	teachers.DELETE("/:id", admin, audit(models.AuditActionTeacherDelete, "teachers", "id"), r.Teachers.Delete)

	courses := secured.Group("/courses")
	courses.GET("", anyRole, r.Courses.List)
	courses.POST("", admin, r.Courses.Create)
	courses.GET("/code/:code", anyRole, r.Courses.GetByCode)
	courses.GET("/stats/teachers", admin, r.Courses.Stats)
	courses.GET("/:id", anyRole, r.Courses.Get)
	courses.PUT("/:id", admin, r.Courses.Update)
	courses.PUT("/:id/teacher", admin, r.Courses.AssignTeacher)
	courses.DELETE("/:id/teacher", admin, r.Courses.UnassignTeacher)
	courses.PATCH("/:id/activate", admin, r.Courses.Activate)
	courses.PATCH("/:id/deactivate", admin, r.Courses.Deactivate)
	courses.DELETE("/:id", admin, audit(models.AuditActionCourseDelete, "courses", "id"), r.Courses.Delete)
	courses.GET("/:id/grades", staff, r.Grades.ListForCourse)
	courses.GET("/:id/average", staff, r.Grades.CourseAverage)
	courses.GET("/:id/summary", staff, r.Grades.CourseSummary)
	courses.GET("/:id/top-grades", staff, r.Grades.TopGrades)
	courses.GET("/:id/export", staff, r.Exports.CourseGradeSheet)

	grades := secured.Group("/grades", staff)
	grades.GET("", r.Grades.List)
	grades.POST("", audit(models.AuditActionGradeCreate, "grades", ""), r.Grades.Create)
	grades.POST("/bulk", audit(models.AuditActionGradeCreate, "grades", ""), r.Grades.BulkCreate)
	grades.GET("/approving", r.Grades.Approving)
	grades.GET("/minimum", r.Grades.Minimum)
	grades.GET("/evaluation-types", r.Grades.EvaluationTypes)
	grades.GET("/:id", r.Grades.Get)
	grades.PUT("/:id", audit(models.AuditActionGradeUpdate, "grades", "id"), r.Grades.Update)
	grades.DELETE("/:id", audit(models.AuditActionGradeDelete, "grades", "id"), r.Grades.Delete)

	secured.GET("/metrics/summary", admin, r.Metrics.Snapshot)
}
