package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/handler"
	"github.com/noah-isme/course-cert-api/internal/middleware"
	"github.com/noah-isme/course-cert-api/internal/models"
	"github.com/noah-isme/course-cert-api/internal/service"
)

type routeDeps struct {
	logger       *zap.Logger
	auth         *service.AuthService
	roles        *service.RoleService
	metrics      *service.MetricsService
	courses      *handler.CourseHandler
	enrollments  *handler.EnrollmentHandler
	evaluations  *handler.EvaluationHandler
	certificates *handler.CertificateHandler
	treasury     *handler.TreasuryHandler
	reports      *handler.ReportHandler
	roleAdmin    *handler.RoleHandler
	probes       *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, prefix string, d routeDeps) {
	r.GET("/health", d.probes.Health)
	r.GET("/ready", d.probes.Ready)
	r.GET("/metrics", d.probes.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	authed := middleware.JWT(d.auth)
	admin := middleware.RequireRole(d.roles, models.RoleAdmin)
	audit := func(action string) gin.HandlerFunc { return middleware.Audit(d.logger, action) }

	api.GET("/contract", d.courses.Contract)
	api.GET("/roles/:role/members/:address", d.roleAdmin.HasRole)
	api.GET("/treasury", d.treasury.Balance)

	courses := api.Group("/courses")
	courses.GET("/:id", d.courses.Get)
	courses.GET("/:id/uri", d.courses.URI)
	courses.GET("/:id/evaluators", d.courses.Evaluators)
	courses.GET("/:id/students", d.courses.Students)
	courses.GET("/:id/evaluations", d.evaluations.List)
	courses.GET("/:id/evaluations/:address", d.evaluations.IsEvaluated)
	courses.GET("/:id/results", d.evaluations.Results)
	courses.GET("/:id/certificates", d.certificates.List)

	accounts := api.Group("/accounts/:address")
	accounts.GET("/courses", d.enrollments.CoursesOf)
	accounts.GET("/balances/:courseId", d.enrollments.BalanceOf)
	accounts.GET("/approvals/:operator", d.enrollments.IsApproved)

	member := api.Group("")
	member.Use(authed)
	member.POST("/courses/:id/enrollments", audit("course.enroll"), d.enrollments.BuyPlace)
	member.PUT("/approvals", audit("ledger.approval"), d.enrollments.SetApproval)
	member.GET("/courses/:id/report", d.reports.CourseReport)
	member.POST("/courses/:id/evaluations",
		middleware.RequireRole(d.roles, models.RoleEvaluator),
		audit("course.evaluate"),
		d.evaluations.Evaluate,
	)

	adminOnly := api.Group("")
	adminOnly.Use(authed, admin)
	adminOnly.PUT("/settings/limits", audit("settings.limits"), d.courses.SetLimits)
	adminOnly.POST("/roles/:role/members", audit("role.grant"), d.roleAdmin.Grant)
	adminOnly.DELETE("/roles/:role/members/:address", audit("role.revoke"), d.roleAdmin.Revoke)
	adminOnly.POST("/courses", audit("course.create"), d.courses.Create)
	adminOnly.PUT("/courses/:id/uri", audit("course.uri"), d.courses.SetURI)
	adminOnly.POST("/courses/:id/places/remove", audit("course.remove_places"), d.courses.RemovePlaces)
	adminOnly.POST("/courses/:id/evaluators", audit("course.evaluator_add"), d.courses.AddEvaluator)
	adminOnly.DELETE("/courses/:id/evaluators/:address", audit("course.evaluator_remove"), d.courses.RemoveEvaluator)
	adminOnly.POST("/courses/:id/transfers", audit("course.transfer"), d.enrollments.TransferPlace)
	adminOnly.POST("/courses/:id/certificates", audit("course.certify"), d.certificates.Make)
	adminOnly.POST("/treasury/withdrawals", audit("treasury.withdraw"), d.treasury.Withdraw)
	adminOnly.GET("/metrics/summary", d.probes.Snapshot)
}
