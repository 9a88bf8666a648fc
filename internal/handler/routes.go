package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/research-portal-api/internal/middleware"
	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/policy"
)

// Handlers groups every API handler mounted under the API prefix.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Shared     *SharedArchiveHandler
	Personal   *PersonalArchiveHandler
	Research   *ResearchRecordHandler
	Thesis     *ThesisProjectHandler
	Algorithms *AlgorithmHandler
	Admin      *AdminHandler
}

// RegisterRoutes mounts the API. Every route past login passes the JWT check
// and the coarse role gate; services apply ownership and visibility.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, verifier middleware.TokenVerifier) {
	gate := middleware.RequireAction

	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(verifier))
	protected.GET("/auth/me", h.Auth.Me)

	users := protected.Group("/users")
	users.GET("", gate(models.KindIdentity, policy.ActionList), h.Users.List)
	users.GET("/export", gate(models.KindIdentity, policy.ActionExport), h.Users.Export)
	users.GET("/:id", gate(models.KindIdentity, policy.ActionRead), h.Users.Get)
	users.PATCH("/:id", gate(models.KindIdentity, policy.ActionUpdate), h.Users.Update)
	users.DELETE("/:id", gate(models.KindIdentity, policy.ActionDelete), h.Users.Delete)

	shared := protected.Group("/shared-archives")
	shared.GET("", gate(models.KindSharedArchive, policy.ActionList), h.Shared.List)
	shared.POST("", gate(models.KindSharedArchive, policy.ActionCreate), h.Shared.Create)
	shared.GET("/:id", gate(models.KindSharedArchive, policy.ActionRead), h.Shared.Get)
	shared.PATCH("/:id", gate(models.KindSharedArchive, policy.ActionUpdate), h.Shared.Update)
	shared.DELETE("/:id", gate(models.KindSharedArchive, policy.ActionDelete), h.Shared.Delete)
	shared.GET("/:id/download", gate(models.KindSharedArchive, policy.ActionDownload), h.Shared.Download)

	personal := protected.Group("/personal-archives")
	personal.GET("", gate(models.KindPersonalArchive, policy.ActionList), h.Personal.List)
	personal.POST("", gate(models.KindPersonalArchive, policy.ActionCreate), h.Personal.Create)
	personal.GET("/folders", gate(models.KindPersonalArchive, policy.ActionList), h.Personal.Folders)
	personal.GET("/:id", gate(models.KindPersonalArchive, policy.ActionRead), h.Personal.Get)
	personal.PATCH("/:id", gate(models.KindPersonalArchive, policy.ActionUpdate), h.Personal.Update)
	personal.DELETE("/:id", gate(models.KindPersonalArchive, policy.ActionDelete), h.Personal.Delete)
	personal.GET("/:id/download", gate(models.KindPersonalArchive, policy.ActionDownload), h.Personal.Download)

	research := protected.Group("/research-records")
	research.GET("", gate(models.KindResearchRecord, policy.ActionList), h.Research.List)
	research.POST("", gate(models.KindResearchRecord, policy.ActionCreate), h.Research.Create)
	research.GET("/:id", gate(models.KindResearchRecord, policy.ActionRead), h.Research.Get)
	research.PATCH("/:id", gate(models.KindResearchRecord, policy.ActionUpdate), h.Research.Update)
	research.PUT("/:id/file", gate(models.KindResearchRecord, policy.ActionUpdate), h.Research.ReplaceFile)
	research.DELETE("/:id", gate(models.KindResearchRecord, policy.ActionDelete), h.Research.Delete)
	research.GET("/:id/download", gate(models.KindResearchRecord, policy.ActionDownload), h.Research.Download)

	thesis := protected.Group("/thesis-projects")
	thesis.GET("", gate(models.KindThesisProject, policy.ActionList), h.Thesis.List)
	thesis.POST("", gate(models.KindThesisProject, policy.ActionCreate), h.Thesis.Create)
	thesis.GET("/:id", gate(models.KindThesisProject, policy.ActionRead), h.Thesis.Get)
	thesis.PATCH("/:id", gate(models.KindThesisProject, policy.ActionUpdate), h.Thesis.Update)
	thesis.PUT("/:id/file", gate(models.KindThesisProject, policy.ActionUpdate), h.Thesis.ReplaceFile)
	thesis.DELETE("/:id", gate(models.KindThesisProject, policy.ActionDelete), h.Thesis.Delete)
	thesis.GET("/:id/download", gate(models.KindThesisProject, policy.ActionDownload), h.Thesis.Download)

	algorithms := protected.Group("/algorithms")
	algorithms.GET("", gate(models.KindAlgorithm, policy.ActionRun), h.Algorithms.Kinds)
	algorithms.POST("/:kind", gate(models.KindAlgorithm, policy.ActionRun), h.Algorithms.Run)

	admin := protected.Group("/admin")
	admin.POST("/storage/reconcile", gate(models.KindStorage, policy.ActionReconcile), h.Admin.Reconcile)
}
