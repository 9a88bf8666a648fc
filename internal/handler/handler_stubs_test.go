package handler

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/service"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

type stubVerifier struct {
	tokens map[string]*models.JWTClaims
}

func (v stubVerifier) VerifyToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v.tokens[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

type stubRegistrar struct {
	got models.RegisterRequest
	err error
}

func (s *stubRegistrar) Register(ctx context.Context, req models.RegisterRequest) (*models.Registration, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Registration{User: &models.User{ID: "u-1", Name: req.Name, Email: req.Email, Role: models.RoleStudent}, AccessCode: "12345"}, nil
}

type stubAuthenticator struct{}

func (stubAuthenticator) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{Token: "t", TokenType: "Bearer"}, nil
}

func (stubAuthenticator) Me(claims *models.JWTClaims) (*models.UserInfo, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.UserInfo{ID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

type stubUsers struct {
	updated *service.UpdateUserRequest
}

func (s *stubUsers) List(ctx context.Context, actor *models.JWTClaims, filter models.UserFilter) ([]service.UserView, *models.Pagination, error) {
	return []service.UserView{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (s *stubUsers) Get(ctx context.Context, actor *models.JWTClaims, id string) (*service.UserView, error) {
	return &service.UserView{User: models.User{ID: id}}, nil
}

func (s *stubUsers) Update(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdateUserRequest) (*models.User, error) {
	s.updated = &req
	return &models.User{ID: id}, nil
}

func (s *stubUsers) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	return nil
}

func (s *stubUsers) Export(ctx context.Context, actor *models.JWTClaims, format string) (*service.ExportedFile, error) {
	return &service.ExportedFile{Filename: "users.csv", ContentType: "text/csv", Content: []byte("id\n")}, nil
}

type stubShared struct {
	req      service.CreateSharedArchiveRequest
	upload   *service.StagedUpload
	download *models.FileDownload
}

func (s *stubShared) Create(ctx context.Context, actor *models.JWTClaims, req service.CreateSharedArchiveRequest, upload *service.StagedUpload) (*models.SharedArchive, error) {
	s.req = req
	s.upload = upload
	if upload == nil {
		return nil, appErrors.Field("file", "file is required")
	}
	return &models.SharedArchive{ID: "a-1", OwnerID: actor.UserID, Folder: req.Folder, IsPublic: req.IsPublic}, nil
}

func (s *stubShared) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SharedArchive, error) {
	return &models.SharedArchive{ID: id}, nil
}

func (s *stubShared) List(ctx context.Context, actor *models.JWTClaims, filter models.SharedArchiveFilter) ([]models.SharedArchive, error) {
	return []models.SharedArchive{}, nil
}

func (s *stubShared) Update(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdateSharedArchiveRequest) (*models.SharedArchive, error) {
	return &models.SharedArchive{ID: id}, nil
}

func (s *stubShared) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	return nil
}

func (s *stubShared) Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error) {
	if s.download == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	return s.download, nil
}

type stubAlgorithms struct {
	kind  string
	input json.RawMessage
}

func (s *stubAlgorithms) Run(ctx context.Context, actor *models.JWTClaims, kind string, input json.RawMessage) (json.RawMessage, error) {
	s.kind = kind
	s.input = input
	return json.RawMessage(`{"ok":true}`), nil
}

func (s *stubAlgorithms) Kinds() []string {
	return []string{"kmeans", "sort"}
}

type stubReconciler struct {
	calls  int
	dryRun bool
}

func (s *stubReconciler) Reconcile(ctx context.Context, actor *models.JWTClaims, dryRun bool) (*service.ReconcileReport, error) {
	s.calls++
	s.dryRun = dryRun
	return &service.ReconcileReport{DryRun: dryRun}, nil
}

type routeFixture struct {
	engine     *gin.Engine
	users      *stubUsers
	shared     *stubShared
	algorithms *stubAlgorithms
	reconciler *stubReconciler
	registrar  *stubRegistrar
}

var routeTokens = map[string]*models.JWTClaims{
	"student":    {UserID: "s-1", Role: models.RoleStudent},
	"faculty":    {UserID: "f-1", Role: models.RoleFaculty},
	"admin":      {UserID: "a-1", Role: models.RoleAdmin},
	"superadmin": {UserID: "sa-1", Role: models.RoleSuperAdmin},
}

func newRouteFixture(stager *Stager) *routeFixture {
	gin.SetMode(gin.TestMode)
	f := &routeFixture{
		users:      &stubUsers{},
		shared:     &stubShared{},
		algorithms: &stubAlgorithms{},
		reconciler: &stubReconciler{},
		registrar:  &stubRegistrar{},
	}
	f.engine = gin.New()
	RegisterRoutes(f.engine.Group("/api/v1"), Handlers{
		Auth:       NewAuthHandler(f.registrar, stubAuthenticator{}),
		Users:      NewUserHandler(f.users),
		Shared:     NewSharedArchiveHandler(f.shared, stager, 1024),
		Personal:   NewPersonalArchiveHandler(nil, stager, 1024),
		Research:   NewResearchRecordHandler(nil, stager, 1024),
		Thesis:     NewThesisProjectHandler(nil, stager, 1024),
		Algorithms: NewAlgorithmHandler(f.algorithms),
		Admin:      NewAdminHandler(f.reconciler),
	}, stubVerifier{tokens: routeTokens})
	return f
}
