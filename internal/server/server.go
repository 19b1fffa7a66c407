package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/quickcart/internal/audit"
	auditdomain "github.com/smallbiznis/quickcart/internal/audit/domain"
	"github.com/smallbiznis/quickcart/internal/auth"
	"github.com/smallbiznis/quickcart/internal/auth/bearer"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	"github.com/smallbiznis/quickcart/internal/authorization"
	authorizationdomain "github.com/smallbiznis/quickcart/internal/authorization/domain"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/observability"
	obsmiddleware "github.com/smallbiznis/quickcart/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quickcart/internal/observability/metrics"
	obstracing "github.com/smallbiznis/quickcart/internal/observability/tracing"
	"github.com/smallbiznis/quickcart/internal/organization"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	"github.com/smallbiznis/quickcart/internal/ratelimit"
	"github.com/smallbiznis/quickcart/internal/rbac/catalog"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	auth.Module,
	authorization.Module,
	organization.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authsvc         authdomain.Service
	tokens          *bearer.Manager
	authzSvc        authorizationdomain.Service
	auditSvc        auditdomain.Service
	organizationSvc organizationdomain.Service
	orgRepo         organizationdomain.Repository
	roles           rbacdomain.Repository
	catalog         *catalog.Catalog
	loginLimiter    *ratelimit.LoginLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Authsvc         authdomain.Service
	Tokens          *bearer.Manager
	AuthzSvc        authorizationdomain.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc organizationdomain.Service
	OrgRepo         organizationdomain.Repository
	Roles           rbacdomain.Repository
	Catalog         *catalog.Catalog
	LoginLimiter    *ratelimit.LoginLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authsvc:         p.Authsvc,
		tokens:          p.Tokens,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		orgRepo:         p.OrgRepo,
		roles:           p.Roles,
		catalog:         p.Catalog,
		loginLimiter:    p.LoginLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAccessRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.LoginRateLimit(string(authdomain.GuardUser)), s.Login)
	auth.POST("/admin/login", s.LoginRateLimit(string(authdomain.GuardAdmin)), s.AdminLogin)
	auth.POST("/logout", s.Logout)
	auth.POST("/select-role", s.BearerAuthRequired(), s.SelectRole)

	me := s.engine.Group("/me", s.BearerAuthRequired())
	{
		me.GET("", s.Me)
		me.GET("/organisations", s.ListMyOrganisations)
		me.GET("/organisations/:orgId/role", s.MyOrganisationRole)
		me.GET("/branches/:branchId/role", s.MyBranchRole)
		me.GET("/properties/:propertyId/role", s.MyPropertyRole)
	}
}

func (s *Server) registerAccessRoutes() {
	api := s.engine.Group("/", s.BearerAuthRequired())

	// -------- Organisation members --------
	api.GET("/organisations/:orgId/users", s.RequireOrganisationPermission(rbacdomain.PermUserView, s.organisationScope), s.ListMembers)
	api.POST("/organisations/:orgId/users", s.RequireOrganisationPermission(rbacdomain.PermUserCreate, s.organisationScope), s.CreateOrganisationUser)
	api.DELETE("/organisations/:orgId/users/:userId", s.RequireOrganisationPermission(rbacdomain.PermUserCreate, s.organisationScope), s.RemoveOrganisationUser)

	// -------- Branches --------
	api.POST("/organisations/:orgId/branches", s.RequireOrganisationPermission(rbacdomain.PermBranchCreate, s.organisationScope), s.CreateBranch)
	api.POST("/branches/:branchId/users", s.RequireBranchPermission(rbacdomain.PermUserCreate), s.CreateBranchUser)
	api.DELETE("/branches/:branchId/users/:userId", s.RequireBranchPermission(rbacdomain.PermUserCreate), s.RemoveBranchUser)
	api.POST("/branches/:branchId/properties", s.RequireBranchPermission(rbacdomain.PermBranchUpdate), s.CreateProperty)

	// -------- Policies --------
	api.PUT("/policies/:policyId/permissions", s.RequireOrganisationPermission(rbacdomain.PermUserCreate, s.policyScope), s.SyncPolicyPermissions)

	api.GET("/organisations/:orgId/audit-logs", s.RequireOrganisationPermission(rbacdomain.PermOrganisationView, s.organisationScope), s.ListAuditLogs)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.BearerAuthRequired(), s.RequireSystemAdmin())

	admin.POST("/organisations", s.CreateOrganisation)
	admin.POST("/trade-codes", s.CreateTradeCode)
	admin.POST("/users", s.CreateUser)
	admin.GET("/roles", s.ListRoles)
	admin.PUT("/roles/:roleKey/baseline", s.SetRoleBaseline)
}
