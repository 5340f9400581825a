package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	accesscontroldomain "github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	campaigndomain "github.com/smallbiznis/merchline/internal/campaign/domain"
	catalogdomain "github.com/smallbiznis/merchline/internal/catalog/domain"
	"github.com/smallbiznis/merchline/internal/config"
	"github.com/smallbiznis/merchline/internal/observability"
	obsmetrics "github.com/smallbiznis/merchline/internal/observability/metrics"
	obstracing "github.com/smallbiznis/merchline/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/merchline/internal/order/domain"
	orderquantitydomain "github.com/smallbiznis/merchline/internal/orderquantity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CorrelationID())
	r.Use(RequestLogger(log, obsCfg.Environment != "production"))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(httpMetrics.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server started", zap.String("addr", cfg.HTTPAddr))
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
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	accountSvc       accountdomain.Service
	accessControlSvc accesscontroldomain.Service
	catalogSvc       catalogdomain.Service
	validatorSvc     orderquantitydomain.Service
	campaignSvc      campaigndomain.Service
	orderSvc         orderdomain.Service
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	Log              *zap.Logger
	AccountSvc       accountdomain.Service
	AccessControlSvc accesscontroldomain.Service
	CatalogSvc       catalogdomain.Service
	ValidatorSvc     orderquantitydomain.Service
	CampaignSvc      campaigndomain.Service
	OrderSvc         orderdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		log:              p.Log.Named("http"),
		accountSvc:       p.AccountSvc,
		accessControlSvc: p.AccessControlSvc,
		catalogSvc:       p.CatalogSvc,
		validatorSvc:     p.ValidatorSvc,
		campaignSvc:      p.CampaignSvc,
		orderSvc:         p.OrderSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.ActorRequired())

	// -------- Catalog --------
	api.GET("/catalog/products", s.ListCatalogProducts)
	api.GET("/catalog/visible-tags", s.GetVisibleTags)
	api.POST("/catalog/categories", s.CreateCategory)
	api.POST("/catalog/tags", s.CreateTag)
	api.POST("/catalog/products", s.CreateProduct)
	api.POST("/catalog/products/:id/tags", s.AttachProductTag)
	api.PUT("/catalog/products/:id/graduated-prices", s.SetGraduatedPrices)

	// -------- Orders --------
	api.POST("/orders/validate", s.ValidateOrder)

	// -------- Campaigns --------
	api.POST("/campaigns", s.CreateCampaign)
	api.POST("/campaigns/:id/orders", s.SubmitCampaignOrder)
	api.GET("/campaigns/:id/quota", s.GetCampaignQuota)
	api.PUT("/campaigns/:id/order-limits/:role", s.SetCampaignOrderLimit)
	api.POST("/campaigns/:id/notification-rules", s.CreateNotificationRule)

	// -------- Access control groups --------
	api.GET("/access-control-groups", s.ListAccessControlGroups)
	api.POST("/access-control-groups", s.CreateAccessControlGroup)
	api.GET("/access-control-groups/:id", s.GetAccessControlGroup)
	api.POST("/access-control-groups/:id/members", s.AddAccessControlGroupMember)
	api.DELETE("/access-control-groups/:id/members/:kind/:memberID", s.RemoveAccessControlGroupMember)
	api.POST("/access-control-groups/:id/tags", s.GrantAccessControlGroupTag)
	api.DELETE("/access-control-groups/:id/tags/:tagID", s.RevokeAccessControlGroupTag)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
