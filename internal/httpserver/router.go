package httpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	ordersvc "storefront/internal/service/order"
	profilesvc "storefront/internal/service/profile"
	"storefront/internal/session"
)

type sessionManager interface {
	Start(ctx context.Context) (string, error)
	Load(ctx context.Context, id string) (session.Data, error)
	Authenticate(ctx context.Context, id string, profileID int64) (string, error)
	Destroy(ctx context.Context, id string) error
	TTL() time.Duration
}

type basketService interface {
	Add(ctx context.Context, ident domain.Identity, productID int64, quantity int) ([]domain.BasketItem, error)
	Remove(ctx context.Context, ident domain.Identity, productID int64, quantity int) ([]domain.BasketItem, error)
	List(ctx context.Context, ident domain.Identity) ([]domain.BasketItem, error)
}

type orderService interface {
	SubmitOrder(ctx context.Context, ident domain.Identity, fields *domain.ShippingFields) (*domain.Order, error)
	GetOrder(ctx context.Context, ident domain.Identity, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, ident domain.Identity) ([]domain.Order, error)
	UpdateDetails(ctx context.Context, id int64, fields domain.ShippingFields) (*domain.Order, error)
	Pay(ctx context.Context, ident domain.Identity, id int64) error
	OnLogin(ctx context.Context, anonSessionID string, profileID int64) (ordersvc.MergeBranch, error)
}

type profileService interface {
	Signup(ctx context.Context, in profilesvc.SignupInput) (*domain.Profile, error)
	Authenticate(ctx context.Context, username, password string) (*domain.Profile, error)
	Get(ctx context.Context, id int64) (*domain.Profile, error)
	Update(ctx context.Context, id int64, in profilesvc.UpdateInput) (*domain.Profile, error)
	ChangePassword(ctx context.Context, id int64, in profilesvc.PasswordInput) error
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Deps holds the services behind the API routes.
type Deps struct {
	Sessions       sessionManager
	Basket         basketService
	Orders         orderService
	Profiles       profileService
	Cookie         CookieConfig
	AllowedOrigins []string
}

func (d Deps) validate() error {
	switch {
	case d.Sessions == nil:
		return errors.New("session manager is required")
	case d.Basket == nil:
		return errors.New("basket service is required")
	case d.Orders == nil:
		return errors.New("order service is required")
	case d.Profiles == nil:
		return errors.New("profile service is required")
	}
	return nil
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Cookie.Name == "" {
		deps.Cookie.Name = "sessionid"
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery(), metrics.GinMiddleware())

	if len(deps.AllowedOrigins) > 0 {
		cfg := cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		if len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*" {
			// browsers refuse credentialed responses for a wildcard origin
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("cors config: %w", err)
		}
		router.Use(cors.New(cfg))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", sessionMiddleware(deps.Sessions, deps.Cookie, logger))

	api.GET("/basket", getBasketHandler(deps.Basket, logger))
	api.POST("/basket", addToBasketHandler(deps.Basket, logger))
	api.DELETE("/basket", removeFromBasketHandler(deps.Basket, logger))

	api.POST("/orders", submitOrderHandler(deps.Orders, logger))
	api.GET("/orders", listOrdersHandler(deps.Orders, logger))
	api.GET("/order/:id", getOrderHandler(deps.Orders, deps.Profiles, logger))
	api.POST("/order/:id", updateOrderHandler(deps.Orders, logger))
	api.POST("/payment/:id", payHandler(deps.Orders, logger))

	auth := authHandlers{sessions: deps.Sessions, orders: deps.Orders, profiles: deps.Profiles, cookie: deps.Cookie, logger: logger}
	api.POST("/sign-up", auth.signUp)
	api.POST("/sign-in", auth.signIn)
	api.POST("/sign-out", auth.signOut)

	account := api.Group("/profile", requireProfile())
	account.GET("", getProfileHandler(deps.Profiles, logger))
	account.POST("", updateProfileHandler(deps.Profiles, logger))
	account.POST("/password", changePasswordHandler(deps.Profiles, logger))

	return router, nil
}
