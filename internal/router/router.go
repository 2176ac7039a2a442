// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/javajoker/imi-licensing/internal/cart"
	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/handlers"
	"github.com/javajoker/imi-licensing/internal/middleware"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

const Version = "1.0.0"

// Initialize builds the HTTP surface over the wired services. registry may be
// nil, in which case /metrics is not served.
func Initialize(svc *services.Container, carts *cart.Manager, registry *prometheus.Registry, cfg *config.Config, logger *logrus.Entry) *gin.Engine {
	ipAssetHandler := handlers.NewIPAssetHandler(svc.IP)
	licenseHandler := handlers.NewLicenseHandler(svc.License)
	productHandler := handlers.NewProductHandler(svc.Product)
	verificationHandler := handlers.NewVerificationHandler(svc.Authorization)
	cartHandler := handlers.NewCartHandler(carts, svc.Product)
	orderHandler := handlers.NewOrderHandler(svc.Order, carts, logger)
	notificationHandler := handlers.NewNotificationHandler(svc.Notification)

	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": Version,
		})
	})
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	}

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)

	v1 := r.Group("/v1")
	{
		// public verification is the only endpoint open to anonymous scanning
		v1.GET("/verify/:code", limiter.Middleware(), verificationHandler.VerifyProduct)

		ipAssets := v1.Group("/ip-assets")
		{
			ipAssets.GET("", ipAssetHandler.GetIPAssets)
			ipAssets.GET("/:id", ipAssetHandler.GetIPAsset)

			protected := ipAssets.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", ipAssetHandler.CreateIPAsset)
				protected.PUT("/:id/status", ipAssetHandler.UpdateIPAssetStatus)
				protected.POST("/:id/license-terms", ipAssetHandler.CreateLicenseTerms)
			}
		}

		licenses := v1.Group("/licenses")
		licenses.Use(middleware.AuthRequired())
		{
			licenses.POST("/apply", middleware.RoleRequired(models.UserTypeSecondaryCreator, models.UserTypeCreator), licenseHandler.ApplyForLicense)
			licenses.GET("", licenseHandler.GetLicenses)
			licenses.GET("/:id", licenseHandler.GetLicense)
			licenses.PUT("/:id/approve", licenseHandler.ApproveLicense)
			licenses.PUT("/:id/reject", licenseHandler.RejectLicense)
			licenses.PUT("/:id/revoke", licenseHandler.RevokeLicense)
		}

		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.GET("/:id", productHandler.GetProduct)
			products.GET("/:id/authorizations", verificationHandler.GetAuthorizationHistory)

			protected := products.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", productHandler.CreateProduct)
				protected.PUT("/:id/status", productHandler.UpdateProductStatus)
			}
		}

		cartRoutes := v1.Group("/cart")
		cartRoutes.Use(middleware.AuthRequired())
		{
			cartRoutes.GET("", cartHandler.GetCart)
			cartRoutes.DELETE("", cartHandler.ClearCart)
			cartRoutes.POST("/items", cartHandler.AddItem)
			cartRoutes.PUT("/items", cartHandler.UpdateItem)
			cartRoutes.DELETE("/items", cartHandler.RemoveItem)
		}

		authed := v1.Group("")
		authed.Use(middleware.AuthRequired())
		{
			authed.POST("/orders/checkout", orderHandler.Checkout)
			authed.GET("/transactions", orderHandler.GetTransactions)
			authed.GET("/transactions/:id", orderHandler.GetTransaction)
			authed.POST("/transactions/:id/refund", orderHandler.RefundTransaction)
			authed.GET("/notifications", notificationHandler.GetNotifications)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.PUT("/licenses/:id/expire", licenseHandler.ExpireLicense)
			admin.PUT("/products/:id/authorization/deactivate", verificationHandler.DeactivateAuthorization)
			admin.PUT("/transactions/:id/settle", orderHandler.SettleTransaction)
			admin.PUT("/transactions/:id/fail", orderHandler.FailTransaction)
		}
	}

	return r
}
