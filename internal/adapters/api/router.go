package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrobid/agrobid/internal/adapters/ws"
	"github.com/agrobid/agrobid/internal/domain/users"
	"github.com/agrobid/agrobid/pkg/auth"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Users      *UserHandler
	Products   *ProductHandler
	Bids       *BidHandler
	Transports *TransportHandler
	Hub        *ws.Hub
	Signer     *auth.Signer
	Logger     *slog.Logger
}

// NewRouter builds the HTTP surface. Role gates live here: the domain
// services check ownership, the router checks roles.
func NewRouter(h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(h.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", ws.Handler(h.Hub, h.Signer, h.Logger))

	authed := auth.RequireAuth(h.Signer)
	farmerOnly := auth.RequireRole(string(users.RoleFarmer))
	buyerOnly := auth.RequireRole(string(users.RoleBuyer))
	transporterOnly := auth.RequireRole(string(users.RoleTransporter))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", h.Users.Register)
		v1.POST("/auth/login", h.Users.Login)

		userGroup := v1.Group("/users")
		{
			userGroup.GET("", h.Users.List)
			userGroup.GET("/:id", h.Users.GetPublic)
			userGroup.GET("/me", authed, h.Users.GetMe)
			userGroup.PUT("/me", authed, h.Users.UpdateMe)
			userGroup.PUT("/me/password", authed, h.Users.ChangePassword)
			userGroup.DELETE("/me", authed, h.Users.DeactivateMe)
		}

		productGroup := v1.Group("/products")
		{
			productGroup.GET("", h.Products.List)
			productGroup.GET("/featured", h.Products.ListFeatured)
			productGroup.GET("/my", authed, farmerOnly, h.Products.ListMine)
			productGroup.GET("/:id", h.Products.Get)
			productGroup.GET("/:id/bids", h.Bids.ListByProduct)
			productGroup.POST("", authed, farmerOnly, h.Products.Create)
			productGroup.PUT("/:id", authed, farmerOnly, h.Products.Update)
			productGroup.DELETE("/:id", authed, farmerOnly, h.Products.Delete)
		}

		bidGroup := v1.Group("/bids", authed)
		{
			bidGroup.POST("", buyerOnly, h.Bids.Submit)
			bidGroup.GET("/my", buyerOnly, h.Bids.ListMine)
			bidGroup.GET("/received", farmerOnly, h.Bids.ListReceived)
			bidGroup.GET("/:id", h.Bids.Get)
			bidGroup.PUT("/:id/accept", farmerOnly, h.Bids.Accept)
			bidGroup.PUT("/:id/reject", farmerOnly, h.Bids.Reject)
			bidGroup.PUT("/:id/counter", farmerOnly, h.Bids.CounterOffer)
			bidGroup.PUT("/:id/withdraw", buyerOnly, h.Bids.Withdraw)
			bidGroup.PUT("/:id/read", buyerOnly, h.Bids.MarkRead)
		}

		transportGroup := v1.Group("/transports", authed)
		{
			transportGroup.POST("", transporterOnly, h.Transports.Create)
			transportGroup.GET("/my", h.Transports.ListMine)
			transportGroup.GET("/active", transporterOnly, h.Transports.ListActive)
			transportGroup.GET("/:id", h.Transports.Get)
			transportGroup.PUT("/:id/status", transporterOnly, h.Transports.UpdateStatus)
			transportGroup.PUT("/:id/cancel", h.Transports.Cancel)
			transportGroup.POST("/:id/rating", h.Transports.AddRating)
		}
	}

	return router
}

// requestLogger logs one line per request with the fields we alert on.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
		)
	}
}
